// Package threadtest provides a conformance suite for thread.Store
// implementations.
package threadtest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) thread.Store

// Run exercises the thread.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("load missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadThread(context.Background(), "missing")
		require.ErrorIs(t, err, thread.ErrThreadNotFound)
	})

	t.Run("missing id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.LoadThread(ctx, "")
		require.ErrorIs(t, err, thread.ErrMissingThreadID)
		require.ErrorIs(t, s.SaveThread(ctx, thread.Thread{}), thread.ErrMissingThreadID)
		require.ErrorIs(t, s.AppendMessages(ctx, "", time.Now()), thread.ErrMissingThreadID)
		require.ErrorIs(t, s.DeleteThread(ctx, ""), thread.ErrMissingThreadID)
	})

	t.Run("save then load", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := SampleThread("t1")
		require.NoError(t, s.SaveThread(ctx, in))

		out, err := s.LoadThread(ctx, "t1")
		require.NoError(t, err)
		RequireSameThread(t, in, out)
	})

	t.Run("append creates and extends", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		first := parts.Message{ID: "m1", Role: parts.RoleUser, Parts: []parts.Part{parts.TextPart{Text: "hi"}}}
		second := parts.Message{ID: "m2", Role: parts.RoleAssistant, Parts: []parts.Part{parts.TextPart{Text: "hello"}}}

		require.NoError(t, s.AppendMessages(ctx, "t2", at, first))
		require.NoError(t, s.AppendMessages(ctx, "t2", at.Add(time.Minute), second))

		out, err := s.LoadThread(ctx, "t2")
		require.NoError(t, err)
		require.Len(t, out.Messages, 2)
		require.Equal(t, "m1", out.Messages[0].ID)
		require.Equal(t, "m2", out.Messages[1].ID)
		require.True(t, out.CreatedAt.Equal(at))
		require.True(t, out.UpdatedAt.Equal(at.Add(time.Minute)))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.SaveThread(ctx, SampleThread("t3")))
		require.NoError(t, s.DeleteThread(ctx, "t3"))
		_, err := s.LoadThread(ctx, "t3")
		require.ErrorIs(t, err, thread.ErrThreadNotFound)
		require.ErrorIs(t, s.DeleteThread(ctx, "t3"), thread.ErrThreadNotFound)
	})

	t.Run("round trip property", func(t *testing.T) {
		s := newStore(t)
		parameters := gopter.DefaultTestParameters()
		parameters.MinSuccessfulTests = 25
		properties := gopter.NewProperties(parameters)

		properties.Property("saved messages load unchanged", prop.ForAll(
			func(id string, texts []string) bool {
				ctx := context.Background()
				in := thread.Thread{ID: "prop-" + id, CreatedAt: time.Unix(1700000000, 0).UTC(), UpdatedAt: time.Unix(1700000000, 0).UTC()}
				for i, text := range texts {
					role := parts.RoleUser
					if i%2 == 1 {
						role = parts.RoleAssistant
					}
					in.Messages = append(in.Messages, parts.Message{
						ID:    id + "-" + string(rune('a'+i%26)),
						Role:  role,
						Parts: []parts.Part{parts.TextPart{Text: text}},
					})
				}
				if err := s.SaveThread(ctx, in); err != nil {
					return false
				}
				out, err := s.LoadThread(ctx, in.ID)
				if err != nil {
					return false
				}
				return sameMessages(in.Messages, out.Messages)
			},
			gen.Identifier(),
			gen.SliceOfN(4, gen.AlphaString()),
		))

		properties.TestingRun(t)
	})
}

// SampleThread returns a thread exercising every part kind.
func SampleThread(id string) thread.Thread {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return thread.Thread{
		ID:        id,
		CreatedAt: at,
		UpdatedAt: at,
		Messages: parts.Conversation{
			{ID: "u1", Role: parts.RoleUser, Parts: []parts.Part{parts.TextPart{Text: "weather in Paris?"}}},
			{
				ID:       "a1",
				Role:     parts.RoleAssistant,
				Metadata: &parts.Metadata{Mode: parts.ModeNetwork},
				Parts: []parts.Part{
					parts.ReasoningPart{Text: "route to weather agent"},
					parts.ToolPart{ToolType: "weather", ToolCallID: "c1", State: parts.ToolOutputReady, Output: json.RawMessage(`{"temperature":21}`)},
					parts.NetworkPart{ID: "n1", Name: "weather", Status: parts.NetworkFinished, Steps: []parts.Step{{Name: "router", Task: &parts.Task{Reason: "weather"}}}},
					parts.SourcePart{SourceID: "s1", URL: "https://meteo.example", Title: "Meteo"},
					parts.UnknownPart{Class: parts.KindUnclassified, Type: "step-start", Raw: json.RawMessage(`{"type":"step-start"}`)},
				},
			},
		},
	}
}

// RequireSameThread asserts that two threads carry the same identifier,
// timestamps and messages.
func RequireSameThread(t *testing.T, want, got thread.Thread) {
	t.Helper()
	require.Equal(t, want.ID, got.ID)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at: want %s got %s", want.CreatedAt, got.CreatedAt)
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: want %s got %s", want.UpdatedAt, got.UpdatedAt)
	require.True(t, sameMessages(want.Messages, got.Messages), "messages differ")
}

// sameMessages compares conversations by their wire encoding.
func sameMessages(a, b parts.Conversation) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}
