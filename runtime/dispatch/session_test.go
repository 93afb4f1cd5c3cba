package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/partview/runtime/dispatch"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/telemetry"
)

func partArrival(messageID, role, raw string) dispatch.Arrival {
	return dispatch.Arrival{Type: dispatch.ArrivalPart, MessageID: messageID, Role: role, Part: json.RawMessage(raw)}
}

func statusArrival(s parts.Status) dispatch.Arrival {
	return dispatch.Arrival{Type: dispatch.ArrivalStatus, Status: s}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestSessionReasoningDisappearsWhenSettled(t *testing.T) {
	ctx := context.Background()
	s := dispatch.NewSession(dispatch.New(newRegistry(t)))

	outs, err := s.Apply(ctx, statusArrival(parts.StatusStreaming))
	require.NoError(t, err)
	require.Empty(t, outs)

	outs, err = s.Apply(ctx, partArrival("a1", parts.RoleAssistant, `{"type":"reasoning","text":"thinking"}`))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.True(t, outs[0].Rendered)

	outs, err = s.Apply(ctx, statusArrival(parts.StatusReady))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.Equal(t, dispatch.SkipHidden, outs[0].Skip)

	// Stored state still holds the reasoning part.
	require.Equal(t, parts.KindReasoning, s.Conversation()[0].Parts[0].Kind())
	require.Equal(t, parts.StatusReady, s.Status())
}

func TestSessionNewMessageHidesPreviousReasoning(t *testing.T) {
	ctx := context.Background()
	s := dispatch.NewSession(dispatch.New(newRegistry(t)), dispatch.WithIDGenerator(sequentialIDs()))
	_, err := s.Apply(ctx, statusArrival(parts.StatusStreaming))
	require.NoError(t, err)
	_, err = s.Apply(ctx, partArrival("", parts.RoleAssistant, `{"type":"reasoning","text":"first"}`))
	require.NoError(t, err)

	outs, err := s.Apply(ctx, partArrival("", parts.RoleUser, `{"type":"text","text":"interrupt"}`))
	require.NoError(t, err)
	require.Len(t, outs, 2)
	require.Equal(t, "gen-1", outs[0].MessageID)
	require.Equal(t, dispatch.SkipHidden, outs[0].Skip)
	require.Equal(t, "gen-2", outs[1].MessageID)
	require.True(t, outs[1].Rendered)

	conv := s.Conversation()
	require.Len(t, conv, 2)
	require.Equal(t, parts.RoleUser, conv[1].Role)
}

func TestSessionAnonymousArrivalDefaultsToAssistant(t *testing.T) {
	ctx := context.Background()
	history := parts.Conversation{{ID: "u1", Role: parts.RoleUser, Parts: []parts.Part{parts.TextPart{Text: "hi"}}}}
	s := dispatch.NewSession(dispatch.New(newRegistry(t)),
		dispatch.WithHistory(history),
		dispatch.WithIDGenerator(sequentialIDs()))

	outs, err := s.Apply(ctx, partArrival("", "", `{"type":"text","text":"hello"}`))
	require.NoError(t, err)
	require.Equal(t, "gen-1", outs[len(outs)-1].MessageID)

	outs, err = s.Apply(ctx, partArrival("", "", `{"type":"text","text":"again"}`))
	require.NoError(t, err)
	require.Equal(t, "gen-1", outs[len(outs)-1].MessageID)

	conv := s.Conversation()
	require.Len(t, conv, 2)
	require.Len(t, conv[0].Parts, 1)
	require.Equal(t, parts.RoleAssistant, conv[1].Role)
	require.Len(t, conv[1].Parts, 2)
}

func TestSessionOnSettledFiresOnTransition(t *testing.T) {
	ctx := context.Background()
	logger := &recordingLogger{}
	var calls []int
	s := dispatch.NewSession(dispatch.New(newRegistry(t), dispatch.WithTelemetry(telemetry.Set{Logger: logger})),
		dispatch.WithOnSettled(func(_ context.Context, conv parts.Conversation) error {
			calls = append(calls, len(conv))
			return errors.New("store down")
		}))

	_, err := s.Apply(ctx, statusArrival(parts.StatusStreaming))
	require.NoError(t, err)
	_, err = s.Apply(ctx, partArrival("a1", "", `{"type":"text","text":"hi"}`))
	require.NoError(t, err)
	outs, err := s.Apply(ctx, statusArrival(parts.StatusReady))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	_, err = s.Apply(ctx, statusArrival(parts.StatusError))
	require.NoError(t, err)

	require.Equal(t, []int{1}, calls)
	require.Equal(t, []string{"settled hook failed"}, logger.warns)
}

func TestSessionReplacesByIdentity(t *testing.T) {
	ctx := context.Background()
	s := dispatch.NewSession(dispatch.New(newRegistry(t)))

	_, err := s.Apply(ctx, partArrival("a1", "", `{"type":"tool-weather","toolCallId":"c1","state":"input-available"}`))
	require.NoError(t, err)
	_, err = s.Apply(ctx, partArrival("a1", "", `{"type":"data-network","id":"n1","data":{"status":"running","steps":[{"name":"router","task":{"reason":"why"}}]}}`))
	require.NoError(t, err)
	outs, err := s.Apply(ctx, partArrival("a1", "", `{"type":"tool-weather","toolCallId":"c1","state":"output-available","output":{"temperature":3}}`))
	require.NoError(t, err)
	require.Equal(t, 0, outs[0].Index)

	outs, err = s.Apply(ctx, partArrival("a1", "", `{"type":"data-network","id":"n1","data":{"status":"finished","steps":[{"status":"done"},{"name":"weather"}]}}`))
	require.NoError(t, err)
	require.Equal(t, 1, outs[0].Index)

	conv := s.Conversation()
	require.Len(t, conv, 1)
	require.Len(t, conv[0].Parts, 2)
	tool := conv[0].Parts[0].(parts.ToolPart)
	require.Equal(t, parts.ToolOutputReady, tool.State)
	network := conv[0].Parts[1].(parts.NetworkPart)
	require.Equal(t, parts.NetworkFinished, network.Status)
	require.Len(t, network.Steps, 2)
	require.Equal(t, "router", network.Steps[0].Name)
	require.Equal(t, "why", network.Steps[0].Task.Reason)
	require.Equal(t, "done", network.Steps[0].Status)
}

func TestSessionIndexReplacesTextSnapshot(t *testing.T) {
	ctx := context.Background()
	s := dispatch.NewSession(dispatch.New(newRegistry(t)))
	_, err := s.Apply(ctx, partArrival("a1", "", `{"type":"text","text":"Hel"}`))
	require.NoError(t, err)
	zero := 0
	a := partArrival("a1", "", `{"type":"text","text":"Hello"}`)
	a.Index = &zero
	_, err = s.Apply(ctx, a)
	require.NoError(t, err)
	conv := s.Conversation()
	require.Len(t, conv[0].Parts, 1)
	require.Equal(t, "Hello", conv[0].Parts[0].(parts.TextPart).Text)
}

func TestSessionSettledNetworkGetsFallback(t *testing.T) {
	ctx := context.Background()
	s := dispatch.NewSession(dispatch.New(newRegistry(t)))
	_, err := s.Apply(ctx, statusArrival(parts.StatusStreaming))
	require.NoError(t, err)
	raw, err := json.Marshal(finishedNetwork())
	require.NoError(t, err)
	outs, err := s.Apply(ctx, partArrival("a1", "", string(raw)))
	require.NoError(t, err)
	require.Nil(t, outs[0].Fallback)

	outs, err = s.Apply(ctx, statusArrival(parts.StatusReady))
	require.NoError(t, err)
	require.Len(t, outs, 1)
	require.NotNil(t, outs[0].Fallback)
}

func TestSessionMalformedArrival(t *testing.T) {
	ctx := context.Background()
	s := dispatch.NewSession(dispatch.New(newRegistry(t)))
	outs, err := s.Apply(ctx, partArrival("a1", "", `{"type":"tool-"}`))
	require.NoError(t, err)
	require.Equal(t, dispatch.SkipUnclassified, outs[0].Skip)
	require.Equal(t, parts.KindMalformed, outs[0].Kind)

	_, err = s.Apply(ctx, dispatch.Arrival{Type: "bogus"})
	require.ErrorIs(t, err, dispatch.ErrUnknownArrival)
}

func TestSessionRun(t *testing.T) {
	ctx := context.Background()
	history := parts.Conversation{{ID: "u1", Role: parts.RoleUser, Parts: []parts.Part{parts.TextPart{Text: "hi"}}}}
	s := dispatch.NewSession(dispatch.New(newRegistry(t)), dispatch.WithHistory(history))
	require.Len(t, s.Replay(ctx), 1)

	arrivals := make(chan dispatch.Arrival, 4)
	arrivals <- statusArrival(parts.StatusStreaming)
	arrivals <- partArrival("a1", parts.RoleAssistant, `{"type":"text","text":"one"}`)
	arrivals <- dispatch.Arrival{Type: "bogus"}
	arrivals <- partArrival("a1", parts.RoleAssistant, `{"type":"text","text":"two"}`)
	close(arrivals)

	var got []dispatch.Output
	err := s.Run(ctx, arrivals, dispatch.SinkFunc(func(_ context.Context, out dispatch.Output) error {
		got = append(got, out)
		return nil
	}))
	require.NoError(t, err)
	// The status change re-dispatches the user message, then one output per part.
	require.Len(t, got, 3)
	require.Equal(t, "u1", got[0].MessageID)
	require.Equal(t, "a1", got[1].MessageID)
	require.Equal(t, 0, got[1].Index)
	require.Equal(t, "a1", got[2].MessageID)
	require.Equal(t, 1, got[2].Index)
}

func TestSessionRunStopsOnCancelAndSinkError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := dispatch.NewSession(dispatch.New(newRegistry(t)))
	err := s.Run(ctx, make(chan dispatch.Arrival), dispatch.SinkFunc(func(context.Context, dispatch.Output) error { return nil }))
	require.ErrorIs(t, err, context.Canceled)

	arrivals := make(chan dispatch.Arrival, 1)
	arrivals <- partArrival("a1", "", `{"type":"text","text":"x"}`)
	boom := errors.New("closed")
	err = s.Run(context.Background(), arrivals, dispatch.SinkFunc(func(context.Context, dispatch.Output) error { return boom }))
	require.ErrorIs(t, err, boom)
}
