package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/partview/features/thread/memory"
	"goa.design/partview/runtime/dispatch"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/render"
	"goa.design/partview/runtime/thread"
)

func testConfig(out *bytes.Buffer) config {
	return config{mongoDB: "partview", out: out}
}

func TestNormalizeCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), testConfig(&out), "normalize", []string{"-in", "testdata/network.json"}))

	var conv []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &conv))
	require.Len(t, conv, 2)
	require.Equal(t, "u1", conv[0]["id"])
	require.Equal(t, "a1", conv[1]["id"])
	require.NotContains(t, out.String(), "reasoning")
	require.NotContains(t, out.String(), "User asked for weather")
}

func TestRenderCommand(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), testConfig(&out), "render", []string{"-in", "testdata/network.json"}))

	text := out.String()
	require.Contains(t, text, "u1[0] text default/text")
	require.Contains(t, text, "a1[0] network default/network")
	require.Contains(t, text, "network-fallback")
	require.Contains(t, text, "Paris")
}

func TestRenderRejectsUnknownStatus(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), testConfig(&out), "render", []string{"-in", "testdata/network.json", "-status", "done"})
	require.EqualError(t, err, `invalid status "done"`)
}

func TestImportIntoMemory(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), testConfig(&out), "import", []string{"-in", "testdata/network.json", "-thread", "t1"})
	require.NoError(t, err)

	err = run(context.Background(), testConfig(&out), "import", []string{"-in", "testdata/network.json"})
	require.EqualError(t, err, "-thread is required")
}

func TestPublishRequiresRedis(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), testConfig(&out), "publish", []string{"-in", "testdata/arrivals.jsonl", "-thread", "t1"})
	require.EqualError(t, err, "publish requires REDIS_URL")
}

func TestUnknownSubcommand(t *testing.T) {
	var out bytes.Buffer
	require.ErrorIs(t, run(context.Background(), testConfig(&out), "explode", nil), errUsage)
}

func TestDecodeConversationForms(t *testing.T) {
	c := parts.NewClassifier()
	conv, err := decodeConversation(c, []byte(`[{"id":"m","role":"user","parts":[{"type":"text","text":"hi"}]}]`))
	require.NoError(t, err)
	require.Len(t, conv, 1)

	conv, err = decodeConversation(c, []byte(`{"messages":[{"id":"m","role":"user","parts":[]}]}`))
	require.NoError(t, err)
	require.Len(t, conv, 1)

	_, err = decodeConversation(c, []byte(`{`))
	require.EqualError(t, err, "input is not valid JSON")
}

func TestReadArrivals(t *testing.T) {
	data := []byte(`{"type":"part","messageId":"m1","part":{"type":"text","text":"a"}}

{"type":"status","status":"ready"}
`)
	arrivals, err := readArrivals(data)
	require.NoError(t, err)
	require.Len(t, arrivals, 2)
	require.Equal(t, dispatch.ArrivalPart, arrivals[0].Type)
	require.Equal(t, parts.StatusReady, arrivals[1].Status)

	_, err = readArrivals([]byte("{\n"))
	require.ErrorContains(t, err, "line 1")
}

func TestViewerName(t *testing.T) {
	require.Equal(t, "mine", viewerName("mine"))
	a, b := viewerName(""), viewerName("")
	require.True(t, strings.HasPrefix(a, "partview_viewer_"))
	require.NotEqual(t, a, b)
}

func TestDeleteMissingThread(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), testConfig(&out), "delete", []string{"-thread", "t1"})
	require.ErrorIs(t, err, thread.ErrThreadNotFound)

	err = run(context.Background(), testConfig(&out), "delete", nil)
	require.EqualError(t, err, "-thread is required")
}

func TestRecorderAppendsSettledMessages(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	history := parts.Conversation{{ID: "u1", Role: parts.RoleUser, Parts: []parts.Part{parts.TextPart{Text: "hi"}}}}
	require.NoError(t, store.SaveThread(ctx, thread.Thread{ID: "t1", Messages: history}))

	r := newRecorder(store, "t1", history)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return at }

	reply := parts.Message{ID: "a1", Role: parts.RoleAssistant, Parts: []parts.Part{parts.TextPart{Text: "hello"}}}
	conv := append(history.Clone(), reply)
	require.NoError(t, r.settled(ctx, conv))
	require.NoError(t, r.settled(ctx, conv))

	stored, err := store.LoadThread(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	require.Equal(t, "a1", stored.Messages[1].ID)
	require.Equal(t, at, stored.UpdatedAt)

	// A stored message amended after settling rewrites the thread.
	amended := conv.Clone()
	amended[1].Parts = append(amended[1].Parts, parts.TextPart{Text: "more"})
	require.NoError(t, r.settled(ctx, amended))

	stored, err = store.LoadThread(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, stored.Messages, 2)
	require.Len(t, stored.Messages[1].Parts, 2)
}

func TestFollowSessionPersistsOnSettle(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := newRecorder(store, "t1", nil)
	sess := dispatch.NewSession(dispatch.New(render.NewRegistry()), dispatch.WithOnSettled(r.settled))

	_, err := sess.Apply(ctx, dispatch.Arrival{Type: dispatch.ArrivalStatus, Status: parts.StatusStreaming})
	require.NoError(t, err)
	_, err = sess.Apply(ctx, dispatch.Arrival{Type: dispatch.ArrivalPart, MessageID: "a1", Part: json.RawMessage(`{"type":"text","text":"hello"}`)})
	require.NoError(t, err)
	_, err = store.LoadThread(ctx, "t1")
	require.ErrorIs(t, err, thread.ErrThreadNotFound)

	_, err = sess.Apply(ctx, dispatch.Arrival{Type: dispatch.ArrivalStatus, Status: parts.StatusReady})
	require.NoError(t, err)
	stored, err := store.LoadThread(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
	require.Equal(t, parts.RoleAssistant, stored.Messages[0].Role)
}
