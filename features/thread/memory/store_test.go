package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/partview/features/thread/memory"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
	"goa.design/partview/runtime/thread/threadtest"
)

func TestStoreConformance(t *testing.T) {
	threadtest.Run(t, func(*testing.T) thread.Store { return memory.New() })
}

func TestLoadReturnsCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.SaveThread(ctx, threadtest.SampleThread("t1")))

	loaded, err := s.LoadThread(ctx, "t1")
	require.NoError(t, err)
	loaded.Messages[0].Parts[0] = parts.TextPart{Text: "mutated"}

	again, err := s.LoadThread(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, parts.TextPart{Text: "weather in Paris?"}, again.Messages[0].Parts[0])
}

func TestCanceledContext(t *testing.T) {
	s := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.LoadThread(ctx, "t1")
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, s.AppendMessages(ctx, "t1", time.Now()), context.Canceled)
}

func TestThreadIDs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.AppendMessages(ctx, "b", time.Now()))
	require.NoError(t, s.AppendMessages(ctx, "a", time.Now()))
	require.Equal(t, []string{"a", "b"}, s.ThreadIDs())
}
