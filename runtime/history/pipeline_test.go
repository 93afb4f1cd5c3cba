package history_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/partview/runtime/history"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/telemetry"
)

type recordingMetrics struct {
	mu       sync.Mutex
	counters map[string]float64
	timers   []string
}

func (m *recordingMetrics) IncCounter(name string, value float64, _ ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]float64)
	}
	m.counters[name] += value
}

func (m *recordingMetrics) RecordTimer(name string, _ time.Duration, _ ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers = append(m.timers, name)
}

func (m *recordingMetrics) RecordGauge(string, float64, ...string) {}

func TestPipelineRecordsStats(t *testing.T) {
	metrics := &recordingMetrics{}
	p := history.NewPipeline(telemetry.Set{Metrics: metrics})
	conv := parts.Conversation{
		user("u1", "plan my trip"),
		assistant("a1", parts.ReasoningPart{Text: "thinking"}, parts.TextPart{Text: "sure"}),
		assistant("a2", dynamic("A")),
		assistant("a3", dynamic("B")),
	}

	out, stats := p.Run(context.Background(), conv)

	require.Equal(t, []string{"u1", "a1", "a2"}, ids(out))
	require.Equal(t, 1, stats.ReasoningStripped)
	require.Equal(t, 1, stats.Deduplicated)
	require.Equal(t, 1, stats.Dropped())
	require.Equal(t, float64(1), metrics.counters["partview.history.messages.dropped"])
	require.Equal(t, float64(1), metrics.counters["partview.history.reasoning.stripped"])
	require.Equal(t, []string{"partview.history.normalize.duration"}, metrics.timers)
}

func TestPipelineMatchesNormalize(t *testing.T) {
	conv := parts.Conversation{user("u1", "hi"), assistant("a1", parts.TextPart{Text: "hello"})}
	out, stats := history.NewPipeline(telemetry.Set{}).Run(context.Background(), conv)
	require.Equal(t, history.Normalize(conv), out)
	require.Zero(t, stats.Dropped())
}
