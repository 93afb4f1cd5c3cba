package history

import (
	"context"
	"time"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/telemetry"
)

// Pipeline runs Normalize with logging, metrics and tracing.
type Pipeline struct {
	tel telemetry.Set
}

// NewPipeline returns a Pipeline. Nil telemetry handles default to no-ops.
func NewPipeline(tel telemetry.Set) *Pipeline {
	return &Pipeline{tel: tel.WithDefaults()}
}

// Run normalizes conv and reports what was removed.
func (p *Pipeline) Run(ctx context.Context, conv parts.Conversation) (parts.Conversation, Stats) {
	ctx, span := p.tel.Tracer.Start(ctx, "history.normalize")
	defer span.End()

	start := time.Now()
	out, stats := normalize(conv)
	p.tel.Metrics.RecordTimer("partview.history.normalize.duration", time.Since(start))
	p.tel.Metrics.IncCounter("partview.history.messages.dropped", float64(stats.Dropped()))
	p.tel.Metrics.IncCounter("partview.history.reasoning.stripped", float64(stats.ReasoningStripped))

	span.AddEvent("normalized",
		"input", len(conv),
		"output", len(out),
		"deduplicated", stats.Deduplicated,
	)
	p.tel.Logger.Debug(ctx, "history normalized",
		"input", len(conv),
		"output", len(out),
		"reasoning_stripped", stats.ReasoningStripped,
		"reasons_scrubbed", stats.ReasonsScrubbed,
		"completion_checks", stats.CompletionChecks,
		"marker_messages", stats.MarkerMessages,
		"empty", stats.Empty,
		"deduplicated", stats.Deduplicated,
	)
	return out, stats
}
