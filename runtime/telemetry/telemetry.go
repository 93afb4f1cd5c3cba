// Package telemetry defines the logging, metrics and tracing contracts used by
// the partview runtime together with Clue/OTEL backed and no-op implementations.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger captures structured logging used by the dispatch loop, the
	// history pipeline and the stores. Key-value pairs follow the
	// k1, v1, k2, v2 convention.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics exposes counter and histogram helpers.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer abstracts span creation so callers remain agnostic of the
	// configured OpenTelemetry provider.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span represents an in-flight tracing span.
	//
	//	ctx, span := tracer.Start(ctx, "history.normalize")
	//	defer span.End()
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}

	// Set groups the three instrumentation handles. Zero fields are replaced
	// with no-op implementations by WithDefaults.
	Set struct {
		Logger  Logger
		Metrics Metrics
		Tracer  Tracer
	}
)

// NewClueSet returns a Set backed by Clue logging and the global OTEL
// providers.
func NewClueSet() Set {
	return Set{
		Logger:  NewClueLogger(),
		Metrics: NewClueMetrics(),
		Tracer:  NewClueTracer(),
	}
}

// WithDefaults returns a copy of s where nil handles are replaced by no-op
// implementations.
func (s Set) WithDefaults() Set {
	if s.Logger == nil {
		s.Logger = NewNoopLogger()
	}
	if s.Metrics == nil {
		s.Metrics = NewNoopMetrics()
	}
	if s.Tracer == nil {
		s.Tracer = NewNoopTracer()
	}
	return s
}
