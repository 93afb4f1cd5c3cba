package history

import (
	"context"
	"errors"
	"fmt"

	goa "goa.design/goa/v3/pkg"
	"go.opentelemetry.io/otel/codes"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/telemetry"
	"goa.design/partview/runtime/thread"
)

// ErrorHistoryUnavailable names the service error returned when the store
// cannot serve a thread.
const ErrorHistoryUnavailable = "history_unavailable"

type (
	// Loader fetches a thread and normalizes it for display.
	Loader struct {
		store    thread.Store
		pipeline *Pipeline
		tel      telemetry.Set
	}

	// Result is the outcome of a history fetch.
	Result struct {
		// Exists is false when the store has no such thread. Messages is
		// then empty and the caller treats the conversation as new.
		Exists bool
		// Messages is the normalized conversation.
		Messages parts.Conversation
		// Stats reports what normalization removed.
		Stats Stats
	}
)

// NewLoader returns a Loader reading from store.
func NewLoader(store thread.Store, tel telemetry.Set) *Loader {
	tel = tel.WithDefaults()
	return &Loader{store: store, pipeline: NewPipeline(tel), tel: tel}
}

// Load fetches and normalizes the thread. A missing thread yields
// Exists=false and no error. Store failures are returned as a
// *goa.ServiceError named ErrorHistoryUnavailable; the fetch is not retried.
func (l *Loader) Load(ctx context.Context, threadID string) (Result, error) {
	if threadID == "" {
		return Result{}, thread.ErrMissingThreadID
	}
	ctx, span := l.tel.Tracer.Start(ctx, "history.load")
	defer span.End()

	t, err := l.store.LoadThread(ctx, threadID)
	if errors.Is(err, thread.ErrThreadNotFound) {
		l.tel.Logger.Debug(ctx, "history not found", "thread_id", threadID)
		return Result{Exists: false}, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "history unavailable")
		l.tel.Metrics.IncCounter("partview.history.load.errors", 1)
		l.tel.Logger.Error(ctx, "history fetch failed", "thread_id", threadID, "err", err)
		timeout := errors.Is(err, context.DeadlineExceeded)
		return Result{}, goa.NewServiceError(
			fmt.Errorf("load thread %q: %w", threadID, err),
			ErrorHistoryUnavailable,
			timeout, // timeout
			!timeout, // temporary
			true,     // fault
		)
	}
	msgs, stats := l.pipeline.Run(ctx, t.Messages)
	return Result{Exists: true, Messages: msgs, Stats: stats}, nil
}
