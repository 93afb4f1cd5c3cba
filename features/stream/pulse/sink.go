// Package pulse carries live arrivals over goa.design/pulse streams. A
// producer publishes dispatch.Arrival values with Sink; any number of
// viewers consume them with Subscriber and feed them to a dispatch.Session.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/partview/features/stream/pulse/clients/pulse"
	"goa.design/partview/runtime/dispatch"
)

type (
	// Options configures the Pulse sink.
	Options struct {
		// Client is the Pulse client used to publish arrivals. Required.
		Client pulse.Client
		// StreamID derives the target stream from a thread id. Defaults to
		// `thread/<id>`.
		StreamID func(threadID string) (string, error)
		// OnPublished, when set, is called after each successful publish. Its
		// error is returned from Send.
		OnPublished func(ctx context.Context, ev PublishedArrival) error
	}

	// PublishedArrival describes an arrival written to a stream.
	PublishedArrival struct {
		ThreadID string
		StreamID string
		EntryID  string
		Arrival  dispatch.Arrival
	}

	// Sink publishes arrivals into Pulse streams. Safe for concurrent use.
	Sink struct {
		client      pulse.Client
		streamID    func(string) (string, error)
		onPublished func(context.Context, PublishedArrival) error
	}

	// envelope is the wire form of a published arrival.
	envelope struct {
		ThreadID  string           `json:"thread_id"`
		Timestamp time.Time        `json:"timestamp"`
		Arrival   dispatch.Arrival `json:"arrival"`
	}
)

// NewSink constructs a Pulse-backed arrival sink.
func NewSink(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	s := &Sink{
		client:      opts.Client,
		streamID:    StreamID,
		onPublished: opts.OnPublished,
	}
	if opts.StreamID != nil {
		s.streamID = opts.StreamID
	}
	return s, nil
}

// Send publishes a to the stream of the given thread. The stream entry is
// named after the arrival type.
func (s *Sink) Send(ctx context.Context, threadID string, a dispatch.Arrival) error {
	streamID, err := s.streamID(threadID)
	if err != nil {
		return err
	}
	if a.Type == "" {
		return dispatch.ErrUnknownArrival
	}
	h, err := s.client.Stream(streamID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{ThreadID: threadID, Timestamp: time.Now().UTC(), Arrival: a})
	if err != nil {
		return fmt.Errorf("marshal arrival: %w", err)
	}
	id, err := h.Add(ctx, string(a.Type), payload)
	if err != nil {
		return err
	}
	if s.onPublished != nil {
		return s.onPublished(ctx, PublishedArrival{ThreadID: threadID, StreamID: streamID, EntryID: id, Arrival: a})
	}
	return nil
}

// Close releases resources owned by the underlying client.
func (s *Sink) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// StreamID returns the default stream name for a thread.
func StreamID(threadID string) (string, error) {
	if threadID == "" {
		return "", errors.New("thread id is required")
	}
	return "thread/" + threadID, nil
}
