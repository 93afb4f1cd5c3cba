package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	streamopts "goa.design/pulse/streaming/options"

	clientspulse "goa.design/partview/features/stream/pulse/clients/pulse"
	"goa.design/partview/runtime/dispatch"
)

type (
	// EnvelopeDecoder converts raw stream payloads into arrivals.
	EnvelopeDecoder func([]byte) (dispatch.Arrival, error)

	// SubscriberOptions configures a Pulse-backed subscriber.
	SubscriberOptions struct {
		// Client is the Pulse client used to consume arrivals. Required.
		Client clientspulse.Client
		// SinkName identifies the Pulse consumer group. Defaults to
		// "partview_viewer". Viewers that must each see every arrival need
		// distinct names.
		SinkName string
		// Buffer is the arrival channel capacity. Defaults to 64.
		Buffer int
		// Decoder deserializes payloads. Defaults to the JSON envelope decoder.
		Decoder EnvelopeDecoder
		// StreamID derives the stream from a thread id. Defaults to
		// StreamID.
		StreamID func(threadID string) (string, error)
	}

	// Subscriber consumes Pulse streams and emits arrivals.
	Subscriber struct {
		client   clientspulse.Client
		buffer   int
		name     string
		decode   EnvelopeDecoder
		streamID func(string) (string, error)
	}
)

// NewSubscriber constructs a Pulse-backed subscriber.
func NewSubscriber(opts SubscriberOptions) (*Subscriber, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	s := &Subscriber{
		client:   opts.Client,
		buffer:   opts.Buffer,
		name:     opts.SinkName,
		decode:   opts.Decoder,
		streamID: opts.StreamID,
	}
	if s.name == "" {
		s.name = "partview_viewer"
	}
	if s.buffer <= 0 {
		s.buffer = 64
	}
	if s.decode == nil {
		s.decode = decodeEnvelope
	}
	if s.streamID == nil {
		s.streamID = StreamID
	}
	return s, nil
}

// Subscribe opens a consumer group on the stream of threadID and returns
// channels of arrivals and errors. Arrivals are emitted in stream order. The
// returned cancel function stops consumption, closes the sink and closes
// both channels.
//
//	arrivals, errs, cancel, err := sub.Subscribe(ctx, "t-42")
//	defer cancel()
//	err = session.Run(ctx, arrivals, out)
func (s *Subscriber) Subscribe(
	ctx context.Context,
	threadID string,
	opts ...streamopts.Sink,
) (<-chan dispatch.Arrival, <-chan error, context.CancelFunc, error) {
	streamID, err := s.streamID(threadID)
	if err != nil {
		return nil, nil, nil, err
	}
	str, err := s.client.Stream(streamID)
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := str.NewSink(ctx, s.name, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	arrivals := make(chan dispatch.Arrival, s.buffer)
	errs := make(chan error, 1)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.consume(runCtx, sink, arrivals, errs)
	}()
	var once sync.Once
	cancelFunc := func() {
		once.Do(func() {
			cancel()
			<-done
			sink.Close(context.Background())
		})
	}
	return arrivals, errs, cancelFunc, nil
}

// consume forwards decoded arrivals and acks each one once it is handed
// off. It stops at the first decode or ack failure.
func (s *Subscriber) consume(ctx context.Context, sink clientspulse.Sink, out chan<- dispatch.Arrival, errs chan<- error) {
	defer close(out)
	defer close(errs)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			a, err := s.decode(evt.Payload)
			if err != nil {
				errs <- fmt.Errorf("pulse decode payload: %w", err)
				return
			}
			select {
			case out <- a:
			case <-ctx.Done():
				return
			}
			if err := sink.Ack(ctx, evt); err != nil {
				errs <- fmt.Errorf("pulse ack: %w", err)
				return
			}
		}
	}
}

func decodeEnvelope(payload []byte) (dispatch.Arrival, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return dispatch.Arrival{}, err
	}
	if env.Arrival.Type == "" {
		return dispatch.Arrival{}, errors.New("envelope missing arrival")
	}
	return env.Arrival, nil
}
