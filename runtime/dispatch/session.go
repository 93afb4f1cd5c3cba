package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"goa.design/partview/runtime/parts"
)

// ArrivalType discriminates live arrivals.
type ArrivalType string

const (
	// ArrivalPart carries one part record.
	ArrivalPart ArrivalType = "part"
	// ArrivalStatus carries a stream status change.
	ArrivalStatus ArrivalType = "status"
)

// ErrUnknownArrival indicates an arrival with an unsupported type.
var ErrUnknownArrival = errors.New("unknown arrival type")

type (
	// Arrival is one live stream event.
	Arrival struct {
		Type ArrivalType `json:"type"`
		// MessageID identifies the owning message. When empty the part
		// attaches to the last message if its role matches Role, else
		// starts a new message.
		MessageID string `json:"messageId,omitempty"`
		// Role of the owning message; defaults to assistant.
		Role string `json:"role,omitempty"`
		// Part is the raw part record for ArrivalPart.
		Part json.RawMessage `json:"part,omitempty"`
		// Index, when set, replaces the part at that position instead of
		// appending. Used for text streamed as successive snapshots.
		Index *int `json:"index,omitempty"`
		// Status is the new stream status for ArrivalStatus.
		Status parts.Status `json:"status,omitempty"`
	}

	// Sink receives dispatch outputs.
	Sink interface {
		Send(ctx context.Context, out Output) error
	}

	// SinkFunc adapts a function to the Sink interface.
	SinkFunc func(ctx context.Context, out Output) error

	// Session is the live state of one conversation. Apply must be called
	// from a single goroutine; Conversation and Status may be called
	// concurrently.
	Session struct {
		d          *Dispatcher
		classifier *parts.Classifier
		newID      func() string
		onSettled  func(context.Context, parts.Conversation) error

		mu     sync.RWMutex
		conv   parts.Conversation
		status parts.Status
	}

	// SessionOption configures a Session.
	SessionOption func(*Session)
)

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, out Output) error {
	return f(ctx, out)
}

// WithHistory seeds the session with an already normalized conversation.
func WithHistory(conv parts.Conversation) SessionOption {
	return func(s *Session) {
		s.conv = conv.Clone()
	}
}

// WithClassifier sets the classifier applied to arriving records.
func WithClassifier(c *parts.Classifier) SessionOption {
	return func(s *Session) {
		s.classifier = c
	}
}

// WithIDGenerator sets the generator of identifiers for messages started
// by arrivals without message id.
func WithIDGenerator(fn func() string) SessionOption {
	return func(s *Session) {
		s.newID = fn
	}
}

// WithOnSettled registers fn, called with a copy of the conversation each
// time a status arrival moves the stream from an active status to a settled
// one. Errors returned by fn are logged and do not stop the session.
func WithOnSettled(fn func(ctx context.Context, conv parts.Conversation) error) SessionOption {
	return func(s *Session) {
		s.onSettled = fn
	}
}

// NewSession returns a session in status ready.
func NewSession(d *Dispatcher, opts ...SessionOption) *Session {
	s := &Session{
		d:          d,
		classifier: parts.NewClassifier(),
		newID:      uuid.NewString,
		status:     parts.StatusReady,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Conversation returns a copy of the current conversation.
func (s *Session) Conversation() parts.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conv.Clone()
}

// Status returns the current stream status.
func (s *Session) Status() parts.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Replay dispatches the whole conversation under the current status.
func (s *Session) Replay(ctx context.Context) []Output {
	s.mu.RLock()
	conv, status := s.conv.Clone(), s.status
	s.mu.RUnlock()
	return s.d.DispatchConversation(ctx, conv, status)
}

// Apply folds a into the conversation and dispatches what it affects:
//
//   - a part arrival dispatches the arrived part; when it starts a new
//     message, the previous message is dispatched again first if it holds
//     parts whose visibility depends on being last,
//   - a status arrival dispatches the last message again.
func (s *Session) Apply(ctx context.Context, a Arrival) ([]Output, error) {
	switch a.Type {
	case ArrivalPart:
		return s.applyPart(ctx, a), nil
	case ArrivalStatus:
		return s.applyStatus(ctx, a.Status), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownArrival, a.Type)
	}
}

func (s *Session) applyPart(ctx context.Context, a Arrival) []Output {
	res := s.classifier.Classify(a.Part)
	if res.Err != nil {
		s.d.tel.Logger.Warn(ctx, "malformed part", "message_id", a.MessageID, "err", res.Err)
	}

	s.mu.Lock()
	mi, started := s.locate(a)
	msg := s.conv[mi]
	pi := place(&msg, res.Part, a.Index)
	s.conv[mi] = msg
	status, last := s.status, len(s.conv)-1
	var previous *parts.Message
	if started && mi > 0 && positional(s.conv[mi-1]) {
		prev := s.conv[mi-1]
		previous = &prev
	}
	s.mu.Unlock()

	var outs []Output
	if previous != nil {
		outs = append(outs, s.d.DispatchMessage(ctx, *previous, View{IsLast: false, Status: status})...)
	}
	return append(outs, s.d.DispatchPart(ctx, msg, pi, View{IsLast: mi == last, Status: status}))
}

func (s *Session) applyStatus(ctx context.Context, status parts.Status) []Output {
	s.mu.Lock()
	settled := !s.status.Settled() && status.Settled()
	s.status = status
	var snapshot parts.Conversation
	if settled && s.onSettled != nil {
		snapshot = s.conv.Clone()
	}
	if len(s.conv) == 0 {
		s.mu.Unlock()
		return nil
	}
	last := s.conv[len(s.conv)-1]
	s.mu.Unlock()

	s.d.tel.Logger.Debug(ctx, "stream status changed", "status", string(status))
	if snapshot != nil {
		if err := s.onSettled(ctx, snapshot); err != nil {
			s.d.tel.Logger.Warn(ctx, "settled hook failed", "err", err)
		}
	}
	return s.d.DispatchMessage(ctx, last, View{IsLast: true, Status: status})
}

// positional reports whether m holds parts rendered differently once m is
// no longer the last message.
func positional(m parts.Message) bool {
	for _, p := range m.Parts {
		switch p.(type) {
		case parts.ReasoningPart, parts.NetworkPart:
			return true
		}
	}
	return false
}

// locate returns the index of the message a belongs to, creating it when
// needed. Callers hold s.mu.
func (s *Session) locate(a Arrival) (int, bool) {
	role := a.Role
	if role == "" {
		role = parts.RoleAssistant
	}
	if a.MessageID != "" {
		for i := len(s.conv) - 1; i >= 0; i-- {
			if s.conv[i].ID == a.MessageID {
				return i, false
			}
		}
		s.conv = append(s.conv, parts.Message{ID: a.MessageID, Role: role})
		return len(s.conv) - 1, true
	}
	if n := len(s.conv); n > 0 && s.conv[n-1].Role == role {
		return n - 1, false
	}
	s.conv = append(s.conv, parts.Message{ID: s.newID(), Role: role})
	return len(s.conv) - 1, true
}

// place inserts p into m and returns its index. Parts sharing an identity
// replace the earlier part in place (network traces are merged so steps
// keep their order); an explicit index replaces that position.
func place(m *parts.Message, p parts.Part, index *int) int {
	ps := make([]parts.Part, len(m.Parts), len(m.Parts)+1)
	copy(ps, m.Parts)
	m.Parts = ps

	if index != nil && *index >= 0 && *index < len(ps) {
		ps[*index] = p
		return *index
	}
	if key, ok := parts.Identity(p); ok {
		for i, existing := range ps {
			if k, ok := parts.Identity(existing); ok && k == key {
				if prev, ok := existing.(parts.NetworkPart); ok {
					if next, ok := p.(parts.NetworkPart); ok {
						p = parts.MergeNetwork(prev, next)
					}
				}
				ps[i] = p
				return i
			}
		}
	}
	m.Parts = append(ps, p)
	return len(m.Parts) - 1
}

// Run applies arrivals in order and sends every output to sink. It returns
// nil when arrivals is closed, ctx.Err() when ctx is canceled and the sink
// error when a send fails. Outputs already sent are not undone.
func (s *Session) Run(ctx context.Context, arrivals <-chan Arrival, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-arrivals:
			if !ok {
				return nil
			}
			outs, err := s.Apply(ctx, a)
			if err != nil {
				s.d.tel.Logger.Warn(ctx, "arrival ignored", "err", err)
				continue
			}
			for _, out := range outs {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := sink.Send(ctx, out); err != nil {
					return fmt.Errorf("send dispatch output: %w", err)
				}
			}
		}
	}
}
