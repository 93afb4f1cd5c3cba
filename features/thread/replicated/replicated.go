// Package replicated provides a replicated-map backed implementation of
// thread.Store.
//
// Threads are persisted in a Pulse replicated map (rmap), which is backed by
// Redis, so history written by one process is visible to every other process
// joined to the same map.
package replicated

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
)

type (
	// Map is the minimal replicated-map contract required by the store.
	//
	// Map is satisfied by `*rmap.Map` from `goa.design/pulse/rmap`.
	// Implementations must be safe for concurrent use.
	Map interface {
		Delete(ctx context.Context, key string) (string, error)
		Get(key string) (string, bool)
		Keys() []string
		Set(ctx context.Context, key, value string) (string, error)
	}

	// Store persists threads in a replicated map.
	//
	// AppendMessages is a read-modify-write of the whole thread: appends
	// issued concurrently by different processes for the same thread may
	// overwrite each other. Appends within one process are serialized.
	Store struct {
		m          Map
		classifier *parts.Classifier
		mu         sync.Mutex
	}

	// Option configures a Store.
	Option func(*Store)

	record struct {
		ID        string          `json:"id"`
		Messages  json.RawMessage `json:"messages"`
		CreatedAt time.Time       `json:"created_at"`
		UpdatedAt time.Time       `json:"updated_at"`
	}
)

const threadKeyPrefix = "partview:thread:"

var _ thread.Store = (*Store)(nil)

// WithClassifier sets the classifier used to decode stored parts.
func WithClassifier(c *parts.Classifier) Option {
	return func(s *Store) {
		if c != nil {
			s.classifier = c
		}
	}
}

// New creates a new replicated store backed by the given map.
func New(m Map, opts ...Option) *Store {
	s := &Store{m: m, classifier: parts.NewClassifier()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoadThread retrieves a thread by id.
func (s *Store) LoadThread(ctx context.Context, threadID string) (thread.Thread, error) {
	if threadID == "" {
		return thread.Thread{}, thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return thread.Thread{}, err
	}
	val, ok := s.m.Get(threadKey(threadID))
	if !ok {
		return thread.Thread{}, thread.ErrThreadNotFound
	}
	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return thread.Thread{}, fmt.Errorf("unmarshal thread %q: %w", threadID, err)
	}
	var msgs parts.Conversation
	if len(rec.Messages) > 0 && string(rec.Messages) != "null" {
		var err error
		if msgs, err = s.classifier.DecodeConversation(rec.Messages); err != nil {
			return thread.Thread{}, fmt.Errorf("decode thread %q: %w", threadID, err)
		}
	}
	return thread.Thread{
		ID:        rec.ID,
		Messages:  msgs,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}, nil
}

// SaveThread creates or replaces a thread.
func (s *Store) SaveThread(ctx context.Context, t thread.Thread) error {
	if t.ID == "" {
		return thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.put(ctx, t)
}

// AppendMessages appends messages, creating the thread when missing.
func (s *Store) AppendMessages(ctx context.Context, threadID string, at time.Time, msgs ...parts.Message) error {
	if threadID == "" {
		return thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.LoadThread(ctx, threadID)
	switch {
	case errors.Is(err, thread.ErrThreadNotFound):
		t = thread.Thread{ID: threadID, CreatedAt: at.UTC()}
	case err != nil:
		return err
	}
	t.Messages = append(slices.Clip(t.Messages), msgs...)
	t.UpdatedAt = at.UTC()
	return s.put(ctx, t)
}

// DeleteThread removes a thread.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key := threadKey(threadID)
	if _, ok := s.m.Get(key); !ok {
		return thread.ErrThreadNotFound
	}
	if _, err := s.m.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete thread %q: %w", threadID, err)
	}
	return nil
}

// ThreadIDs returns the identifiers of all stored threads in lexical order.
func (s *Store) ThreadIDs() []string {
	var ids []string
	for _, k := range s.m.Keys() {
		if id, ok := strings.CutPrefix(k, threadKeyPrefix); ok {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) put(ctx context.Context, t thread.Thread) error {
	msgs, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("marshal thread %q messages: %w", t.ID, err)
	}
	b, err := json.Marshal(record{ID: t.ID, Messages: msgs, CreatedAt: t.CreatedAt.UTC(), UpdatedAt: t.UpdatedAt.UTC()})
	if err != nil {
		return fmt.Errorf("marshal thread %q: %w", t.ID, err)
	}
	if _, err := s.m.Set(ctx, threadKey(t.ID), string(b)); err != nil {
		return fmt.Errorf("store thread %q: %w", t.ID, err)
	}
	return nil
}

func threadKey(id string) string {
	return threadKeyPrefix + id
}
