// Package memory provides an in-memory implementation of thread.Store.
//
// It is intended for tests and local development. Production deployments
// should use a durable implementation such as features/thread/mongo.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
)

// Store is an in-memory thread.Store. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	threads map[string]thread.Thread
}

var _ thread.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{threads: make(map[string]thread.Thread)}
}

// LoadThread implements thread.Store.
func (s *Store) LoadThread(ctx context.Context, threadID string) (thread.Thread, error) {
	if threadID == "" {
		return thread.Thread{}, thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return thread.Thread{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return thread.Thread{}, thread.ErrThreadNotFound
	}
	return t.Clone(), nil
}

// SaveThread implements thread.Store.
func (s *Store) SaveThread(ctx context.Context, t thread.Thread) error {
	if t.ID == "" {
		return thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threads[t.ID] = t.Clone()
	return nil
}

// AppendMessages implements thread.Store.
func (s *Store) AppendMessages(ctx context.Context, threadID string, at time.Time, msgs ...parts.Message) error {
	if threadID == "" {
		return thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		t = thread.Thread{ID: threadID, CreatedAt: at.UTC()}
	}
	for _, m := range msgs {
		t.Messages = append(t.Messages, m.Clone())
	}
	t.UpdatedAt = at.UTC()
	s.threads[threadID] = t
	return nil
}

// DeleteThread implements thread.Store.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return thread.ErrMissingThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[threadID]; !ok {
		return thread.ErrThreadNotFound
	}
	delete(s.threads, threadID)
	return nil
}

// ThreadIDs returns the stored thread identifiers in lexical order.
func (s *Store) ThreadIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
