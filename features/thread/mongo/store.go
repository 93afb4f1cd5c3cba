package mongo

import (
	"context"
	"errors"
	"time"

	clientsmongo "goa.design/partview/features/thread/mongo/clients/mongo"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
)

// Store implements thread.Store by delegating to the Mongo client.
type Store struct {
	client clientsmongo.Client
}

var _ thread.Store = (*Store)(nil)

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// LoadThread retrieves a thread from storage.
func (s *Store) LoadThread(ctx context.Context, threadID string) (thread.Thread, error) {
	return s.client.LoadThread(ctx, threadID)
}

// SaveThread creates or replaces a thread.
func (s *Store) SaveThread(ctx context.Context, t thread.Thread) error {
	return s.client.SaveThread(ctx, t)
}

// AppendMessages appends messages, creating the thread when missing.
func (s *Store) AppendMessages(ctx context.Context, threadID string, at time.Time, msgs ...parts.Message) error {
	return s.client.AppendMessages(ctx, threadID, at, msgs...)
}

// DeleteThread removes a thread.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	return s.client.DeleteThread(ctx, threadID)
}
