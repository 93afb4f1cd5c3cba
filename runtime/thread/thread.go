// Package thread defines persisted conversation threads and the store
// contract used to fetch history before normalization.
package thread

import (
	"context"
	"errors"
	"time"

	"goa.design/partview/runtime/parts"
)

type (
	// Thread is a persisted conversation.
	Thread struct {
		// ID is the caller-provided thread identifier.
		ID string
		// Messages holds the raw stored messages, oldest first. Stored
		// history is not normalized.
		Messages parts.Conversation
		// CreatedAt records when the thread was first stored.
		CreatedAt time.Time
		// UpdatedAt records the last write.
		UpdatedAt time.Time
	}

	// Store persists threads.
	//
	// Implementations surface infrastructure failures to callers; a missing
	// thread is reported with ErrThreadNotFound so callers can distinguish
	// "no history" from "history unavailable".
	Store interface {
		// LoadThread returns the thread. Returns ErrThreadNotFound when
		// missing.
		LoadThread(ctx context.Context, threadID string) (Thread, error)
		// SaveThread creates or replaces the thread.
		SaveThread(ctx context.Context, t Thread) error
		// AppendMessages appends messages to the thread, creating it when
		// missing. at stamps UpdatedAt (and CreatedAt on creation).
		AppendMessages(ctx context.Context, threadID string, at time.Time, msgs ...parts.Message) error
		// DeleteThread removes the thread. Returns ErrThreadNotFound when
		// missing.
		DeleteThread(ctx context.Context, threadID string) error
	}
)

var (
	// ErrThreadNotFound indicates the thread does not exist.
	ErrThreadNotFound = errors.New("thread not found")
	// ErrMissingThreadID indicates an empty thread identifier.
	ErrMissingThreadID = errors.New("thread id is required")
)

// Clone returns a deep copy of t.
func (t Thread) Clone() Thread {
	out := t
	out.Messages = t.Messages.Clone()
	return out
}
