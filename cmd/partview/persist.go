package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"goa.design/clue/log"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/thread"
)

// recorder persists a followed conversation each time its stream settles.
// Messages added since the last write are appended; when an already stored
// message changed the whole thread is saved again.
type recorder struct {
	store    thread.Store
	threadID string
	now      func() time.Time
	saved    parts.Conversation
}

func newRecorder(store thread.Store, threadID string, history parts.Conversation) *recorder {
	return &recorder{
		store:    store,
		threadID: threadID,
		now:      func() time.Time { return time.Now().UTC() },
		saved:    history.Clone(),
	}
}

func (r *recorder) settled(ctx context.Context, conv parts.Conversation) error {
	at := r.now()
	same, err := samePrefix(conv, r.saved)
	if err != nil {
		return err
	}
	switch {
	case same && len(conv) == len(r.saved):
		return nil
	case same:
		added := conv[len(r.saved):]
		if err := r.store.AppendMessages(ctx, r.threadID, at, added...); err != nil {
			return fmt.Errorf("append messages: %w", err)
		}
		log.Debug(ctx, log.KV{K: "thread", V: r.threadID}, log.KV{K: "appended", V: len(added)})
	default:
		t := thread.Thread{ID: r.threadID, Messages: conv, CreatedAt: at, UpdatedAt: at}
		if existing, err := r.store.LoadThread(ctx, r.threadID); err == nil {
			t.CreatedAt = existing.CreatedAt
		}
		if err := r.store.SaveThread(ctx, t); err != nil {
			return fmt.Errorf("save thread: %w", err)
		}
		log.Debug(ctx, log.KV{K: "thread", V: r.threadID}, log.KV{K: "saved", V: len(conv)})
	}
	r.saved = conv.Clone()
	return nil
}

// samePrefix reports whether conv starts with the messages of prefix,
// comparing wire forms.
func samePrefix(conv, prefix parts.Conversation) (bool, error) {
	if len(prefix) == 0 {
		return true, nil
	}
	if len(conv) < len(prefix) {
		return false, nil
	}
	a, err := json.Marshal(conv[:len(prefix)])
	if err != nil {
		return false, err
	}
	b, err := json.Marshal(prefix)
	if err != nil {
		return false, err
	}
	return string(a) == string(b), nil
}
