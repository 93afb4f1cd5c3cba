// Package registry maps message parts to renderers.
//
// A Registry holds entries ordered by descending priority, ties broken by
// registration order. Lookups read an immutable snapshot and never block;
// Register and Unregister build a new snapshot and publish it atomically, so
// concurrent readers always observe either the old or the new ordering.
package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"goa.design/partview/runtime/extract"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/telemetry"
)

// ErrInvalidEntry indicates an entry without key, matcher or renderer.
var ErrInvalidEntry = errors.New("invalid renderer entry")

type (
	// Presentation is the opaque value produced by a renderer.
	Presentation any

	// Input is everything a renderer may consider. Facts about sibling parts
	// and stream state are computed by the dispatcher and passed explicitly.
	Input struct {
		// Part is the classified part to render.
		Part parts.Part
		// Kind is the part's kind.
		Kind parts.Kind
		// Message is the message owning the part.
		Message parts.Message
		// Index is the part's position within Message.Parts.
		Index int
		// IsLast reports whether Message is the last message of the
		// conversation.
		IsLast bool
		// Status is the current stream status.
		Status parts.Status
		// HasTextSibling reports whether Message has a visible text part.
		HasTextSibling bool
		// NetworkReason is the routing reason of the message's network
		// trace, if any.
		NetworkReason string
		// Sources are the sources referenced by Message.
		Sources []parts.SourcePart
		// Fallback is set when the part is a completed network trace that
		// requires synthesized content.
		Fallback *extract.Fallback
	}

	// Renderer produces a presentation for a part.
	Renderer interface {
		Render(ctx context.Context, in Input) (Presentation, error)
	}

	// RendererFunc adapts a function to the Renderer interface.
	RendererFunc func(ctx context.Context, in Input) (Presentation, error)

	// Entry associates a renderer with the parts it handles.
	Entry struct {
		// Key uniquely identifies the entry. Registering an existing key
		// replaces the entry.
		Key string
		// Match selects the parts handled by the entry.
		Match Matcher
		// Renderer renders matched parts.
		Renderer Renderer
		// Priority orders entries; higher wins.
		Priority int
	}

	// Registry is a concurrency-safe renderer registry.
	Registry struct {
		mu     sync.Mutex
		seq    uint64
		snap   atomic.Pointer[snapshot]
		logger telemetry.Logger
	}

	// Option configures a Registry.
	Option func(*Registry)

	snapshot struct {
		ordered []registered
	}

	registered struct {
		Entry
		seq      uint64
		disabled bool
	}
)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, in Input) (Presentation, error) {
	return f(ctx, in)
}

// WithLogger sets the logger used to report registry changes.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{logger: telemetry.NewNoopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	r.snap.Store(&snapshot{})
	return r
}

// Register inserts e, or replaces the entry with the same key. A replaced
// entry keeps its original registration order for tie-breaking.
func (r *Registry) Register(e Entry) error {
	if e.Key == "" || e.Match == nil || e.Renderer == nil {
		return fmt.Errorf("%w: key=%q", ErrInvalidEntry, e.Key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load().ordered
	next := make([]registered, 0, len(cur)+1)
	replaced := false
	for _, reg := range cur {
		if reg.Key == e.Key {
			next = append(next, registered{Entry: e, seq: reg.seq, disabled: reg.disabled})
			replaced = true
			continue
		}
		next = append(next, reg)
	}
	if !replaced {
		r.seq++
		next = append(next, registered{Entry: e, seq: r.seq})
	}
	r.publish(next)
	r.logger.Debug(context.Background(), "renderer registered", "key", e.Key, "priority", e.Priority, "replaced", replaced)
	return nil
}

// MustRegister registers e and panics if it is invalid.
func (r *Registry) MustRegister(e Entry) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// Unregister removes the entry with the given key and reports whether it
// existed.
func (r *Registry) Unregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load().ordered
	idx := slices.IndexFunc(cur, func(reg registered) bool { return reg.Key == key })
	if idx < 0 {
		return false
	}
	next := slices.Delete(slices.Clone(cur), idx, idx+1)
	r.publish(next)
	r.logger.Debug(context.Background(), "renderer unregistered", "key", key)
	return true
}

// Lookup returns the highest priority enabled entry whose matcher accepts
// p. Equal priorities resolve to the earliest registered entry. The boolean
// is false when no entry matches.
func (r *Registry) Lookup(p parts.Part) (Entry, bool) {
	for _, reg := range r.snap.Load().ordered {
		if reg.disabled {
			continue
		}
		if reg.Match(p) {
			return reg.Entry, true
		}
	}
	return Entry{}, false
}

// Entries returns the enabled entries in lookup order.
func (r *Registry) Entries() []Entry {
	cur := r.snap.Load().ordered
	out := make([]Entry, 0, len(cur))
	for _, reg := range cur {
		if !reg.disabled {
			out = append(out, reg.Entry)
		}
	}
	return out
}

// Len returns the number of registered entries, including disabled ones.
func (r *Registry) Len() int {
	return len(r.snap.Load().ordered)
}

// update applies fn to the entry with the given key.
func (r *Registry) update(key string, fn func(*registered)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := slices.Clone(r.snap.Load().ordered)
	idx := slices.IndexFunc(next, func(reg registered) bool { return reg.Key == key })
	if idx < 0 {
		return false
	}
	fn(&next[idx])
	r.publish(next)
	return true
}

// publish sorts entries and stores the new snapshot. Callers hold r.mu.
func (r *Registry) publish(entries []registered) {
	slices.SortFunc(entries, func(a, b registered) int {
		return cmp.Or(cmp.Compare(b.Priority, a.Priority), cmp.Compare(a.seq, b.seq))
	})
	r.snap.Store(&snapshot{ordered: entries})
}
