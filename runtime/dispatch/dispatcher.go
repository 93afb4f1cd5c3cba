// Package dispatch routes classified parts to renderers.
//
// The Dispatcher renders parts of complete messages and conversations; the
// Session applies live arrivals one at a time, in arrival order, and
// dispatches each as it lands. Visibility rules (reasoning only while
// streaming the last message, fallback synthesis for settled network
// traces without text) are evaluated at dispatch time and never mutate the
// conversation.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"

	"goa.design/partview/runtime/extract"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/registry"
	"goa.design/partview/runtime/telemetry"
)

// SkipReason explains why a part produced no presentation.
type SkipReason string

const (
	// SkipUnclassified marks unclassified and malformed parts.
	SkipUnclassified SkipReason = "unclassified"
	// SkipHidden marks parts hidden by a visibility rule.
	SkipHidden SkipReason = "hidden"
	// SkipDuplicateReasoning marks reasoning repeating the network reason.
	SkipDuplicateReasoning SkipReason = "duplicate_reasoning"
	// SkipNoRenderer marks parts no registry entry matched.
	SkipNoRenderer SkipReason = "no_renderer"
	// SkipRenderFailed marks parts whose renderer returned an error or
	// panicked.
	SkipRenderFailed SkipReason = "render_failed"
)

type (
	// Dispatcher routes parts to the renderers of a registry.
	Dispatcher struct {
		reg        *registry.Registry
		tel        telemetry.Set
		production bool
	}

	// Option configures a Dispatcher.
	Option func(*Dispatcher)

	// View is the conversation-level context a message is rendered in.
	View struct {
		// IsLast reports whether the message is the last one.
		IsLast bool
		// Status is the stream status.
		Status parts.Status
	}

	// Output is the result of dispatching one part.
	Output struct {
		MessageID string
		Index     int
		Kind      parts.Kind
		// Key is the registry key of the renderer that handled the part.
		Key          string
		Presentation registry.Presentation
		Rendered     bool
		Skip         SkipReason
		// Fallback is set when fallback content was synthesized.
		Fallback *extract.Fallback
	}

	// messageFacts are computed once per message and shared by its parts.
	messageFacts struct {
		hasText bool
		reason  string
		sources []parts.SourcePart
	}
)

// WithTelemetry sets the logging, metrics and tracing handles.
func WithTelemetry(tel telemetry.Set) Option {
	return func(d *Dispatcher) {
		d.tel = tel
	}
}

// WithProduction disables developer warnings for parts without renderer.
func WithProduction(production bool) Option {
	return func(d *Dispatcher) {
		d.production = production
	}
}

// New returns a Dispatcher backed by reg.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{reg: reg}
	for _, opt := range opts {
		opt(d)
	}
	d.tel = d.tel.WithDefaults()
	return d
}

// DispatchConversation dispatches every part of conv. Only the last message
// is considered last.
func (d *Dispatcher) DispatchConversation(ctx context.Context, conv parts.Conversation, status parts.Status) []Output {
	ctx, span := d.tel.Tracer.Start(ctx, "dispatch.conversation")
	defer span.End()

	var outs []Output
	for i, m := range conv {
		outs = append(outs, d.DispatchMessage(ctx, m, View{IsLast: i == len(conv)-1, Status: status})...)
	}
	return outs
}

// DispatchMessage dispatches every part of m in order.
func (d *Dispatcher) DispatchMessage(ctx context.Context, m parts.Message, view View) []Output {
	facts := factsOf(m)
	outs := make([]Output, 0, len(m.Parts))
	for i := range m.Parts {
		outs = append(outs, d.dispatch(ctx, m, i, view, facts))
	}
	return outs
}

// DispatchPart dispatches the part at index of m.
func (d *Dispatcher) DispatchPart(ctx context.Context, m parts.Message, index int, view View) Output {
	if index < 0 || index >= len(m.Parts) {
		return Output{MessageID: m.ID, Index: index, Kind: parts.KindMalformed, Skip: SkipUnclassified}
	}
	return d.dispatch(ctx, m, index, view, factsOf(m))
}

func factsOf(m parts.Message) messageFacts {
	reason, _ := extract.MessageNetworkReason(m)
	return messageFacts{
		hasText: m.HasVisibleText(),
		reason:  reason,
		sources: extract.Sources(m.Parts),
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, m parts.Message, index int, view View, facts messageFacts) Output {
	p := m.Parts[index]
	kind := p.Kind()
	out := Output{MessageID: m.ID, Index: index, Kind: kind}

	if !kind.Dispatchable() {
		d.tel.Logger.Debug(ctx, "part skipped", "message_id", m.ID, "index", index, "kind", string(kind))
		return d.skip(out, SkipUnclassified)
	}
	switch v := p.(type) {
	case parts.ReasoningPart:
		if !ReasoningVisible(view.IsLast, view.Status) {
			return d.skip(out, SkipHidden)
		}
		if facts.reason != "" && strings.TrimSpace(v.Text) == facts.reason {
			return d.skip(out, SkipDuplicateReasoning)
		}
	case parts.TextPart:
		if parts.IsNetworkMarker(v.Text) {
			return d.skip(out, SkipHidden)
		}
	}

	in := registry.Input{
		Part:           p,
		Kind:           kind,
		Message:        m,
		Index:          index,
		IsLast:         view.IsLast,
		Status:         view.Status,
		HasTextSibling: facts.hasText,
		NetworkReason:  facts.reason,
		Sources:        facts.sources,
	}
	if NeedsFallback(m, index, view.IsLast, view.Status) {
		np := p.(parts.NetworkPart)
		fb := extract.BuildFallback(np, facts.sources)
		in.Fallback = &fb
		out.Fallback = &fb
	}

	entry, ok := d.reg.Lookup(p)
	if !ok {
		if !d.production {
			d.tel.Logger.Warn(ctx, "no renderer registered for part",
				"message_id", m.ID, "index", index, "kind", string(kind), "type", typeOf(p))
		}
		return d.skip(out, SkipNoRenderer)
	}
	out.Key = entry.Key

	pres, err := render(ctx, entry.Renderer, in)
	if err != nil {
		span := d.tel.Tracer.Span(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		d.tel.Logger.Error(ctx, "renderer failed",
			"message_id", m.ID, "index", index, "renderer", entry.Key, "err", err)
		return d.skip(out, SkipRenderFailed)
	}
	out.Presentation = pres
	out.Rendered = true
	d.tel.Metrics.IncCounter("partview.dispatch.parts", 1, "kind", string(kind), "outcome", "rendered")
	return out
}

func (d *Dispatcher) skip(out Output, reason SkipReason) Output {
	out.Skip = reason
	d.tel.Metrics.IncCounter("partview.dispatch.parts", 1, "kind", string(out.Kind), "outcome", string(reason))
	return out
}

// render isolates renderer panics so one faulty renderer cannot stop the
// dispatch loop.
func render(ctx context.Context, r registry.Renderer, in registry.Input) (pres registry.Presentation, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("renderer panic: %v", rec)
		}
	}()
	return r.Render(ctx, in)
}

func typeOf(p parts.Part) string {
	if t, ok := p.(parts.ToolPart); ok {
		return t.Type()
	}
	return string(p.Kind())
}
