// Package render provides the default renderers. They produce Block values:
// a small, display-agnostic description of what to show for a part, used by
// the command line tools and as a reference for custom renderers.
package render

import (
	"context"
	"fmt"
	"strings"

	"goa.design/partview/runtime/extract"
	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/registry"
)

// Priorities of the default entries. Custom entries registered with a
// higher priority take precedence.
const (
	PriorityDefault  = 0
	PrioritySpecific = 10
)

// Registry keys of the default entries.
const (
	KeyText        = "default/text"
	KeyReasoning   = "default/reasoning"
	KeyTool        = "default/tool"
	KeyWeatherTool = "default/tool-weather"
	KeyDynamicTool = "default/dynamic-tool"
	KeyNetwork     = "default/network"
	KeySource      = "default/source"
)

// Block is a rendered part.
type Block struct {
	// Kind names the block layout, e.g. "text" or "network-fallback".
	Kind string
	// Title is a short heading.
	Title string
	// Body is the main content.
	Body string
	// Items lists secondary lines such as steps or sources.
	Items []string
	// Children nests blocks, used by fallback synthesis.
	Children []Block
}

// Register adds the default entries to r.
func Register(r *registry.Registry) error {
	entries := []registry.Entry{
		{Key: KeyText, Match: registry.MatchKind(parts.KindText), Renderer: registry.RendererFunc(renderText), Priority: PriorityDefault},
		{Key: KeyReasoning, Match: registry.MatchKind(parts.KindReasoning), Renderer: registry.RendererFunc(renderReasoning), Priority: PriorityDefault},
		{Key: KeyTool, Match: registry.MatchKind(parts.KindTool), Renderer: registry.RendererFunc(renderTool), Priority: PriorityDefault},
		{Key: KeyWeatherTool, Match: registry.MatchToolPrefix("weather"), Renderer: registry.RendererFunc(renderWeatherTool), Priority: PrioritySpecific},
		{Key: KeyDynamicTool, Match: registry.MatchKind(parts.KindDynamicTool), Renderer: registry.RendererFunc(renderDynamicTool), Priority: PriorityDefault},
		{Key: KeyNetwork, Match: registry.MatchKind(parts.KindNetwork), Renderer: registry.RendererFunc(renderNetwork), Priority: PriorityDefault},
		{Key: KeySource, Match: registry.MatchKind(parts.KindSource), Renderer: registry.RendererFunc(renderSource), Priority: PriorityDefault},
	}
	for _, e := range entries {
		if err := r.Register(e); err != nil {
			return fmt.Errorf("register %s: %w", e.Key, err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding the default entries.
func NewRegistry(opts ...registry.Option) *registry.Registry {
	r := registry.New(opts...)
	if err := Register(r); err != nil {
		panic(err)
	}
	return r
}

func renderText(_ context.Context, in registry.Input) (registry.Presentation, error) {
	p := in.Part.(parts.TextPart)
	segs := extract.ParseCitations(p.Text, in.Sources)
	var body strings.Builder
	for _, s := range segs {
		body.WriteString(s.Text)
	}
	b := Block{Kind: "text", Body: body.String()}
	for _, src := range extract.Cited(segs) {
		b.Items = append(b.Items, sourceLine(src))
	}
	return b, nil
}

func renderReasoning(_ context.Context, in registry.Input) (registry.Presentation, error) {
	p := in.Part.(parts.ReasoningPart)
	return Block{Kind: "reasoning", Title: "Thinking", Body: p.Text}, nil
}

func renderTool(_ context.Context, in registry.Input) (registry.Presentation, error) {
	p := in.Part.(parts.ToolPart)
	b := Block{Kind: "tool", Title: p.ToolType, Body: p.State}
	switch p.State {
	case parts.ToolOutputReady:
		b.Body = extract.OutputText(p.Output)
	case parts.ToolOutputError:
		b.Body = "error: " + p.ErrorText
	}
	return b, nil
}

func renderWeatherTool(ctx context.Context, in registry.Input) (registry.Presentation, error) {
	p := in.Part.(parts.ToolPart)
	if p.State != parts.ToolOutputReady {
		return renderTool(ctx, in)
	}
	s, ok := extract.StructuredPayload(parts.NetworkPart{Output: p.Output})
	if !ok {
		return renderTool(ctx, in)
	}
	return structuredBlock(s), nil
}

func renderDynamicTool(_ context.Context, in registry.Input) (registry.Presentation, error) {
	p := in.Part.(parts.DynamicToolPart)
	b := Block{Kind: "dynamic-tool", Title: p.ToolName}
	for _, child := range p.ChildMessages() {
		switch child.Type {
		case "tool":
			b.Items = append(b.Items, "tool "+child.ToolName)
		case "text":
			if b.Body != "" {
				b.Body += "\n"
			}
			b.Body += child.Content
		}
	}
	return b, nil
}

func renderNetwork(_ context.Context, in registry.Input) (registry.Presentation, error) {
	p := in.Part.(parts.NetworkPart)
	if in.Fallback != nil {
		return fallbackBlock(*in.Fallback), nil
	}
	return traceBlock(p), nil
}

func renderSource(_ context.Context, in registry.Input) (registry.Presentation, error) {
	p := in.Part.(parts.SourcePart)
	return Block{Kind: "source", Title: p.Title, Body: p.URL}, nil
}

func fallbackBlock(fb extract.Fallback) Block {
	out := Block{Kind: "network-fallback"}
	for _, b := range fb.Blocks {
		switch b.Kind {
		case extract.BlockReason:
			out.Children = append(out.Children, Block{Kind: "reason", Body: b.Text})
		case extract.BlockStructured:
			out.Children = append(out.Children, structuredBlock(*b.Structured))
		case extract.BlockTrace:
			out.Children = append(out.Children, traceBlock(*b.Network))
		case extract.BlockSources:
			sb := Block{Kind: "sources"}
			for _, s := range b.Sources {
				sb.Items = append(sb.Items, sourceLine(s))
			}
			out.Children = append(out.Children, sb)
		case extract.BlockOutput:
			out.Children = append(out.Children, Block{Kind: "output", Body: b.Text})
		}
	}
	return out
}

func traceBlock(p parts.NetworkPart) Block {
	b := Block{Kind: "network", Title: p.Name, Body: p.Status}
	for _, s := range p.Steps {
		line := s.Name
		if s.Status != "" {
			line += " (" + s.Status + ")"
		}
		b.Items = append(b.Items, line)
	}
	return b
}

func structuredBlock(s extract.Structured) Block {
	b := Block{Kind: "structured", Title: s.Location, Body: fmt.Sprintf("%g°", s.Temperature)}
	if s.Conditions != "" {
		b.Body += " " + s.Conditions
	}
	return b
}

func sourceLine(s parts.SourcePart) string {
	if s.Title == "" {
		return s.URL
	}
	return s.Title + " <" + s.URL + ">"
}

// Format renders b as indented plain text.
func Format(b Block) string {
	var sb strings.Builder
	format(&sb, b, "")
	return strings.TrimRight(sb.String(), "\n")
}

func format(sb *strings.Builder, b Block, indent string) {
	sb.WriteString(indent + "[" + b.Kind + "]")
	if b.Title != "" {
		sb.WriteString(" " + b.Title)
	}
	sb.WriteString("\n")
	if b.Body != "" {
		for _, line := range strings.Split(b.Body, "\n") {
			sb.WriteString(indent + "  " + line + "\n")
		}
	}
	for _, item := range b.Items {
		sb.WriteString(indent + "  - " + item + "\n")
	}
	for _, child := range b.Children {
		format(sb, child, indent+"  ")
	}
}
