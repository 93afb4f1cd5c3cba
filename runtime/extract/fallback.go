package extract

import "goa.design/partview/runtime/parts"

// BlockKind identifies a synthesized fallback block.
type BlockKind string

const (
	// BlockReason carries the network routing reason.
	BlockReason BlockKind = "reason"
	// BlockStructured carries a weather-like structured payload.
	BlockStructured BlockKind = "structured"
	// BlockTrace carries the raw execution trace.
	BlockTrace BlockKind = "trace"
	// BlockSources carries the sources list.
	BlockSources BlockKind = "sources"
	// BlockOutput carries the raw network output as text.
	BlockOutput BlockKind = "output"
)

type (
	// Fallback is the content synthesized for a completed network trace
	// that produced no text part.
	Fallback struct {
		NetworkID string
		Blocks    []Block
	}

	// Block is one synthesized fallback block. Only the fields relevant to
	// Kind are set.
	Block struct {
		Kind       BlockKind
		Text       string
		Structured *Structured
		Network    *parts.NetworkPart
		Sources    []parts.SourcePart
	}
)

// BuildFallback synthesizes the fallback blocks for np in their fixed order:
// reason, structured payload, trace, sources, output text. Absent data
// omits its block; the trace block is always present. sources are the
// sources of the owning message; when nil the trace's own sources are used.
func BuildFallback(np parts.NetworkPart, sources []parts.SourcePart) Fallback {
	fb := Fallback{NetworkID: np.ID}
	if reason, ok := NetworkReason(np); ok {
		fb.Blocks = append(fb.Blocks, Block{Kind: BlockReason, Text: reason})
	}
	if s, ok := StructuredPayload(np); ok {
		fb.Blocks = append(fb.Blocks, Block{Kind: BlockStructured, Structured: &s})
	}
	trace := np
	fb.Blocks = append(fb.Blocks, Block{Kind: BlockTrace, Network: &trace})
	if sources == nil {
		sources = NetworkSources(np)
	}
	if len(sources) > 0 {
		fb.Blocks = append(fb.Blocks, Block{Kind: BlockSources, Sources: sources})
	}
	if text := OutputText(np.Output); text != "" {
		fb.Blocks = append(fb.Blocks, Block{Kind: BlockOutput, Text: text})
	}
	return fb
}

// Kinds returns the block kinds of fb in order.
func (fb Fallback) Kinds() []BlockKind {
	kinds := make([]BlockKind, len(fb.Blocks))
	for i, b := range fb.Blocks {
		kinds[i] = b.Kind
	}
	return kinds
}
