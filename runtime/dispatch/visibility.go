package dispatch

import (
	"goa.design/partview/runtime/extract"
	"goa.design/partview/runtime/parts"
)

// ReasoningVisible reports whether reasoning parts of a message render:
// only for the last message while the stream is actively streaming. Once
// the stream settles, reasoning disappears from view.
func ReasoningVisible(isLast bool, status parts.Status) bool {
	return isLast && status.Streaming()
}

// NeedsFallback reports whether the part at index of m is a completed
// network trace that requires synthesized content: m has no visible text
// part, m is the last message and the stream has settled.
func NeedsFallback(m parts.Message, index int, isLast bool, status parts.Status) bool {
	if !isLast || !status.Settled() || index < 0 || index >= len(m.Parts) {
		return false
	}
	np, ok := m.Parts[index].(parts.NetworkPart)
	if !ok || !np.Completed() {
		return false
	}
	return !m.HasVisibleText()
}

// Synthesize builds the fallback for the network part at index of m using
// the message's sources.
func Synthesize(m parts.Message, index int) (extract.Fallback, bool) {
	if index < 0 || index >= len(m.Parts) {
		return extract.Fallback{}, false
	}
	np, ok := m.Parts[index].(parts.NetworkPart)
	if !ok {
		return extract.Fallback{}, false
	}
	return extract.BuildFallback(np, extract.Sources(m.Parts)), true
}
