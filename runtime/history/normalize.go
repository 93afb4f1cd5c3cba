// Package history normalizes stored conversations before they are displayed
// and loads them from a thread store.
//
// Normalization runs four stages in sequence:
//
//  1. StripEphemeral removes reasoning parts and scrubs network routing
//     reasons.
//  2. DropNonDisplayable removes network completion checks, internal network
//     marker messages and messages left without displayable content.
//  3. DedupeRuns keeps only the first message of each consecutive run of
//     assistant snapshots produced by one agent network turn.
//  4. Retained messages are returned in their original order.
//
// Normalize is pure and idempotent: it never mutates its input and applying
// it to its own output changes nothing.
package history

import (
	"goa.design/partview/runtime/parts"
)

// Stats counts what normalization removed.
type Stats struct {
	// ReasoningStripped counts removed reasoning parts.
	ReasoningStripped int
	// ReasonsScrubbed counts network steps whose task reason was removed.
	ReasonsScrubbed int
	// CompletionChecks counts dropped network completion check messages.
	CompletionChecks int
	// MarkerMessages counts dropped internal network marker messages.
	MarkerMessages int
	// Empty counts messages dropped for lack of displayable content.
	Empty int
	// Deduplicated counts messages dropped as run continuations.
	Deduplicated int
}

// Dropped returns the number of messages removed.
func (s Stats) Dropped() int {
	return s.CompletionChecks + s.MarkerMessages + s.Empty + s.Deduplicated
}

// Normalize returns the display form of a stored conversation.
func Normalize(conv parts.Conversation) parts.Conversation {
	out, _ := normalize(conv)
	return out
}

func normalize(conv parts.Conversation) (parts.Conversation, Stats) {
	var stats Stats
	stripped := stripEphemeral(conv, &stats)
	kept := dropNonDisplayable(stripped, &stats)
	return dedupeRuns(kept, &stats), stats
}

// StripEphemeral removes every reasoning part and clears the task reason of
// every network step. Everything else in the step is preserved.
func StripEphemeral(conv parts.Conversation) parts.Conversation {
	return stripEphemeral(conv, &Stats{})
}

// DropNonDisplayable removes network completion checks, messages whose text
// is only internal network payload and messages without displayable parts.
func DropNonDisplayable(conv parts.Conversation) parts.Conversation {
	return dropNonDisplayable(conv, &Stats{})
}

// DedupeRuns keeps the first message of each consecutive assistant run that
// starts with a dynamic tool message and continues with dynamic tool or
// text-only assistant messages. Runs end at a user message or at an
// assistant message carrying any other part kind.
func DedupeRuns(conv parts.Conversation) parts.Conversation {
	return dedupeRuns(conv, &Stats{})
}

func stripEphemeral(conv parts.Conversation, stats *Stats) parts.Conversation {
	out := make(parts.Conversation, 0, len(conv))
	for _, m := range conv {
		msg := m.Clone()
		msg.Parts = msg.Parts[:0:0]
		for _, p := range m.Parts {
			switch v := p.(type) {
			case parts.ReasoningPart:
				stats.ReasoningStripped++
				continue
			case parts.NetworkPart:
				p = scrubReasons(v, stats)
			}
			msg.Parts = append(msg.Parts, p)
		}
		out = append(out, msg)
	}
	return out
}

func scrubReasons(np parts.NetworkPart, stats *Stats) parts.NetworkPart {
	if len(np.Steps) == 0 {
		return np
	}
	steps := make([]parts.Step, len(np.Steps))
	for i, step := range np.Steps {
		if step.Task != nil && step.Task.Reason != "" {
			task := *step.Task
			task.Reason = ""
			step.Task = &task
			stats.ReasonsScrubbed++
		}
		steps[i] = step
	}
	np.Steps = steps
	return np
}

func dropNonDisplayable(conv parts.Conversation, stats *Stats) parts.Conversation {
	out := make(parts.Conversation, 0, len(conv))
	for _, m := range conv {
		switch {
		case m.IsCompletionCheck():
			stats.CompletionChecks++
		case hasDisplayable(m):
			out = append(out, m)
		case isMarkerMessage(m):
			stats.MarkerMessages++
		default:
			stats.Empty++
		}
	}
	return out
}

// isMarkerMessage reports whether every text part of m carries the internal
// network marker.
func isMarkerMessage(m parts.Message) bool {
	texts := 0
	for _, p := range m.Parts {
		t, ok := p.(parts.TextPart)
		if !ok {
			continue
		}
		if !parts.IsNetworkMarker(t.Text) {
			return false
		}
		texts++
	}
	return texts > 0
}

func hasDisplayable(m parts.Message) bool {
	for _, p := range m.Parts {
		if t, ok := p.(parts.TextPart); ok && parts.IsNetworkMarker(t.Text) {
			continue
		}
		if parts.Displayable(p) {
			return true
		}
	}
	return false
}

func dedupeRuns(conv parts.Conversation, stats *Stats) parts.Conversation {
	out := make(parts.Conversation, 0, len(conv))
	inRun := false
	for _, m := range conv {
		shape := classifyShape(m)
		if inRun && shape != shapeOther {
			stats.Deduplicated++
			continue
		}
		inRun = shape == shapeDynamic
		out = append(out, m)
	}
	return out
}

type shape int

const (
	// shapeOther is a user message or an assistant message carrying a part
	// kind other than dynamic tool or text.
	shapeOther shape = iota
	// shapeText is an assistant message made only of text.
	shapeText
	// shapeDynamic is an assistant message with at least one dynamic tool
	// part and otherwise only text.
	shapeDynamic
)

// classifyShape ignores unclassified and malformed parts: they are never
// rendered and do not belong to any turn.
func classifyShape(m parts.Message) shape {
	if m.Role != parts.RoleAssistant {
		return shapeOther
	}
	dynamic, text := false, false
	for _, p := range m.Parts {
		switch p.(type) {
		case parts.DynamicToolPart:
			dynamic = true
		case parts.TextPart:
			text = true
		case parts.UnknownPart:
		default:
			return shapeOther
		}
	}
	switch {
	case dynamic:
		return shapeDynamic
	case text:
		return shapeText
	default:
		return shapeOther
	}
}
