package registry

import (
	"slices"
	"strings"

	"goa.design/partview/runtime/parts"
)

// Matcher reports whether an entry handles a part. Matchers must be pure.
type Matcher func(p parts.Part) bool

// MatchKind matches parts of any of the given kinds.
func MatchKind(kinds ...parts.Kind) Matcher {
	return func(p parts.Part) bool {
		return slices.Contains(kinds, p.Kind())
	}
}

// MatchTool matches tool parts (and dynamic tool replays) invoking one of
// the named tools.
func MatchTool(names ...string) Matcher {
	return func(p parts.Part) bool {
		switch v := p.(type) {
		case parts.ToolPart:
			return slices.Contains(names, v.ToolType)
		case parts.DynamicToolPart:
			return slices.Contains(names, v.ToolName)
		default:
			return false
		}
	}
}

// MatchToolPrefix matches tool parts whose tool name starts with prefix.
func MatchToolPrefix(prefix string) Matcher {
	return func(p parts.Part) bool {
		v, ok := p.(parts.ToolPart)
		return ok && strings.HasPrefix(v.ToolType, prefix)
	}
}

// MatchNetwork matches network traces with the given name, or all network
// traces when name is empty.
func MatchNetwork(name string) Matcher {
	return func(p parts.Part) bool {
		v, ok := p.(parts.NetworkPart)
		return ok && (name == "" || v.Name == name)
	}
}

// MatchAll matches parts accepted by every matcher.
func MatchAll(ms ...Matcher) Matcher {
	return func(p parts.Part) bool {
		for _, m := range ms {
			if !m(p) {
				return false
			}
		}
		return true
	}
}

// MatchAny matches parts accepted by at least one matcher.
func MatchAny(ms ...Matcher) Matcher {
	return func(p parts.Part) bool {
		for _, m := range ms {
			if m(p) {
				return true
			}
		}
		return false
	}
}
