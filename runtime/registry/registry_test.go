package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/registry"
)

func render(name string) registry.Renderer {
	return registry.RendererFunc(func(context.Context, registry.Input) (registry.Presentation, error) {
		return name, nil
	})
}

func entry(key string, priority int, m registry.Matcher) registry.Entry {
	return registry.Entry{Key: key, Match: m, Renderer: render(key), Priority: priority}
}

func TestLookupPriorityAndTies(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(entry("generic-tool", 0, registry.MatchKind(parts.KindTool))))
	require.NoError(t, r.Register(entry("weather", 10, registry.MatchTool("weather"))))
	require.NoError(t, r.Register(entry("weather-alt", 10, registry.MatchTool("weather"))))
	require.NoError(t, r.Register(entry("text", 0, registry.MatchKind(parts.KindText))))

	e, ok := r.Lookup(parts.ToolPart{ToolType: "weather"})
	require.True(t, ok)
	require.Equal(t, "weather", e.Key)

	e, ok = r.Lookup(parts.ToolPart{ToolType: "search"})
	require.True(t, ok)
	require.Equal(t, "generic-tool", e.Key)

	_, ok = r.Lookup(parts.SourcePart{URL: "https://a"})
	require.False(t, ok)
}

func TestRegisterOverwriteKeepsOrder(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Register(entry("a", 5, registry.MatchKind(parts.KindText))))
	require.NoError(t, r.Register(entry("b", 5, registry.MatchKind(parts.KindText))))
	require.NoError(t, r.Register(entry("a", 5, registry.MatchKind(parts.KindText))))
	require.Equal(t, 2, r.Len())

	e, ok := r.Lookup(parts.TextPart{Text: "x"})
	require.True(t, ok)
	require.Equal(t, "a", e.Key)

	require.NoError(t, r.Register(entry("a", 1, registry.MatchKind(parts.KindText))))
	e, _ = r.Lookup(parts.TextPart{Text: "x"})
	require.Equal(t, "b", e.Key)
}

func TestRegisterRejectsInvalidEntries(t *testing.T) {
	r := registry.New()
	require.ErrorIs(t, r.Register(registry.Entry{Match: registry.MatchKind(parts.KindText), Renderer: render("x")}), registry.ErrInvalidEntry)
	require.ErrorIs(t, r.Register(registry.Entry{Key: "x", Renderer: render("x")}), registry.ErrInvalidEntry)
	require.ErrorIs(t, r.Register(registry.Entry{Key: "x", Match: registry.MatchKind(parts.KindText)}), registry.ErrInvalidEntry)
	require.Panics(t, func() { r.MustRegister(registry.Entry{}) })
	require.Zero(t, r.Len())
}

func TestUnregister(t *testing.T) {
	r := registry.New()
	r.MustRegister(entry("high", 10, registry.MatchKind(parts.KindText)))
	r.MustRegister(entry("low", 0, registry.MatchKind(parts.KindText)))

	require.True(t, r.Unregister("high"))
	require.False(t, r.Unregister("high"))
	e, ok := r.Lookup(parts.TextPart{})
	require.True(t, ok)
	require.Equal(t, "low", e.Key)
	require.True(t, r.Unregister("low"))
	_, ok = r.Lookup(parts.TextPart{})
	require.False(t, ok)
}

func TestMatchers(t *testing.T) {
	tool := parts.ToolPart{ToolType: "weather_current"}
	require.True(t, registry.MatchToolPrefix("weather")(tool))
	require.False(t, registry.MatchToolPrefix("search")(tool))
	require.True(t, registry.MatchTool("planner")(parts.DynamicToolPart{ToolName: "planner"}))
	require.False(t, registry.MatchTool("planner")(parts.TextPart{}))
	require.True(t, registry.MatchNetwork("")(parts.NetworkPart{Name: "x"}))
	require.False(t, registry.MatchNetwork("y")(parts.NetworkPart{Name: "x"}))
	both := registry.MatchAll(registry.MatchKind(parts.KindTool), registry.MatchToolPrefix("weather"))
	require.True(t, both(tool))
	require.False(t, both(parts.ToolPart{ToolType: "search"}))
	either := registry.MatchAny(registry.MatchKind(parts.KindText), registry.MatchKind(parts.KindReasoning))
	require.True(t, either(parts.ReasoningPart{}))
	require.False(t, either(tool))
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	r := registry.New()
	r.MustRegister(entry("base", 0, registry.MatchKind(parts.KindText)))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				e, ok := r.Lookup(parts.TextPart{Text: "x"})
				if !ok {
					t.Errorf("reader %d: lookup failed", i)
					return
				}
				if e.Key != "base" && e.Key != "override" {
					t.Errorf("reader %d: unexpected key %q", i, e.Key)
					return
				}
			}
		}()
	}
	for range 100 {
		r.MustRegister(entry("override", 10, registry.MatchKind(parts.KindText)))
		r.Unregister("override")
	}
	wg.Wait()
}

func TestLookupProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	priorities := gen.SliceOfN(6, gen.IntRange(-3, 3))

	properties.Property("lookup returns the earliest entry with the highest priority", prop.ForAll(
		func(ps []int) bool {
			r := registry.New()
			best, bestKey := 0, ""
			for i, p := range ps {
				key := fmt.Sprintf("e%d", i)
				r.MustRegister(entry(key, p, registry.MatchKind(parts.KindText)))
				if bestKey == "" || p > best {
					best, bestKey = p, key
				}
			}
			e, ok := r.Lookup(parts.TextPart{})
			return ok && e.Key == bestKey
		},
		priorities,
	))

	properties.Property("lookup is deterministic", prop.ForAll(
		func(ps []int) bool {
			r := registry.New()
			for i, p := range ps {
				r.MustRegister(entry(fmt.Sprintf("e%d", i), p, registry.MatchKind(parts.KindText)))
			}
			a, _ := r.Lookup(parts.TextPart{})
			b, _ := r.Lookup(parts.TextPart{})
			return a.Key == b.Key
		},
		priorities,
	))

	properties.TestingRun(t)
}
