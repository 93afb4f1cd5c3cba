package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/partview/runtime/parts"
	"goa.design/partview/runtime/registry"
)

func TestApplyOverrides(t *testing.T) {
	r := registry.New()
	r.MustRegister(entry("text", 0, registry.MatchKind(parts.KindText)))
	r.MustRegister(entry("markdown", 5, registry.MatchKind(parts.KindText)))
	r.MustRegister(entry("reasoning", 0, registry.MatchKind(parts.KindReasoning)))

	o, err := registry.ParseOverrides([]byte(`
priorities:
  text: 10
  missing: 3
disabled:
  - reasoning
`))
	require.NoError(t, err)

	err = r.Apply(o)
	require.ErrorIs(t, err, registry.ErrUnknownKey)
	require.Contains(t, err.Error(), "missing")

	e, ok := r.Lookup(parts.TextPart{})
	require.True(t, ok)
	require.Equal(t, "text", e.Key)

	_, ok = r.Lookup(parts.ReasoningPart{})
	require.False(t, ok)
	require.Len(t, r.Entries(), 2)
	require.Equal(t, 3, r.Len())
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renderers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disabled: [text]\n"), 0o600))
	o, err := registry.LoadOverrides(path)
	require.NoError(t, err)
	require.Equal(t, []string{"text"}, o.Disabled)

	_, err = registry.LoadOverrides(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = registry.ParseOverrides([]byte("priorities: [1, 2"))
	require.Error(t, err)
}
