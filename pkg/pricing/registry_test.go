package pricing_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pulse/pkg/pricing"
)

const anthropicYAML = `
provider: anthropic
models:
  - model: claude-3-5-sonnet
    input_per_million: 3
    output_per_million: 15
`

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := pricing.NewRegistry()
	require.NoError(t, r.Register(newProvider(t, openaiYAML)))

	got, err := r.Get("openai")
	require.NoError(t, err)
	assert.Equal(t, "openai", got.Name())
}

func TestRegistry_DuplicateRegister(t *testing.T) {
	r := pricing.NewRegistry()
	p := newProvider(t, openaiYAML)
	require.NoError(t, r.Register(p))

	err := r.Register(p)
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistry_GetNotFound(t *testing.T) {
	_, err := pricing.NewRegistry().Get("nonexistent")
	assert.ErrorContains(t, err, "not found")
}

func TestRegistry_FindProviderForModel(t *testing.T) {
	r := pricing.NewRegistry()
	require.NoError(t, r.Register(newProvider(t, openaiYAML)))
	require.NoError(t, r.Register(newProvider(t, anthropicYAML)))

	p, err := r.FindProviderForModel("claude-3-5-sonnet")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())

	_, err = r.FindProviderForModel("llama")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openai.yaml"), []byte(openaiYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "anthropic.yaml"), []byte(anthropicYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	r, err := pricing.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "openai"}, r.List())
}

func TestLoadDir_Missing(t *testing.T) {
	r, err := pricing.LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, r.List())
}

func TestLoadDir_BadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("provider: x\n"), 0o644))
	_, err := pricing.LoadDir(dir)
	assert.Error(t, err)
}
