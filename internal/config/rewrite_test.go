package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriterRemoveKey(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", testJSONDoc)

	rw, err := NewRewriter(path)
	require.NoError(t, err)
	require.NoError(t, rw.RemoveKey("AIza-one"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotContains(t, cfg.PriorityKeys, "AIza-one")
	require.Contains(t, cfg.PriorityKeys, "AIza-two")
	// Unrelated fields survive the rewrite untouched.
	require.Equal(t, "gemini-2.5-pro", cfg.DefaultModel)
	require.Equal(t, "America/Los_Angeles", cfg.Timezone)
}

func TestRewriterRemoveKeyFromSecondary(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", testJSONDoc)

	rw, err := NewRewriter(path)
	require.NoError(t, err)
	require.NoError(t, rw.RemoveKey("AIza-three"))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Empty(t, cfg.SecondaryKeys)
}

func TestRewriterRemoveKeyIsNoopWhenAbsent(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, "config.json", testJSONDoc)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	rw, err := NewRewriter(path)
	require.NoError(t, err)
	require.NoError(t, rw.RemoveKey("not-a-configured-key"))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRewriterPreservesFieldsUnknownToConfigStruct(t *testing.T) {
	t.Parallel()

	docWithExtraField := `{
	  "priority_keys": ["AIza-one", "AIza-two"],
	  "models": {"gemini-2.5-pro": {"tpm_limit": 100000}},
	  "default_model": "gemini-2.5-pro",
	  "comment": "do not remove this on a ban rewrite",
	  "operator_notes": {"owner": "sre-team"}
	}`
	path := writeTemp(t, "config.json", docWithExtraField)

	rw, err := NewRewriter(path)
	require.NoError(t, err)
	require.NoError(t, rw.RemoveKey("AIza-one"))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(after), "do not remove this on a ban rewrite")
	require.Contains(t, string(after), "sre-team")
}

func TestRewriterWritesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(testJSONDoc), 0o600))

	rw, err := NewRewriter(path)
	require.NoError(t, err)
	require.NoError(t, rw.RemoveKey("AIza-one"))

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err), "temp file must not survive a successful rewrite")
}
