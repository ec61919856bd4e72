package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/arjunv/quotaproxy/internal/config"
	"github.com/arjunv/quotaproxy/internal/keyengine"
)

func writeAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchConfigReloadsEngineKeyPools(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	writeAtomic(t, configPath, `{
		"priority_keys": ["K1"],
		"models": {"flash": {"tpm_limit": 1000}},
		"premium_model": "flash",
		"default_model": "flash"
	}`)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	engine, _, _, err := buildServer(cfg, configPath, nil)
	require.NoError(t, err)
	require.Equal(t, []keyengine.Key{"K1"}, engine.Status().PriorityKeys)

	runtime := config.NewRuntime(cfg)
	logger := zerolog.Nop()
	stop, err := watchConfig(configPath, runtime, engine, &logger)
	require.NoError(t, err)
	defer stop()

	writeAtomic(t, configPath, `{
		"priority_keys": ["K2"],
		"models": {"flash": {"tpm_limit": 1000}},
		"premium_model": "flash",
		"default_model": "flash"
	}`)

	require.Eventually(t, func() bool {
		status := engine.Status()
		return len(status.PriorityKeys) == 1 && status.PriorityKeys[0] == "K2"
	}, 3*time.Second, 10*time.Millisecond)

	require.Equal(t, []string{"K2"}, runtime.Get().PriorityKeys)
}
