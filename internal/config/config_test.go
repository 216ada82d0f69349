package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsApplyWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	restoreWd := chdir(t, dir)
	defer restoreWd()

	require.NoError(t, Initialize())

	require.Equal(t, "registrar.log", GetLogfile())
	require.Equal(t, "registrar-queue.db", GetSubdomainRegistrarDBPath())
	require.Equal(t, "registrar.lock", GetLockfile())
	require.Equal(t, 100, GetTxLimit())
	require.Equal(t, 600*time.Second, GetTxFrequency())
	require.Equal(t, "127.0.0.1", GetAPIBindAddress())
	require.Equal(t, 8081, GetAPIBindPort())
}

func TestConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".registrar"), 0o755))
	yaml := "tx_limit: 25\napi_bind_port: 9999\ncore_api_endpoint: \"http://core.example\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".registrar", "config.yaml"), []byte(yaml), 0o644))

	restoreWd := chdir(t, dir)
	defer restoreWd()

	require.NoError(t, Initialize())

	require.Equal(t, 25, GetTxLimit())
	require.Equal(t, 9999, GetAPIBindPort())
	require.Equal(t, "http://core.example", GetCoreAPIEndpoint())
	// Unset keys still fall back to their defaults.
	require.Equal(t, "registrar.log", GetLogfile())
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	restoreWd := chdir(t, dir)
	defer restoreWd()

	t.Setenv("REGISTRAR_TX_LIMIT", "7")
	require.NoError(t, Initialize())

	require.Equal(t, 7, GetTxLimit())
}

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	original, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(original) }
}
