package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultRelays, cfg.Relays)
	assert.Equal(t, 15*time.Second, cfg.QueryTimeout)
	assert.EqualValues(t, 5, cfg.MaxInFlight)
	assert.Equal(t, 4096, cfg.InboxSize)
	assert.True(t, cfg.VerifySignatures)
	assert.False(t, cfg.AllowPrivateRelays)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
relays:
  - wss://relay.example.com
query_timeout: 3s
max_in_flight: 2
verify_signatures: false
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"wss://relay.example.com"}, cfg.Relays)
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout)
	assert.EqualValues(t, 2, cfg.MaxInFlight)
	assert.False(t, cfg.VerifySignatures)
	assert.Equal(t, 4096, cfg.InboxSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("NOSTR_QUERY_TIMEOUT", "750ms")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.QueryTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
