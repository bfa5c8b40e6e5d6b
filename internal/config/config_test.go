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
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://multisnake.xyz", cfg.ServerURL)
	assert.Equal(t, []string{"classic-classic_0", "classic-classic_1"}, cfg.Rooms)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.False(t, cfg.Log)
	assert.Empty(t, cfg.Name)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	body := `name: HackBot
rooms:
  - classic_0
server_url: https://example.test
api_key: secret-key
uid: b431e640-0000-0000-0000-000000000000
log: true
poll_interval: 10s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "HackBot", cfg.Name)
	assert.Equal(t, []string{"classic_0"}, cfg.Rooms)
	assert.Equal(t, "https://example.test", cfg.ServerURL)
	assert.Equal(t, "secret-key", cfg.APIKey)
	assert.True(t, cfg.Log)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
}
