package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cardroom.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:8080", cfg.ListenAddress())
	assert.Equal(t, "cardroom.db", cfg.Store.Path)
	assert.Equal(t, 24, cfg.Store.TTLHours)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
server {
  address     = "0.0.0.0"
  port        = 9090
  cors_origin = "https://cards.example.com"
  public_url  = "https://cards.example.com"
  log_level   = "debug"
}

store {
  path      = "/var/lib/cardroom/rooms.db"
  ttl_hours = 48
}

providers {
  email_api_key = "key-123"
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.ListenAddress())
	assert.Equal(t, "https://cards.example.com", cfg.Server.CORS)
	assert.Equal(t, 48, cfg.Store.TTLHours)
	assert.Equal(t, "key-123", cfg.Providers.EmailAPIKey)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileDefaultsOptionalBlocks(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
server {
  port = 9000
}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "cardroom.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Server.LogLevel)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.LogLevel = "loud"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.TTLHours = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadBadHCL(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `server { port = `)
	_, err := Load(path)
	assert.Error(t, err)
}
