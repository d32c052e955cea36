package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Engine.MinConfidence)
	assert.Equal(t, 150*time.Millisecond, cfg.Media.Delay())
	assert.Equal(t, 32, cfg.Detect.MinWidth)
	assert.True(t, cfg.Browser.Headless)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emma.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  min_confidence: 0.5
media:
  inter_element_delay_ms: 200
detect:
  min_width: 64
  min_height: 64
browser:
  headless: false
  viewport_width: 1920
vault:
  path: /tmp/test-vault.db
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Engine.MinConfidence)
	assert.Equal(t, 200*time.Millisecond, cfg.Media.Delay())
	assert.Equal(t, 64, cfg.Detect.MinWidth)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 1920, cfg.Browser.ViewportWidth)
	assert.Equal(t, "/tmp/test-vault.db", cfg.Vault.Path)
	// Untouched sections keep their defaults.
	assert.Equal(t, 85, cfg.Media.JPEGQuality)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
