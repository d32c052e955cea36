package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Headless)
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.StableWait())
}

func TestConfigZeroValuesFallBack(t *testing.T) {
	var cfg Config
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 1500*time.Millisecond, cfg.StableWait())
	assert.Equal(t, 1280, cfg.viewportWidth())
	assert.Equal(t, 800, cfg.viewportHeight())
}

func TestConfigExplicitValues(t *testing.T) {
	cfg := Config{NavigationTimeoutMs: 5000, StableWaitMs: 200, ViewportWidth: 1920, ViewportHeight: 1080}
	assert.Equal(t, 5*time.Second, cfg.NavigationTimeout())
	assert.Equal(t, 200*time.Millisecond, cfg.StableWait())
	assert.Equal(t, 1920, cfg.viewportWidth())
	assert.Equal(t, 1080, cfg.viewportHeight())
}
