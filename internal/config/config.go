// Package config loads the application configuration from a YAML file,
// falling back to defaults for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"emma/internal/browser"
	"emma/internal/detect"
)

// EngineConfig tunes the recognition pipeline.
type EngineConfig struct {
	// MinConfidence gates automatic captures. The universal fallback sits at
	// 0.3, so values above that disable fallback captures entirely.
	MinConfidence float64 `yaml:"min_confidence"`
}

// MediaConfig tunes the capture cascade.
type MediaConfig struct {
	// InterElementDelayMs paces batch captures so a media-heavy page doesn't
	// hammer the renderer.
	InterElementDelayMs int `yaml:"inter_element_delay_ms"`
	JPEGQuality         int `yaml:"jpeg_quality"`
	// EnableDOMClone turns on the clone-and-rasterize fallback step.
	EnableDOMClone bool `yaml:"enable_dom_clone"`
}

// Delay returns the inter-element pacing delay.
func (m MediaConfig) Delay() time.Duration {
	if m.InterElementDelayMs <= 0 {
		return 150 * time.Millisecond
	}
	return time.Duration(m.InterElementDelayMs) * time.Millisecond
}

// VaultConfig locates the memory store.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig tunes log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Engine  EngineConfig   `yaml:"engine"`
	Media   MediaConfig    `yaml:"media"`
	Detect  detect.Config  `yaml:"detect"`
	Vault   VaultConfig    `yaml:"vault"`
	Browser browser.Config `yaml:"browser"`
	Logging LoggingConfig  `yaml:"logging"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Engine: EngineConfig{MinConfidence: 0.3},
		Media: MediaConfig{
			InterElementDelayMs: 150,
			JPEGQuality:         85,
		},
		Detect:  detect.DefaultConfig(),
		Vault:   VaultConfig{Path: defaultVaultPath()},
		Browser: browser.DefaultConfig(),
		Logging: LoggingConfig{Level: "info"},
	}
}

func defaultVaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "emma.db"
	}
	return filepath.Join(home, ".emma", "emma.db")
}

// Load reads the configuration at path, layered over defaults. A missing file
// yields the defaults; a malformed one is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
