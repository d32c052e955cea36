// Package browser drives a Chrome instance through the DevTools protocol. It
// loads pages for analysis and implements the renderer-side capture surfaces
// the media cascade needs: element rasterization, in-page fetch, viewport
// screenshots, and DOM-clone rasterization.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds browser configuration.
type Config struct {
	DebuggerURL         string `yaml:"debugger_url"`
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
	StableWaitMs        int    `yaml:"stable_wait_ms"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:            true,
		ViewportWidth:       1280,
		ViewportHeight:      800,
		NavigationTimeoutMs: 30000,
		StableWaitMs:        1500,
	}
}

// NavigationTimeout returns the navigation timeout.
func (c Config) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// StableWait returns how long to wait for the page to settle after load.
func (c Config) StableWait() time.Duration {
	if c.StableWaitMs <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.StableWaitMs) * time.Millisecond
}

func (c Config) viewportWidth() int {
	if c.ViewportWidth <= 0 {
		return 1280
	}
	return c.ViewportWidth
}

func (c Config) viewportHeight() int {
	if c.ViewportHeight <= 0 {
		return 800
	}
	return c.ViewportHeight
}

// Loader owns the Chrome connection and opens pages on it.
type Loader struct {
	cfg Config
	log *zap.Logger

	mu         sync.Mutex
	browser    *rod.Browser
	controlURL string
}

// NewLoader creates a loader. The browser is not started until Start or the
// first Open.
func NewLoader(cfg Config, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{cfg: cfg, log: log}
}

// Start connects to an existing Chrome or launches a new one. Calling Start
// on a healthy connection is a no-op.
func (l *Loader) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.browser != nil {
		if _, err := l.browser.Version(); err == nil {
			return nil
		}
		l.log.Warn("stale browser connection, reconnecting")
		_ = l.browser.Close()
		l.browser = nil
		l.controlURL = ""
	}

	controlURL := l.cfg.DebuggerURL
	if controlURL == "" {
		launch := launcher.New().Headless(l.cfg.Headless)
		if l.cfg.Bin != "" {
			launch = launch.Bin(l.cfg.Bin)
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	l.browser = browser
	l.controlURL = controlURL
	l.log.Info("browser connected", zap.Bool("headless", l.cfg.Headless))
	return nil
}

// ControlURL returns the WebSocket debugger URL.
func (l *Loader) ControlURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.controlURL
}

// Shutdown closes the browser connection.
func (l *Loader) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var err error
	if l.browser != nil {
		err = l.browser.Close()
		l.browser = nil
	}
	l.controlURL = ""
	return err
}

// Open navigates a new page to url and waits for it to settle.
func (l *Loader) Open(ctx context.Context, url string) (*Page, error) {
	if err := l.Start(ctx); err != nil {
		return nil, err
	}

	l.mu.Lock()
	browser := l.browser
	l.mu.Unlock()
	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	p, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             l.cfg.viewportWidth(),
		Height:            l.cfg.viewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(p); err != nil {
		l.log.Warn("failed to set viewport", zap.Error(err))
	}

	if err := p.Context(ctx).Timeout(l.cfg.NavigationTimeout()).Navigate(url); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.Context(ctx).WaitStable(l.cfg.StableWait()); err != nil {
		l.log.Debug("page did not stabilize", zap.String("url", url), zap.Error(err))
	}

	return &Page{page: p, url: url, log: l.log}, nil
}
