package detect

import (
	"sync"
	"time"
)

// DefaultRescanDelay is the quiet period after the last mutation before a
// re-scan fires.
const DefaultRescanDelay = time.Second

// Debouncer coalesces rapid event bursts into a single trailing call.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
}

// NewDebouncer creates a debouncer with the specified quiet period.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Debounce schedules fn after the quiet period. A call while a previous one
// is pending cancels and replaces it, so only the last fn runs.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, fn)
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Watcher turns a stream of document mutations into debounced full re-scans.
// Callers signal each mutation with Trigger; rescan runs once the document
// has been quiet for the configured delay.
type Watcher struct {
	debouncer *Debouncer
	rescan    func()
}

// NewWatcher builds a watcher. delay <= 0 uses DefaultRescanDelay.
func NewWatcher(delay time.Duration, rescan func()) *Watcher {
	if delay <= 0 {
		delay = DefaultRescanDelay
	}
	return &Watcher{
		debouncer: NewDebouncer(delay),
		rescan:    rescan,
	}
}

// Trigger records one mutation and (re)schedules the re-scan.
func (w *Watcher) Trigger() {
	w.debouncer.Debounce(w.rescan)
}

// Stop cancels any pending re-scan.
func (w *Watcher) Stop() {
	w.debouncer.Cancel()
}
