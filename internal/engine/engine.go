// Package engine holds the hybrid orchestrator: an ordered recognizer
// registry, the classify-then-extract pipeline, and enrichment of extracted
// candidates before they enter the persistence queue.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"emma/internal/page"
	"emma/internal/queue"
	"emma/internal/recognize"
)

// descriptor pairs a registered recognizer with its name. The slice is
// append-only and its order is the priority order: the first recognizer whose
// CanHandle returns true wins, regardless of score. A map here would make
// classification dependent on Go's randomized map iteration.
type descriptor struct {
	name       string
	recognizer recognize.Recognizer
}

// Match is the outcome of one analysis pass.
type Match struct {
	Recognizer recognize.Recognizer
	Name       string
	Confidence float64
}

// CaptureOptions controls one capture pass.
type CaptureOptions struct {
	// Force skips the confidence gate.
	Force bool
	// UserTriggered marks an explicit user action; required for the
	// universal fallback to extract anything.
	UserTriggered bool
	// Selection is the user's current text selection, if any.
	Selection string
}

// Engine routes page snapshots to recognizers and queues what they extract.
type Engine struct {
	registry []descriptor
	names    map[string]bool
	fallback recognize.Recognizer
	queue    *queue.Queue
	log      *zap.Logger

	// minConfidence gates automatic captures. The universal fallback sits
	// exactly at this value, so it passes the gate but extracts nothing
	// unless user-triggered.
	minConfidence float64
}

// New creates an engine with an empty registry.
func New(q *queue.Queue, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		names:         make(map[string]bool),
		fallback:      recognize.NewUniversalRecognizer(),
		queue:         q,
		log:           log,
		minConfidence: recognize.UniversalConfidence,
	}
}

// NewWithDefaults creates an engine with the standard recognizer set in its
// standard order. Platform-specific recognizers come first so they pre-empt
// the generic ones; universal is always last.
func NewWithDefaults(q *queue.Queue, log *zap.Logger) *Engine {
	e := New(q, log)
	for _, r := range []recognize.Recognizer{
		recognize.NewConversationRecognizer(),
		recognize.NewCodeRecognizer(),
		recognize.NewResearchRecognizer(),
		recognize.NewDocumentationRecognizer(),
		recognize.NewArticleRecognizer(),
		recognize.NewUniversalRecognizer(),
	} {
		if err := e.Register(r); err != nil {
			// Only reachable with duplicate names in the fixed list above.
			panic(err)
		}
	}
	return e
}

// SetMinConfidence raises or lowers the automatic-capture gate. Values
// outside (0,1] are ignored and keep the default.
func (e *Engine) SetMinConfidence(v float64) {
	if v > 0 && v <= 1 {
		e.minConfidence = v
	}
}

// MinConfidence returns the current automatic-capture gate.
func (e *Engine) MinConfidence() float64 { return e.minConfidence }

// Register appends a recognizer to the registry. Names must be unique;
// registration order is priority order.
func (e *Engine) Register(r recognize.Recognizer) error {
	name := r.Name()
	if name == "" {
		return fmt.Errorf("recognizer has empty name")
	}
	if e.names[name] {
		return fmt.Errorf("recognizer %q already registered", name)
	}
	e.names[name] = true
	e.registry = append(e.registry, descriptor{name: name, recognizer: r})
	return nil
}

// Recognizers returns the registered names in priority order.
func (e *Engine) Recognizers() []string {
	out := make([]string, len(e.registry))
	for i, d := range e.registry {
		out[i] = d.name
	}
	return out
}

// Analyze classifies the snapshot: recognizers are tried strictly in
// registration order and the first structural match wins. Confidences are not
// compared across recognizers. Recognizer failures are contained and the scan
// moves on; if nothing matches, the universal fallback is returned.
func (e *Engine) Analyze(snap *page.Snapshot) Match {
	for _, d := range e.registry {
		ok := e.safeCanHandle(d, snap)
		if !ok {
			continue
		}
		conf := e.safeConfidence(d, snap)
		e.log.Debug("recognizer matched",
			zap.String("recognizer", d.name),
			zap.Float64("confidence", conf),
			zap.String("host", snap.Hostname))
		return Match{Recognizer: d.recognizer, Name: d.name, Confidence: conf}
	}
	return Match{
		Recognizer: e.fallback,
		Name:       e.fallback.Name(),
		Confidence: recognize.UniversalConfidence,
	}
}

// Capture runs classification, extraction, enrichment, and enqueueing.
// Returns nil with no error when nothing was captured: either the confidence
// gate aborted the pass (expected control flow, not a failure) or the
// recognizer produced no candidates.
func (e *Engine) Capture(ctx context.Context, snap *page.Snapshot, opts CaptureOptions) ([]queue.Memory, error) {
	match := e.Analyze(snap)

	if match.Confidence < e.minConfidence && !opts.Force {
		e.log.Debug("capture aborted below confidence gate",
			zap.String("recognizer", match.Name),
			zap.Float64("confidence", match.Confidence))
		return nil, nil
	}

	extractOpts := recognize.Options{
		UserTriggered: opts.UserTriggered,
		Selection:     opts.Selection,
	}

	candidates, err := e.safeExtract(match, snap, extractOpts)
	if err != nil && match.Name != e.fallback.Name() {
		// The chosen recognizer blew up; recover through the fallback so a
		// hostile page can still yield a user-triggered capture.
		e.log.Warn("recognizer extraction failed, using fallback",
			zap.String("recognizer", match.Name),
			zap.Error(err))
		match = Match{Recognizer: e.fallback, Name: e.fallback.Name(), Confidence: recognize.UniversalConfidence}
		candidates, err = e.safeExtract(match, snap, extractOpts)
	}
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	memories := e.enrich(snap, match, candidates)
	if err := e.queue.Enqueue(ctx, memories...); err != nil {
		// The queue keeps the batch for retry; captured memories are still
		// returned so the caller can report what was extracted.
		e.log.Warn("enqueue flush failed, queued for retry", zap.Error(err))
	}
	return memories, nil
}

// enrich stamps candidates with capture metadata. Enriched memories are
// immutable once queued.
func (e *Engine) enrich(snap *page.Snapshot, match Match, candidates []recognize.Candidate) []queue.Memory {
	now := time.Now()
	out := make([]queue.Memory, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, queue.Memory{
			ID:          uuid.NewString(),
			Content:     c.Content,
			Role:        string(c.Role),
			Type:        string(c.Type),
			Source:      c.Source,
			CaptureType: match.Name,
			URL:         snap.URL,
			Domain:      snap.Hostname,
			CapturedAt:  now,
			Metadata:    c.Metadata,
		})
	}
	return out
}

func (e *Engine) safeCanHandle(d descriptor, snap *page.Snapshot) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("recognizer CanHandle panicked",
				zap.String("recognizer", d.name),
				zap.Any("panic", r))
			ok = false
		}
	}()
	return d.recognizer.CanHandle(snap)
}

func (e *Engine) safeConfidence(d descriptor, snap *page.Snapshot) (conf float64) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("recognizer Confidence panicked",
				zap.String("recognizer", d.name),
				zap.Any("panic", r))
			conf = 0
		}
	}()
	c := d.recognizer.Confidence(snap)
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func (e *Engine) safeExtract(m Match, snap *page.Snapshot, opts recognize.Options) (candidates []recognize.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recognizer %s panicked: %v", m.Name, r)
		}
	}()
	return m.Recognizer.Extract(snap, opts)
}
