package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emma/internal/page"
	"emma/internal/queue"
	"emma/internal/recognize"
)

type memoryStore struct {
	mu     sync.Mutex
	stored []queue.Memory
}

func (s *memoryStore) AddMemory(ctx context.Context, m queue.Memory) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, m)
	return m.ID, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

type stubRecognizer struct {
	name       string
	canHandle  bool
	confidence float64
	candidates []recognize.Candidate
	extractErr error
	panicOn    string // "canhandle", "confidence", "extract"
}

func (r *stubRecognizer) Name() string { return r.name }

func (r *stubRecognizer) CanHandle(snap *page.Snapshot) bool {
	if r.panicOn == "canhandle" {
		panic("hostile page broke the recognizer")
	}
	return r.canHandle
}

func (r *stubRecognizer) Confidence(snap *page.Snapshot) float64 {
	if r.panicOn == "confidence" {
		panic("hostile page broke the recognizer")
	}
	return r.confidence
}

func (r *stubRecognizer) Extract(snap *page.Snapshot, opts recognize.Options) ([]recognize.Candidate, error) {
	if r.panicOn == "extract" {
		panic("hostile page broke the recognizer")
	}
	return r.candidates, r.extractErr
}

func mustSnapshot(t *testing.T, url, source string) *page.Snapshot {
	t.Helper()
	snap, err := page.Parse(url, source)
	require.NoError(t, err)
	return snap
}

func newTestEngine(t *testing.T) (*Engine, *memoryStore) {
	t.Helper()
	store := &memoryStore{}
	return NewWithDefaults(queue.New(store, nil), nil), store
}

const chatGPTPage = `<html><body><main>
	<div data-message-author-role="user">How do I parse HTML in Go?</div>
	<div data-message-author-role="assistant">Use golang.org/x/net/html and walk the node tree.</div>
	<div data-message-author-role="user">Can you show a full example program?</div>
	<div data-message-author-role="assistant">Sure, here is a complete example with error handling.</div>
</main></body></html>`

func TestSetMinConfidenceRaisesGate(t *testing.T) {
	store := &memoryStore{}
	e := New(queue.New(store, nil), nil)
	require.NoError(t, e.Register(&stubRecognizer{
		name:       "heuristic",
		canHandle:  true,
		confidence: 0.55,
		candidates: []recognize.Candidate{{Content: "structural match content", Type: recognize.TypeArticle}},
	}))
	snap := mustSnapshot(t, "https://example.com/", "<html><body></body></html>")

	e.SetMinConfidence(0.6)
	assert.Equal(t, 0.6, e.MinConfidence())

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{})
	require.NoError(t, err)
	assert.Nil(t, memories, "0.55 match must not pass a 0.6 gate")
	assert.Equal(t, 0, store.count())

	// Force still bypasses the gate.
	memories, err = e.Capture(context.Background(), snap, CaptureOptions{Force: true})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, 1, store.count())

	// Out-of-range values keep the configured gate.
	e.SetMinConfidence(0)
	e.SetMinConfidence(1.5)
	assert.Equal(t, 0.6, e.MinConfidence())
}

func TestAnalyzeChatPlatform(t *testing.T) {
	e, _ := newTestEngine(t)
	snap := mustSnapshot(t, "https://chat.openai.com/c/abc", chatGPTPage)

	match := e.Analyze(snap)
	assert.Equal(t, "conversation", match.Name)
	assert.Equal(t, 0.95, match.Confidence)
}

func TestCaptureChatTranscript(t *testing.T) {
	e, store := newTestEngine(t)
	snap := mustSnapshot(t, "https://chat.openai.com/c/abc", chatGPTPage)

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{})
	require.NoError(t, err)
	require.Len(t, memories, 4)

	wantRoles := []string{"user", "assistant", "user", "assistant"}
	for i, m := range memories {
		assert.Equal(t, wantRoles[i], m.Role, "memory %d", i)
		assert.Equal(t, "conversation", m.Type)
		assert.Equal(t, "conversation", m.CaptureType)
		assert.Equal(t, "https://chat.openai.com/c/abc", m.URL)
		assert.Equal(t, "chat.openai.com", m.Domain)
		assert.NotEmpty(t, m.ID)
		assert.NotEmpty(t, m.Content)
	}
	assert.Equal(t, 4, store.count(), "captured memories must reach the store")
}

func TestAnalyzeDeterministicAcrossRuns(t *testing.T) {
	e, _ := newTestEngine(t)
	snap := mustSnapshot(t, "https://chat.openai.com/c/abc", chatGPTPage)

	first := e.Analyze(snap)
	for i := 0; i < 20; i++ {
		match := e.Analyze(snap)
		assert.Equal(t, first.Name, match.Name)
		assert.Equal(t, first.Confidence, match.Confidence)
	}
}

func TestDefaultRegistryOrder(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Equal(t, []string{
		"conversation", "code", "research", "documentation", "article", "universal",
	}, e.Recognizers())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	e := New(queue.New(&memoryStore{}, nil), nil)
	require.NoError(t, e.Register(&stubRecognizer{name: "custom"}))
	err := e.Register(&stubRecognizer{name: "custom"})
	assert.Error(t, err)

	err = e.Register(&stubRecognizer{name: ""})
	assert.Error(t, err)
}

func TestUniversalWithoutUserTriggerCapturesNothing(t *testing.T) {
	// A page no recognizer claims falls to the universal fallback, which sits
	// exactly at the confidence gate but only extracts on explicit request.
	e, store := newTestEngine(t)
	snap := mustSnapshot(t, "https://unknown.example.com/",
		`<html><body><p>Some ordinary page with a paragraph of text on it.</p></body></html>`)

	match := e.Analyze(snap)
	assert.Equal(t, "universal", match.Name)
	assert.Equal(t, recognize.UniversalConfidence, match.Confidence)

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{})
	require.NoError(t, err)
	assert.Nil(t, memories)
	assert.Zero(t, store.count())
}

func TestUniversalUserTriggeredCapturesPage(t *testing.T) {
	e, store := newTestEngine(t)
	snap := mustSnapshot(t, "https://unknown.example.com/",
		`<html><body><p>Some ordinary page with a paragraph of text on it.</p></body></html>`)

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{UserTriggered: true})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "page", memories[0].Type)
	assert.Contains(t, memories[0].Content, "ordinary page")
	assert.Equal(t, 1, store.count())
}

func TestSelectionCapture(t *testing.T) {
	e, _ := newTestEngine(t)
	snap := mustSnapshot(t, "https://unknown.example.com/",
		`<html><body><p>Full page text here.</p></body></html>`)

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{
		UserTriggered: true,
		Selection:     "the exact passage the user highlighted",
	})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "selection", memories[0].Type)
	assert.Equal(t, "the exact passage the user highlighted", memories[0].Content)
}

func TestConfidenceClampedToUnitInterval(t *testing.T) {
	e := New(queue.New(&memoryStore{}, nil), nil)
	require.NoError(t, e.Register(&stubRecognizer{name: "overshoot", canHandle: true, confidence: 3.5}))
	require.NoError(t, e.Register(recognize.NewUniversalRecognizer()))

	snap := mustSnapshot(t, "https://x.test/", `<html><body>hi</body></html>`)
	match := e.Analyze(snap)
	assert.Equal(t, "overshoot", match.Name)
	assert.Equal(t, 1.0, match.Confidence)
}

func TestDefaultRecognizerConfidencesInRange(t *testing.T) {
	pages := map[string]string{
		"https://chat.openai.com/c/1":    chatGPTPage,
		"https://github.com/o/r":         `<html><body><pre>package main</pre></body></html>`,
		"https://arxiv.org/abs/1":        `<html><body><blockquote class="abstract">Abstract: something studied at length here.</blockquote></body></html>`,
		"https://pkg.go.dev/net":         `<html><body><main><pre><code>import "net"</code></pre></main></body></html>`,
		"https://news.example.com/story": `<html><body><article><p>A long enough article paragraph sits right here.</p></article></body></html>`,
		"https://blank.example.com/":     `<html><body></body></html>`,
	}
	e, _ := newTestEngine(t)
	for url, src := range pages {
		match := e.Analyze(mustSnapshot(t, url, src))
		assert.GreaterOrEqual(t, match.Confidence, 0.0, "url %s", url)
		assert.LessOrEqual(t, match.Confidence, 1.0, "url %s", url)
	}
}

func TestPanickingRecognizerIsSkipped(t *testing.T) {
	e := New(queue.New(&memoryStore{}, nil), nil)
	require.NoError(t, e.Register(&stubRecognizer{name: "landmine", panicOn: "canhandle"}))
	require.NoError(t, e.Register(&stubRecognizer{
		name: "steady", canHandle: true, confidence: 0.6,
		candidates: []recognize.Candidate{{Content: "extracted content", Type: recognize.TypePage}},
	}))
	require.NoError(t, e.Register(recognize.NewUniversalRecognizer()))

	snap := mustSnapshot(t, "https://x.test/", `<html><body>hi</body></html>`)
	match := e.Analyze(snap)
	assert.Equal(t, "steady", match.Name)

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{})
	require.NoError(t, err)
	assert.Len(t, memories, 1)
}

func TestExtractFailureFallsBackToUniversal(t *testing.T) {
	e := New(queue.New(&memoryStore{}, nil), nil)
	require.NoError(t, e.Register(&stubRecognizer{
		name: "flaky", canHandle: true, confidence: 0.9,
		extractErr: errors.New("selector vanished mid-extract"),
	}))
	require.NoError(t, e.Register(recognize.NewUniversalRecognizer()))

	snap := mustSnapshot(t, "https://x.test/",
		`<html><body><p>Readable page text that survives the fallback.</p></body></html>`)

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{UserTriggered: true})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "page", memories[0].Type)
}

func TestExtractPanicIsContained(t *testing.T) {
	e := New(queue.New(&memoryStore{}, nil), nil)
	require.NoError(t, e.Register(&stubRecognizer{
		name: "explosive", canHandle: true, confidence: 0.9, panicOn: "extract",
	}))
	require.NoError(t, e.Register(recognize.NewUniversalRecognizer()))

	snap := mustSnapshot(t, "https://x.test/", `<html><body><p>hi there friend</p></body></html>`)
	_, err := e.Capture(context.Background(), snap, CaptureOptions{})
	require.NoError(t, err, "a panicking recognizer must not propagate")
}

func TestNoEmptyContentCandidates(t *testing.T) {
	e, _ := newTestEngine(t)
	snap := mustSnapshot(t, "https://chat.openai.com/c/abc", `<html><body>
		<div data-message-author-role="user">hi</div>
		<div data-message-author-role="assistant">A substantive reply longer than the minimum.</div>
	</body></html>`)

	memories, err := e.Capture(context.Background(), snap, CaptureOptions{})
	require.NoError(t, err)
	// The two-character turn falls below the per-recognizer minimum length.
	require.Len(t, memories, 1)
	assert.Equal(t, "assistant", memories[0].Role)
}
