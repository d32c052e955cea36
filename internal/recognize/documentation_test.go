package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentationDetection(t *testing.T) {
	r := NewDocumentationRecognizer()

	snap := mustSnapshot(t, "https://pkg.go.dev/net/http", `<html><body></body></html>`)
	assert.True(t, r.CanHandle(snap))
	assert.Equal(t, 0.95, r.Confidence(snap))

	// Any docs. host counts, known or not.
	snap = mustSnapshot(t, "https://docs.example.io/guide", `<html><body></body></html>`)
	assert.True(t, r.CanHandle(snap))
	assert.Equal(t, 0.95, r.Confidence(snap))

	// Structural: a main area with repeated code blocks.
	snap = mustSnapshot(t, "https://example.com/manual", `<html><body><main>
		<pre><code>first example</code></pre>
		<pre><code>second example</code></pre>
	</main></body></html>`)
	assert.True(t, r.CanHandle(snap))
	assert.Equal(t, 0.55, r.Confidence(snap))

	snap = mustSnapshot(t, "https://example.com/", `<html><body><p>hello</p></body></html>`)
	assert.False(t, r.CanHandle(snap))
}

func TestDocumentationExtract(t *testing.T) {
	snap := mustSnapshot(t, "https://docs.example.io/http", `<html>
	<head><title>HTTP Client Guide</title></head>
	<body><main>
		<p>This guide explains how to configure the HTTP client for production use.</p>
		<p>The client supports retries, timeouts, and connection pooling out of the box.</p>
		<h2>Usage</h2>
		<p>Create a client with the default transport and reuse it across requests.</p>
		<h2>Changelog</h2>
		<p>Nothing relevant for extraction lives under this heading at all.</p>
		<pre><code>client := &amp;http.Client{Timeout: 10 * time.Second}</code></pre>
	</main></body></html>`)

	candidates, err := NewDocumentationRecognizer().Extract(snap, Options{})
	require.NoError(t, err)

	var code, sections, summaries []Candidate
	for _, c := range candidates {
		switch {
		case c.Type == TypeCode:
			code = append(code, c)
		case c.Metadata["section"] != nil:
			sections = append(sections, c)
		default:
			summaries = append(summaries, c)
		}
	}

	require.Len(t, code, 1)
	assert.Contains(t, code[0].Content, "http.Client{Timeout")

	// Only the curated headings survive; Changelog does not.
	require.Len(t, sections, 1)
	assert.Equal(t, "Usage", sections[0].Metadata["section"])
	assert.Contains(t, sections[0].Content, "default transport")

	require.Len(t, summaries, 1)
	assert.Equal(t, TypeDocumentation, summaries[0].Type)
	assert.Equal(t, "HTTP Client Guide", summaries[0].Metadata["title"])
	assert.Contains(t, summaries[0].Content, "configure the HTTP client")
}

func TestDocumentationNestedCodeNotDuplicated(t *testing.T) {
	snap := mustSnapshot(t, "https://docs.example.io/", `<html><body><main>
		<pre><code>a single block long enough to keep</code></pre>
	</main></body></html>`)

	candidates, err := NewDocumentationRecognizer().Extract(snap, Options{})
	require.NoError(t, err)

	var code []Candidate
	for _, c := range candidates {
		if c.Type == TypeCode {
			code = append(code, c)
		}
	}
	require.Len(t, code, 1, "pre wrapping code must yield one candidate, not two")
}
