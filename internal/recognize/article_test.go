package recognize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<html>
<head><title>The Slow Death of the Homepage</title></head>
<body><article>
	<p>For two decades the homepage was the front door of the web, carefully curated and fought over.</p>
	<p>Today most readers arrive sideways, following links from feeds and search results.</p>
	<p>That shift has quietly rewritten how newsrooms think about their most valuable real estate.</p>
	<blockquote>The homepage is now a brand statement, not a traffic driver.</blockquote>
</article></body></html>`

func TestArticleDetection(t *testing.T) {
	r := NewArticleRecognizer()

	snap := mustSnapshot(t, "https://medium.com/@a/post", `<html><body></body></html>`)
	assert.True(t, r.CanHandle(snap))
	assert.Equal(t, 0.95, r.Confidence(snap))

	snap = mustSnapshot(t, "https://smallblog.example.com/post", articlePage)
	assert.True(t, r.CanHandle(snap), "three paragraphs of prose inside article")
	assert.Equal(t, 0.55, r.Confidence(snap))

	// An article wrapper with no prose is not an article.
	snap = mustSnapshot(t, "https://smallblog.example.com/widgets",
		`<html><body><article><div class="widget"></div></article></body></html>`)
	assert.False(t, r.CanHandle(snap))
}

func TestArticleExtract(t *testing.T) {
	snap := mustSnapshot(t, "https://smallblog.example.com/post", articlePage)

	candidates, err := NewArticleRecognizer().Extract(snap, Options{})
	require.NoError(t, err)

	kinds := map[string]Candidate{}
	var quotes []Candidate
	for _, c := range candidates {
		if c.Type == TypeQuote {
			quotes = append(quotes, c)
			continue
		}
		kinds[c.Metadata["kind"].(string)] = c
	}

	summary, ok := kinds["summary"]
	require.True(t, ok)
	assert.Contains(t, summary.Content, "front door of the web")
	assert.Equal(t, "The Slow Death of the Homepage", summary.Metadata["title"])

	full, ok := kinds["fulltext"]
	require.True(t, ok)
	assert.Contains(t, full.Content, "valuable real estate")

	require.Len(t, quotes, 1)
	assert.Contains(t, quotes[0].Content, "brand statement")
}

func TestResearchDetection(t *testing.T) {
	r := NewResearchRecognizer()

	snap := mustSnapshot(t, "https://arxiv.org/abs/2401.00001", `<html><body></body></html>`)
	assert.True(t, r.CanHandle(snap))
	assert.Equal(t, 0.95, r.Confidence(snap))

	snap = mustSnapshot(t, "https://lab.example.edu/paper",
		`<html><body><div class="abstract">We study things.</div></body></html>`)
	assert.True(t, r.CanHandle(snap))
	assert.Equal(t, 0.55, r.Confidence(snap))

	snap = mustSnapshot(t, "https://lab.example.edu/news", `<html><body><p>News.</p></body></html>`)
	assert.False(t, r.CanHandle(snap))
}

func TestResearchExtractAbstract(t *testing.T) {
	snap := mustSnapshot(t, "https://arxiv.org/abs/2401.00001", `<html>
	<head><title>On the Complexity of Cache Invalidation</title></head>
	<body>
		<blockquote class="abstract">Abstract: We prove that cache invalidation is hard, by construction of a counterexample family.</blockquote>
	</body></html>`)

	candidates, err := NewResearchRecognizer().Extract(snap, Options{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	c := candidates[0]
	assert.Equal(t, TypeResearch, c.Type)
	assert.Equal(t, "abstract", c.Metadata["kind"])
	assert.Equal(t, "We prove that cache invalidation is hard, by construction of a counterexample family.", c.Content)
}
