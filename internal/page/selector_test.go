package page

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `<!DOCTYPE html>
<html>
<head><title>  Sample Page </title></head>
<body>
  <nav><a href="/home">Home</a></nav>
  <main id="content">
    <article class="post featured">
      <h1>Heading</h1>
      <p class="intro">First paragraph with enough text.</p>
      <p>Second paragraph.</p>
      <img src="https://example.com/a.jpg" alt="A photo" width="200" height="200">
      <img src="https://example.com/icon.png" width="16" height="16">
      <pre><code>func main() {
	fmt.Println("hi")
}</code></pre>
    </article>
    <div data-testid="widget" data-src="lazy.jpg">lazy</div>
    <img src="https://example.com/vector.svg">
  </main>
  <footer>footer text</footer>
</body>
</html>`

func mustParse(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := Parse("https://example.com/posts/1", sampleDoc)
	require.NoError(t, err)
	return snap
}

func TestParseMetadata(t *testing.T) {
	snap := mustParse(t)
	assert.Equal(t, "example.com", snap.Hostname)
	assert.Equal(t, "Sample Page", snap.Title)
	assert.Equal(t, "https://example.com/posts/1", snap.URL)
}

func TestFindSelectors(t *testing.T) {
	snap := mustParse(t)

	tests := []struct {
		selector string
		want     int
	}{
		{"p", 2},
		{"article p", 2},
		{".post", 1},
		{".post.featured", 1},
		{"#content", 1},
		{"img", 3},
		{"img[alt]", 1},
		{`img[src$=".svg"]`, 1},
		{`img[src*="icon"]`, 1},
		{`div[data-testid="widget"]`, 1},
		{"[data-src]", 1},
		{"pre code", 1},
		{"h1, h2, h3", 1},
		{"p.intro", 1},
		{"article .intro", 1},
		{"section", 0},
		{"", 0},
	}
	for _, tt := range tests {
		got := snap.Find(tt.selector)
		assert.Len(t, got, tt.want, "selector %q", tt.selector)
	}
}

func TestFindDocumentOrder(t *testing.T) {
	snap := mustParse(t)
	imgs := snap.Find("img")
	require.Len(t, imgs, 3)
	assert.Equal(t, "https://example.com/a.jpg", Attr(imgs[0], "src"))
	assert.Equal(t, "https://example.com/icon.png", Attr(imgs[1], "src"))
	assert.Equal(t, "https://example.com/vector.svg", Attr(imgs[2], "src"))
}

func TestCommaListNoDuplicates(t *testing.T) {
	snap := mustParse(t)
	// .intro matches both alternatives; the node must appear once.
	got := snap.Find("p.intro, .intro")
	assert.Len(t, got, 1)
}

func TestText(t *testing.T) {
	snap := mustParse(t)
	p := snap.First("p.intro")
	require.NotNil(t, p)
	assert.Equal(t, "First paragraph with enough text.", Text(p))
}

func TestRawTextPreservesWhitespace(t *testing.T) {
	snap := mustParse(t)
	code := snap.First("pre code")
	require.NotNil(t, code)
	assert.Contains(t, RawText(code), "\n\tfmt.Println")
}

func TestVisibleTextSkipsChrome(t *testing.T) {
	snap := mustParse(t)
	text := snap.VisibleText(0)
	assert.Contains(t, text, "First paragraph")
	assert.NotContains(t, text, "footer text")
	assert.NotContains(t, text, "Home")
}

func TestVisibleTextTruncation(t *testing.T) {
	snap := mustParse(t)
	text := snap.VisibleText(10)
	assert.LessOrEqual(t, len([]rune(text)), 10)
}

func TestAttrHelpers(t *testing.T) {
	snap := mustParse(t)
	article := snap.First("article")
	require.NotNil(t, article)
	assert.True(t, HasClass(article, "featured"))
	assert.False(t, HasClass(article, "missing"))
	assert.Equal(t, "", Attr(article, "nope"))
}
