package detect

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emma/internal/page"
)

func mustSnapshot(t *testing.T, rawURL, source string) *page.Snapshot {
	t.Helper()
	snap, err := page.Parse(rawURL, source)
	require.NoError(t, err)
	return snap
}

func urls(images []DetectedImage) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.URL
	}
	return out
}

func TestScanFiltersChromeAndTrackingPixels(t *testing.T) {
	snap := mustSnapshot(t, "https://example.com/gallery", `<html><body>
		<img src="https://cdn.example.com/photo-a.jpg" width="200" height="200">
		<img src="https://cdn.example.com/photo-b.jpg" width="200" height="200">
		<img src="https://cdn.example.com/shop-icon.png" width="200" height="200">
		<img src="https://tracker.example.com/i.gif" width="1" height="1">
	</body></html>`)

	images := New(Config{}, nil).Scan(snap)

	want := []string{
		"https://cdn.example.com/photo-a.jpg",
		"https://cdn.example.com/photo-b.jpg",
	}
	if diff := cmp.Diff(want, urls(images)); diff != "" {
		t.Errorf("scan result mismatch (-want +got):\n%s", diff)
	}
	// Identical markup means identical scores; discovery order breaks the tie.
	assert.Equal(t, images[0].Relevance, images[1].Relevance)
}

func TestScanSortsByRelevanceDescending(t *testing.T) {
	snap := mustSnapshot(t, "https://example.com/post", `<html><body>
		<img src="https://cdn/side.jpg" width="64" height="64">
		<article>
			<figure>
				<img src="https://cdn/hero.jpg" width="800" height="400" alt="Launch photo" title="Launch">
				<figcaption>The rocket leaving the pad.</figcaption>
			</figure>
		</article>
	</body></html>`)

	images := New(Config{}, nil).Scan(snap)
	require.Len(t, images, 2)
	assert.Equal(t, "https://cdn/hero.jpg", images[0].URL)
	assert.Greater(t, images[0].Relevance, images[1].Relevance)
	assert.Equal(t, "article-image", images[0].Context.SemanticRole)
	assert.Equal(t, "The rocket leaving the pad.", images[0].Context.Caption)
}

func TestScanDiscoversBackgroundsAndLazySources(t *testing.T) {
	snap := mustSnapshot(t, "https://example.com", `<html><body><main>
		<div style="background-image: url('https://cdn/banner.jpg'); color: red"></div>
		<div style="background: linear-gradient(red, blue)"></div>
		<img data-src="https://cdn/deferred.jpg" width="300" height="200">
	</main></body></html>`)

	images := New(Config{}, nil).Scan(snap)

	bySource := map[Source]string{}
	for _, img := range images {
		bySource[img.Source] = img.URL
	}
	assert.Equal(t, "https://cdn/banner.jpg", bySource[SourceCSSBackground])
	assert.Equal(t, "https://cdn/deferred.jpg", bySource[SourceLazyLoaded])
	for _, img := range images {
		assert.Equal(t, "main-content", img.Context.SemanticRole)
	}
}

func TestScanSerializesInlineSVG(t *testing.T) {
	snap := mustSnapshot(t, "https://example.com", `<html><body>
		<svg width="100" height="100"><circle r="40"/></svg>
		<img src="https://cdn/diagram.svg" width="400" height="300">
	</body></html>`)

	images := New(Config{}, nil).Scan(snap)
	require.Len(t, images, 2)

	bySource := map[Source]DetectedImage{}
	for _, img := range images {
		bySource[img.Source] = img
	}
	inline, ok := bySource[SourceSVG]
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(inline.URL, "data:image/svg+xml;base64,"))

	linked, ok := bySource[SourceURLBased]
	require.True(t, ok)
	assert.Equal(t, "https://cdn/diagram.svg", linked.URL)
}

func TestScanDeduplicatesByURLFirstSeen(t *testing.T) {
	snap := mustSnapshot(t, "https://example.com", `<html><body>
		<img src="https://cdn/photo.jpg" width="200" height="200" alt="First copy">
		<img src="https://cdn/photo.jpg" width="200" height="200">
	</body></html>`)

	images := New(Config{}, nil).Scan(snap)
	require.Len(t, images, 1)
	assert.Equal(t, "First copy", images[0].Alt)
}

func TestDedupIdempotent(t *testing.T) {
	list := []DetectedImage{
		{URL: "https://a/1.jpg"},
		{URL: "https://a/2.jpg"},
		{URL: "https://a/1.jpg"},
	}
	once := Dedup(list)
	require.Len(t, once, 2)

	twice := Dedup(once)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("dedup is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestDedupLeavesInputIntact(t *testing.T) {
	list := []DetectedImage{
		{URL: "https://a/1.jpg", Alt: "keep"},
		{URL: "https://a/1.jpg", Alt: "duplicate"},
		{URL: "https://a/2.jpg"},
	}
	out := Dedup(list)
	require.Len(t, out, 2)

	// The caller's slice must survive untouched.
	require.Len(t, list, 3)
	assert.Equal(t, "duplicate", list[1].Alt)
	assert.Equal(t, "https://a/2.jpg", list[2].URL)
}

func TestScanStableIDs(t *testing.T) {
	snap := mustSnapshot(t, "https://example.com", `<html><body>
		<img src="https://cdn/photo.jpg" width="200" height="200">
	</body></html>`)

	d := New(Config{}, nil)
	first := d.Scan(snap)
	second := d.Scan(snap)
	require.Len(t, first, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Len(t, first[0].ID, 12)
}

func TestWeightsScore(t *testing.T) {
	w := DefaultWeights()

	img := &DetectedImage{
		Width:  200,
		Height: 200,
		Alt:    "photo",
		Source: SourceImgElement,
	}
	// 40000/10000 area + 20 alt + 10 source.
	assert.InDelta(t, 34, w.Score(img), 0.001)

	// Area term caps at 100 regardless of size.
	huge := &DetectedImage{Width: 4000, Height: 4000}
	assert.InDelta(t, 100, w.Score(huge), 0.001)

	captioned := &DetectedImage{
		Source: SourceCSSBackground,
		Context: Context{
			Caption:      "caption",
			NearbyText:   "nearby",
			SemanticRole: "header-image",
		},
	}
	// 25 caption + 20 description + 5 source + 8 role.
	assert.InDelta(t, 58, w.Score(captioned), 0.001)
}

func TestSupportedSource(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"https://cdn/a.jpg", true},
		{"https://cdn/a.webp?w=800", true},
		{"https://cdn/images/abc123", true},
		{"https://cdn/a.pdf", false},
		{"https://cdn/script.js", false},
		{"data:image/png;base64,AAAA", true},
		{"data:text/html,hi", false},
		{"blob:https://example.com/uuid", true},
		{"javascript:void(0)", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, supportedSource(tc.src), "src %q", tc.src)
	}
}

func TestBackgroundURL(t *testing.T) {
	tests := []struct {
		style string
		want  string
	}{
		{`background-image: url("https://cdn/bg.png")`, "https://cdn/bg.png"},
		{`color: red; background: #fff url(/bg.jpg) no-repeat`, "/bg.jpg"},
		{`background-image: linear-gradient(red, blue)`, ""},
		{`background-image: none`, ""},
		{`color: red`, ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, backgroundURL(tc.style), "style %q", tc.style)
	}
}

func TestMinimumSizeConfigurable(t *testing.T) {
	snap := mustSnapshot(t, "https://example.com", `<html><body>
		<img src="https://cdn/small.jpg" width="48" height="48">
		<img src="https://cdn/large.jpg" width="500" height="500">
	</body></html>`)

	images := New(Config{MinWidth: 100, MinHeight: 100}, nil).Scan(snap)
	require.Len(t, images, 1)
	assert.Equal(t, "https://cdn/large.jpg", images[0].URL)
}
