// Package detect finds capture-worthy images on a page: a multi-pass scan
// over the document for sourced, lazy-loaded, CSS-background, and vector
// images, deduplicated and ranked by a tunable relevance score.
package detect

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"emma/internal/page"
)

// Source records which discovery pass found an image.
type Source string

const (
	SourceImgElement    Source = "img-element"
	SourceCSSBackground Source = "css-background"
	SourceLazyLoaded    Source = "lazy-loaded"
	SourceSVG           Source = "svg"
	SourceURLBased      Source = "url-based"
)

// Context is the surrounding-page evidence used for relevance scoring.
type Context struct {
	Caption      string
	NearbyText   string
	SemanticRole string
}

// DetectedImage is one ranked discovery. ID is derived from the URL so
// repeated scans of the same page produce stable identifiers.
type DetectedImage struct {
	ID        string
	URL       string
	Alt       string
	Title     string
	Width     int
	Height    int
	Source    Source
	Context   Context
	Relevance float64
}

// Weights are the relevance-score tuning constants. They are heuristics, not
// derived from any model; adjust freely per deployment.
type Weights struct {
	AreaDivisor float64 `yaml:"area_divisor"`
	AreaCap     float64 `yaml:"area_cap"`

	Alt         float64 `yaml:"alt"`
	Title       float64 `yaml:"title"`
	Caption     float64 `yaml:"caption"`
	Description float64 `yaml:"description"`

	SourceImg        float64 `yaml:"source_img"`
	SourceLazy       float64 `yaml:"source_lazy"`
	SourceBackground float64 `yaml:"source_background"`
	SourceSVG        float64 `yaml:"source_svg"`

	RoleArticle float64 `yaml:"role_article"`
	RoleMain    float64 `yaml:"role_main"`
	RoleHeader  float64 `yaml:"role_header"`
}

// DefaultWeights returns the stock scoring constants.
func DefaultWeights() Weights {
	return Weights{
		AreaDivisor:      10000,
		AreaCap:          100,
		Alt:              20,
		Title:            15,
		Caption:          25,
		Description:      20,
		SourceImg:        10,
		SourceLazy:       8,
		SourceBackground: 5,
		SourceSVG:        3,
		RoleArticle:      15,
		RoleMain:         12,
		RoleHeader:       8,
	}
}

// Score computes the relevance of one detected image.
func (w Weights) Score(img *DetectedImage) float64 {
	score := 0.0

	if area := float64(img.Width) * float64(img.Height); area > 0 {
		size := area / w.AreaDivisor
		if size > w.AreaCap {
			size = w.AreaCap
		}
		score += size
	}

	if img.Alt != "" {
		score += w.Alt
	}
	if img.Title != "" {
		score += w.Title
	}
	if img.Context.Caption != "" {
		score += w.Caption
	}
	if img.Context.NearbyText != "" {
		score += w.Description
	}

	switch img.Source {
	case SourceImgElement:
		score += w.SourceImg
	case SourceLazyLoaded:
		score += w.SourceLazy
	case SourceCSSBackground:
		score += w.SourceBackground
	case SourceSVG, SourceURLBased:
		score += w.SourceSVG
	}

	switch img.Context.SemanticRole {
	case "article-image":
		score += w.RoleArticle
	case "main-content":
		score += w.RoleMain
	case "header-image":
		score += w.RoleHeader
	}

	return score
}

// Config controls the scan filters.
type Config struct {
	MinWidth  int `yaml:"min_width"`
	MinHeight int `yaml:"min_height"`
	// ExcludeTokens are matched (case-insensitive) against an image's src,
	// class, and id to drop chrome like icons and tracking pixels.
	ExcludeTokens []string `yaml:"exclude_tokens"`
	Weights       Weights  `yaml:"weights"`
}

// DefaultConfig returns the stock scan configuration.
func DefaultConfig() Config {
	return Config{
		MinWidth:  32,
		MinHeight: 32,
		ExcludeTokens: []string{
			"icon", "logo", "sprite", "tracking", "pixel", "advert", "avatar", "emoji",
		},
		Weights: DefaultWeights(),
	}
}

// Detector scans page snapshots for images.
type Detector struct {
	cfg Config
	log *zap.Logger
}

// New builds a detector. Zero-valued config fields fall back to defaults.
func New(cfg Config, log *zap.Logger) *Detector {
	def := DefaultConfig()
	if cfg.MinWidth <= 0 {
		cfg.MinWidth = def.MinWidth
	}
	if cfg.MinHeight <= 0 {
		cfg.MinHeight = def.MinHeight
	}
	if len(cfg.ExcludeTokens) == 0 {
		cfg.ExcludeTokens = def.ExcludeTokens
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = def.Weights
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{cfg: cfg, log: log}
}

// Scan runs every discovery pass over the snapshot, merges the findings,
// deduplicates by URL (first seen wins), scores, and sorts by relevance
// descending. Equal scores keep their discovery order.
func (d *Detector) Scan(snap *page.Snapshot) []DetectedImage {
	var found []DetectedImage
	found = append(found, d.scanImages(snap)...)
	found = append(found, d.scanBackgrounds(snap)...)
	found = append(found, d.scanLazy(snap)...)
	found = append(found, d.scanVectors(snap)...)

	found = Dedup(found)
	for i := range found {
		found[i].Relevance = d.cfg.Weights.Score(&found[i])
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Relevance > found[j].Relevance
	})

	d.log.Debug("image scan complete", zap.Int("images", len(found)))
	return found
}

// Dedup drops later duplicates of the same URL. Running it twice over an
// already-deduplicated list returns the list unchanged. The input slice is
// left intact.
func Dedup(images []DetectedImage) []DetectedImage {
	seen := make(map[string]bool, len(images))
	out := make([]DetectedImage, 0, len(images))
	for _, img := range images {
		if seen[img.URL] {
			continue
		}
		seen[img.URL] = true
		out = append(out, img)
	}
	return out
}

func (d *Detector) scanImages(snap *page.Snapshot) []DetectedImage {
	var out []DetectedImage
	for _, n := range snap.Find("img") {
		src := page.Attr(n, "src")
		if src == "" || strings.HasSuffix(strings.ToLower(srcPath(src)), ".svg") {
			continue
		}
		img, ok := d.build(n, src, SourceImgElement)
		if ok {
			out = append(out, img)
		}
	}
	return out
}

func (d *Detector) scanBackgrounds(snap *page.Snapshot) []DetectedImage {
	var out []DetectedImage
	page.Walk(snap.Body(), func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		src := backgroundURL(page.Attr(n, "style"))
		if src == "" {
			return true
		}
		if img, ok := d.build(n, src, SourceCSSBackground); ok {
			out = append(out, img)
		}
		return true
	})
	return out
}

// lazyAttrs are the data attributes deferred-loading libraries stash the real
// source in before swapping it into src.
var lazyAttrs = []string{"data-src", "data-lazy", "data-original", "data-bg", "data-background"}

func (d *Detector) scanLazy(snap *page.Snapshot) []DetectedImage {
	var out []DetectedImage
	page.Walk(snap.Body(), func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, attr := range lazyAttrs {
			src := page.Attr(n, attr)
			if src == "" {
				continue
			}
			if img, ok := d.build(n, src, SourceLazyLoaded); ok {
				out = append(out, img)
			}
			break
		}
		return true
	})
	return out
}

func (d *Detector) scanVectors(snap *page.Snapshot) []DetectedImage {
	var out []DetectedImage

	for _, n := range snap.Find("svg") {
		markup := renderNode(n)
		if markup == "" {
			continue
		}
		uri := "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(markup))
		if img, ok := d.build(n, uri, SourceSVG); ok {
			out = append(out, img)
		}
	}

	for _, n := range snap.Find(`img[src$=".svg"]`) {
		if img, ok := d.build(n, page.Attr(n, "src"), SourceURLBased); ok {
			out = append(out, img)
		}
	}

	return out
}

// build assembles one candidate from a node, applying the size, extension,
// and exclusion filters. ok is false when the candidate is dropped.
func (d *Detector) build(n *html.Node, src string, source Source) (DetectedImage, bool) {
	if !supportedSource(src) {
		return DetectedImage{}, false
	}
	if d.excluded(n, src) {
		return DetectedImage{}, false
	}

	w := intAttr(n, "width")
	h := intAttr(n, "height")
	if w > 0 && w < d.cfg.MinWidth {
		return DetectedImage{}, false
	}
	if h > 0 && h < d.cfg.MinHeight {
		return DetectedImage{}, false
	}

	return DetectedImage{
		ID:     imageID(src),
		URL:    src,
		Alt:    page.Attr(n, "alt"),
		Title:  page.Attr(n, "title"),
		Width:  w,
		Height: h,
		Source: source,
		Context: Context{
			Caption:      caption(n),
			NearbyText:   nearbyText(n),
			SemanticRole: semanticRole(n),
		},
	}, true
}

func (d *Detector) excluded(n *html.Node, src string) bool {
	haystacks := []string{
		strings.ToLower(src),
		strings.ToLower(page.Attr(n, "class")),
		strings.ToLower(page.Attr(n, "id")),
	}
	for _, token := range d.cfg.ExcludeTokens {
		for _, hay := range haystacks {
			if hay != "" && strings.Contains(hay, token) {
				return true
			}
		}
	}
	return false
}

// imageExtensions is the set of raster and vector formats worth capturing.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".webp": true, ".svg": true, ".avif": true, ".bmp": true,
}

// supportedSource filters out sources that cannot resolve to an image:
// javascript pseudo-URLs and files with a known non-image extension.
// Extension-less URLs pass, since CDNs routinely omit them.
func supportedSource(src string) bool {
	if strings.HasPrefix(src, "data:image/") || strings.HasPrefix(src, "blob:") {
		return true
	}
	if strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "javascript:") {
		return false
	}
	path := srcPath(src)
	dot := strings.LastIndexByte(path, '.')
	slash := strings.LastIndexByte(path, '/')
	if dot < 0 || dot < slash {
		return true
	}
	return imageExtensions[strings.ToLower(path[dot:])]
}

func srcPath(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		return src[:i]
	}
	return src
}

func intAttr(n *html.Node, name string) int {
	v, err := strconv.Atoi(strings.TrimSuffix(page.Attr(n, name), "px"))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func imageID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:6])
}

var cssBackgroundURL = regexp.MustCompile(`background(?:-image)?\s*:[^;]*url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// backgroundURL pulls the first url(...) out of an inline style's background
// declaration. Gradients and "none" yield "".
func backgroundURL(style string) string {
	m := cssBackgroundURL.FindStringSubmatch(style)
	if len(m) < 2 {
		return ""
	}
	u := strings.TrimSpace(m[1])
	if u == "" || u == "none" || strings.Contains(u, "gradient") {
		return ""
	}
	return u
}

const nearbyTextLimit = 160

// caption returns the figcaption text when the node sits inside a <figure>.
func caption(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "figure" {
			for _, fc := range page.FindAll(p, "figcaption") {
				return page.Text(fc)
			}
			return ""
		}
	}
	return ""
}

// nearbyText samples the text of the image's parent as descriptive context.
func nearbyText(n *html.Node) string {
	if n.Parent == nil {
		return ""
	}
	text := page.Text(n.Parent)
	runes := []rune(text)
	if len(runes) > nearbyTextLimit {
		text = string(runes[:nearbyTextLimit])
	}
	return text
}

// semanticRole classifies where in the document structure the image lives.
// The nearest matching ancestor wins.
func semanticRole(n *html.Node) string {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		switch {
		case p.Data == "article":
			return "article-image"
		case p.Data == "main" || strings.EqualFold(page.Attr(p, "role"), "main"):
			return "main-content"
		case p.Data == "header":
			return "header-image"
		}
	}
	return ""
}

func renderNode(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}
