package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ElementRasterizer draws a live element into an offscreen surface and
// exports the pixels. Cross-origin taint surfaces as an error.
type ElementRasterizer interface {
	RasterizeElement(ctx context.Context, el *Element) (*Payload, error)
}

// Fetcher resolves a URL (http, blob) to bytes inside the page context.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Payload, error)
}

// Viewport describes the visible raster a screenshot covers.
type Viewport struct {
	Width            float64
	Height           float64
	DevicePixelRatio float64
}

// ScreenshotClient is the host-privileged capture surface: it rasterizes what
// the browser renders, so it survives cross-origin and CSP restrictions that
// block pixel reads through the DOM.
type ScreenshotClient interface {
	Screenshot(ctx context.Context) (*Payload, Viewport, error)
}

// DOMRasterizer clones a node off the live page and rasterizes the clone.
type DOMRasterizer interface {
	RasterizeClone(ctx context.Context, el *Element) (*Payload, error)
}

// canvasTechnique is step 1: redraw the element and export. First because it
// is cheap and yields the element's own pixels at natural resolution.
type canvasTechnique struct {
	raster ElementRasterizer
}

// NewCanvasTechnique wraps an element rasterizer as the cascade's first step.
func NewCanvasTechnique(raster ElementRasterizer) Technique {
	return &canvasTechnique{raster: raster}
}

func (t *canvasTechnique) Name() TechniqueName { return TechniqueCanvas }

func (t *canvasTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	if t.raster == nil {
		return nil, ErrNotApplicable
	}
	if el.Kind == KindBackground || (el.Selector == "" && el.Src == "") {
		return nil, ErrNotApplicable
	}
	return t.raster.RasterizeElement(ctx, el)
}

// dataURLTechnique is step 2: sources that are already data: URIs need no
// redraw, just decoding.
type dataURLTechnique struct{}

// NewDataURLTechnique returns the inline data-URI decoder step.
func NewDataURLTechnique() Technique { return &dataURLTechnique{} }

func (t *dataURLTechnique) Name() TechniqueName { return TechniqueDataURL }

func (t *dataURLTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	if !strings.HasPrefix(el.Src, "data:") {
		return nil, ErrNotApplicable
	}
	return DecodeDataURL(el.Src)
}

// DecodeDataURL converts a data: URI into a payload. Both base64 and
// URL-encoded bodies are supported.
func DecodeDataURL(src string) (*Payload, error) {
	rest := strings.TrimPrefix(src, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, fmt.Errorf("malformed data url")
	}
	meta, body := rest[:comma], rest[comma+1:]

	mime := "text/plain"
	base64Encoded := false
	for i, part := range strings.Split(meta, ";") {
		if part == "base64" {
			base64Encoded = true
		} else if i == 0 && part != "" {
			mime = part
		}
	}

	var data []byte
	var err error
	if base64Encoded {
		data, err = base64.StdEncoding.DecodeString(body)
	} else {
		// Percent escapes only. QueryUnescape would also turn a literal +
		// into a space and corrupt SVG path data.
		var decoded string
		decoded, err = url.PathUnescape(body)
		data = []byte(decoded)
	}
	if err != nil {
		return nil, fmt.Errorf("decode data url body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data url body")
	}
	return &Payload{Bytes: data, MIME: mime}, nil
}

// blobURLTechnique is step 3: blob: object URLs are only resolvable inside
// the page context, so they go through the injected fetcher.
type blobURLTechnique struct {
	fetcher Fetcher
}

// NewBlobURLTechnique returns the blob-URL resolution step.
func NewBlobURLTechnique(fetcher Fetcher) Technique {
	return &blobURLTechnique{fetcher: fetcher}
}

func (t *blobURLTechnique) Name() TechniqueName { return TechniqueBlobURL }

func (t *blobURLTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	if t.fetcher == nil || !strings.HasPrefix(el.Src, "blob:") {
		return nil, ErrNotApplicable
	}
	return t.fetcher.Fetch(ctx, el.Src)
}

var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// ParseBackgroundURL extracts the first url(...) reference from a CSS
// background-image value. Returns "" when there is none (e.g. gradients).
func ParseBackgroundURL(value string) string {
	m := cssURLPattern.FindStringSubmatch(value)
	if len(m) < 2 {
		return ""
	}
	u := strings.TrimSpace(m[1])
	if strings.HasPrefix(u, "gradient") || u == "none" {
		return ""
	}
	return u
}

// backgroundTechnique is step 4: pull the URL out of the CSS background and
// recurse into the redraw path with a synthetic image element.
type backgroundTechnique struct {
	inner Technique
}

// NewBackgroundTechnique returns the CSS background extraction step. inner is
// the technique used on the synthesized image element, normally canvas.
func NewBackgroundTechnique(inner Technique) Technique {
	return &backgroundTechnique{inner: inner}
}

func (t *backgroundTechnique) Name() TechniqueName { return TechniqueBackground }

func (t *backgroundTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	src := ParseBackgroundURL(el.BackgroundImage)
	if src == "" {
		return nil, ErrNotApplicable
	}
	if strings.HasPrefix(src, "data:") {
		return DecodeDataURL(src)
	}
	if t.inner == nil {
		return nil, ErrNotApplicable
	}
	synthetic := &Element{
		ID:               el.ID,
		Kind:             KindImage,
		Selector:         el.Selector,
		Src:              src,
		Rect:             el.Rect,
		DevicePixelRatio: el.DevicePixelRatio,
	}
	return t.inner.Capture(ctx, synthetic)
}

// screenshotTechnique is step 5: rasterize the visible viewport through the
// host-privileged API and crop the element's rect out of it. The only step
// that works under strict cross-origin and CSP image blocking.
type screenshotTechnique struct {
	client ScreenshotClient
	// quality for the re-encoded crop.
	jpegQuality int
}

// NewScreenshotTechnique returns the screenshot-and-crop step.
func NewScreenshotTechnique(client ScreenshotClient, jpegQuality int) Technique {
	return &screenshotTechnique{client: client, jpegQuality: jpegQuality}
}

func (t *screenshotTechnique) Name() TechniqueName { return TechniqueScreenshot }

func (t *screenshotTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	if t.client == nil {
		return nil, ErrNotApplicable
	}
	if el.Rect.W <= 0 || el.Rect.H <= 0 {
		return nil, fmt.Errorf("element has no visible box")
	}
	shot, viewport, err := t.client.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("viewport screenshot: %w", err)
	}
	dpr := el.DevicePixelRatio
	if dpr <= 0 {
		dpr = viewport.DevicePixelRatio
	}
	return CropPayload(shot, el.Rect, dpr, t.jpegQuality)
}

// domCloneTechnique is step 6, optional: clone the node off-screen and hand
// it to an external rasterizer. Registered only when one is configured.
type domCloneTechnique struct {
	raster DOMRasterizer
}

// NewDOMCloneTechnique returns the clone-and-rasterize step.
func NewDOMCloneTechnique(raster DOMRasterizer) Technique {
	return &domCloneTechnique{raster: raster}
}

func (t *domCloneTechnique) Name() TechniqueName { return TechniqueDOMClone }

func (t *domCloneTechnique) Capture(ctx context.Context, el *Element) (*Payload, error) {
	if t.raster == nil || el.Selector == "" {
		return nil, ErrNotApplicable
	}
	return t.raster.RasterizeClone(ctx, el)
}

// DefaultCascadeTechniques assembles the standard six-step order. Nil
// collaborators simply make their steps report ErrNotApplicable, keeping the
// declared order fixed regardless of configuration.
func DefaultCascadeTechniques(raster ElementRasterizer, fetcher Fetcher, shooter ScreenshotClient, clone DOMRasterizer, jpegQuality int) []Technique {
	canvas := NewCanvasTechnique(raster)
	return []Technique{
		canvas,
		NewDataURLTechnique(),
		NewBlobURLTechnique(fetcher),
		NewBackgroundTechnique(canvas),
		NewScreenshotTechnique(shooter, jpegQuality),
		NewDOMCloneTechnique(clone),
	}
}
