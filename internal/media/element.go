// Package media implements the visual capture cascade: an ordered list of
// fallback techniques tried per element until one yields pixels, plus batch
// driving with deduplication and one-shot frame/SVG capture.
package media

import (
	"github.com/google/uuid"
)

// Kind categorizes the visual element being captured.
type Kind string

const (
	KindImage      Kind = "img"
	KindCanvas     Kind = "canvas"
	KindVideo      Kind = "video"
	KindSVG        Kind = "svg"
	KindBackground Kind = "background"
)

// Rect is an element bounding box in CSS pixels.
type Rect struct {
	X, Y, W, H float64
}

// Element is a captured-from reference to one visual element on a page.
// Selector locates it in the live DOM for techniques that need the renderer.
type Element struct {
	ID       string
	Kind     Kind
	Selector string
	// Src is the element's source URL: http(s), data:, or blob:.
	Src string
	// BackgroundImage is the raw CSS background-image value, when the
	// element is styled rather than sourced.
	BackgroundImage string
	// SVGMarkup is the serialized <svg> subtree for inline vector elements.
	SVGMarkup string
	Rect      Rect
	// DevicePixelRatio maps CSS pixels to raster pixels for cropping.
	DevicePixelRatio float64
}

// Key returns the deduplication key for batch capture: the source URL when
// present, otherwise a random id so unsourced elements never collide.
func (e *Element) Key() string {
	if e.Src != "" {
		return e.Src
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return e.ID
}

// Payload is a successfully captured image.
type Payload struct {
	Bytes []byte
	MIME  string
}
