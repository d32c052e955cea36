package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// svgRasterWait bounds how long an SVG raster load may take before the
// capture gives up.
const svgRasterWait = time.Second

// CaptureFrame grabs the current contents of a <video> or <canvas> element.
// No cascade: either the direct draw works or the element is skipped.
func CaptureFrame(ctx context.Context, raster ElementRasterizer, el *Element) (*Result, error) {
	if el.Kind != KindVideo && el.Kind != KindCanvas {
		return nil, fmt.Errorf("frame capture needs a video or canvas element, got %s", el.Kind)
	}
	if raster == nil {
		return nil, ErrNotApplicable
	}
	payload, err := raster.RasterizeElement(ctx, el)
	if err != nil {
		return nil, fmt.Errorf("frame capture: %w", err)
	}
	return &Result{
		Element:   el,
		Technique: TechniqueCanvas,
		Payload:   payload,
		Attempts:  []Attempt{{Technique: TechniqueCanvas}},
	}, nil
}

// CaptureSVG serializes an inline <svg> element to a data URI and rasterizes
// it, waiting at most one second for the raster load. Without a rasterizer
// the serialized vector itself is the payload.
func CaptureSVG(ctx context.Context, raster ElementRasterizer, el *Element) (*Result, error) {
	if el.Kind != KindSVG || el.SVGMarkup == "" {
		return nil, fmt.Errorf("svg capture needs serialized svg markup")
	}

	dataURL := SVGDataURL(el.SVGMarkup)

	if raster == nil {
		payload, err := DecodeDataURL(dataURL)
		if err != nil {
			return nil, err
		}
		return &Result{
			Element:   el,
			Technique: TechniqueDataURL,
			Payload:   payload,
			Attempts:  []Attempt{{Technique: TechniqueDataURL}},
		}, nil
	}

	rasterCtx, cancel := context.WithTimeout(ctx, svgRasterWait)
	defer cancel()

	synthetic := *el
	synthetic.Kind = KindImage
	synthetic.Src = dataURL
	payload, err := raster.RasterizeElement(rasterCtx, &synthetic)
	if err != nil {
		return nil, fmt.Errorf("svg raster: %w", err)
	}
	return &Result{
		Element:   el,
		Technique: TechniqueCanvas,
		Payload:   payload,
		Attempts:  []Attempt{{Technique: TechniqueCanvas}},
	}, nil
}

// SVGDataURL wraps serialized SVG markup in a base64 data URI.
func SVGDataURL(markup string) string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(markup))
}
