package media

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
)

const defaultJPEGQuality = 85

// CropRect maps a CSS-pixel rect into raster coordinates at the given device
// pixel ratio, clamped to the raster bounds.
func CropRect(bounds image.Rectangle, r Rect, dpr float64) image.Rectangle {
	if dpr <= 0 {
		dpr = 1
	}
	crop := image.Rect(
		int(r.X*dpr),
		int(r.Y*dpr),
		int((r.X+r.W)*dpr),
		int((r.Y+r.H)*dpr),
	)
	return crop.Intersect(bounds)
}

// CropPayload decodes a screenshot, crops the element rect out of it with DPR
// compensation, and re-encodes as JPEG.
func CropPayload(shot *Payload, r Rect, dpr float64, jpegQuality int) (*Payload, error) {
	img, _, err := image.Decode(bytes.NewReader(shot.Bytes))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	crop := CropRect(img.Bounds(), r, dpr)
	if crop.Empty() {
		return nil, fmt.Errorf("element rect %+v outside screenshot bounds %v", r, img.Bounds())
	}

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Bounds(), img, crop.Min, draw.Src)

	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = defaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return &Payload{Bytes: buf.Bytes(), MIME: "image/jpeg"}, nil
}
