//go:build !degraded

// Package cache's default build links disintegration/imaging for the
// resize+re-encode pipeline (spec §4.3.2). Build with -tags degraded to get
// the pass-through path in transform_fallback.go instead.
package cache

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
)

const imagingAvailable = true

// TransformOptions configures the resize+re-encode pipeline.
type TransformOptions struct {
	DisplayWidth  int
	DisplayHeight int
	Quality       int // 1-100, canonical 85
}

// TransformResult is the re-encoded image plus its post-transform
// dimensions, used for the PhotoMeta width/height the Catalog stores.
type TransformResult struct {
	Data   []byte
	Width  int
	Height int
}

// Transform reads the full source stream, resizes it to fit within
// (DisplayWidth, DisplayHeight) without upscaling, and re-encodes as JPEG
// at the configured quality.
func Transform(src io.Reader, opts TransformOptions) (*TransformResult, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, err
	}

	resized := fitWithoutUpscale(img, opts.DisplayWidth, opts.DisplayHeight)

	var buf bytes.Buffer
	// image/jpeg's stdlib encoder is baseline-only; a true progressive
	// encoder would need a cgo libjpeg binding, which conflicts with the
	// pure-Go cross-compilation goal (SPEC_FULL §3). Quality
	// is still honored exactly as configured.
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, err
	}

	bounds := resized.Bounds()
	return &TransformResult{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// fitWithoutUpscale resizes img to fit within (w, h) preserving aspect
// ratio, but never enlarges an image smaller than the target box.
func fitWithoutUpscale(img image.Image, w, h int) image.Image {
	b := img.Bounds()
	if b.Dx() <= w && b.Dy() <= h {
		return img
	}
	return imaging.Fit(img, w, h, imaging.Lanczos)
}
