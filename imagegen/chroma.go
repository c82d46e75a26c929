// chroma.go implements the background removal atom: a pixel-threshold
// green-screen alpha pass over a base image and its chroma mask image.
package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// ChromaDominanceThreshold is how far the green channel must exceed both
// the red and blue channels for a mask pixel to count as background.
const ChromaDominanceThreshold = 40

// RemoveBackground applies a chroma-key alpha pass to base using mask.
//
// Both inputs are encoded image bytes (PNG or JPEG). For every pixel, the
// mask pixel is classified as background when its green channel exceeds
// both red and blue by more than ChromaDominanceThreshold; the matching
// base pixel's alpha is then set fully transparent. The result is encoded
// as PNG.
//
// Fallback: when the mask is empty, fails to decode, has different
// dimensions than the base, or contains zero qualifying pixels, the base
// bytes are returned unchanged with transparent=false and a nil error.
// Only an undecodable base image is an error.
//
// RemoveBackground is a pure function of its inputs.
func RemoveBackground(base, mask []byte) (out []byte, transparent bool, err error) {
	baseImg, _, err := image.Decode(bytes.NewReader(base))
	if err != nil {
		return nil, false, fmt.Errorf("imagegen: failed to decode base image: %w", err)
	}

	if len(mask) == 0 {
		return base, false, nil
	}
	maskImg, _, err := image.Decode(bytes.NewReader(mask))
	if err != nil {
		return base, false, nil
	}
	if !baseImg.Bounds().Size().Eq(maskImg.Bounds().Size()) {
		return base, false, nil
	}

	bounds := baseImg.Bounds()
	result := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(result, result.Bounds(), baseImg, bounds.Min, xdraw.Src)

	maskBounds := maskImg.Bounds()
	chromaPixels := 0
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			r, g, b, _ := maskImg.At(maskBounds.Min.X+x, maskBounds.Min.Y+y).RGBA()
			if isChroma(uint8(r>>8), uint8(g>>8), uint8(b>>8)) {
				chromaPixels++
				i := result.PixOffset(x, y)
				result.Pix[i+3] = 0
			}
		}
	}

	if chromaPixels == 0 {
		return base, false, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, result); err != nil {
		return nil, false, fmt.Errorf("imagegen: failed to encode transparent image: %w", err)
	}
	return buf.Bytes(), true, nil
}

// isChroma reports whether a pixel's green channel dominates red and blue
// by more than the threshold.
func isChroma(r, g, b uint8) bool {
	return int(g)-int(r) > ChromaDominanceThreshold && int(g)-int(b) > ChromaDominanceThreshold
}

// Thumbnail scales image data down so its longest side is at most maxDim
// pixels, preserving aspect ratio, and re-encodes as PNG. Images already
// within bounds are re-encoded without scaling.
func Thumbnail(data []byte, maxDim int) ([]byte, error) {
	if maxDim <= 0 {
		return nil, fmt.Errorf("imagegen: thumbnail dimension must be positive, got %d", maxDim)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to decode image for thumbnail: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > h {
		if w > maxDim {
			h = h * maxDim / w
			w = maxDim
		}
	} else {
		if h > maxDim {
			w = w * maxDim / h
			h = maxDim
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("imagegen: failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
