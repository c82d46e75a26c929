package imagegen

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// chromaColor is the reference chroma key color the mask prompt asks for.
var chromaColor = color.NRGBA{R: 0, G: 255, B: 0, A: 255}

// encodePNG builds a PNG where every pixel is fill except the listed
// points, which are painted with the chroma key color.
func encodePNG(t *testing.T, w, h int, fill color.NRGBA, chromaAt []image.Point) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}
	for _, p := range chromaAt {
		img.SetNRGBA(p.X, p.Y, chromaColor)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func decodeNRGBA(t *testing.T, data []byte) *image.NRGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok {
		b := img.Bounds()
		nrgba = image.NewNRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				nrgba.Set(x, y, img.At(x, y))
			}
		}
	}
	return nrgba
}

var opaqueRed = color.NRGBA{R: 200, G: 30, B: 30, A: 255}

func TestRemoveBackground_AppliesAlphaAtChromaPixels(t *testing.T) {
	chromaAt := []image.Point{{X: 0, Y: 0}, {X: 3, Y: 2}}
	base := encodePNG(t, 4, 4, opaqueRed, nil)
	mask := encodePNG(t, 4, 4, opaqueRed, chromaAt)

	out, transparent, err := RemoveBackground(base, mask)
	if err != nil {
		t.Fatalf("RemoveBackground: %v", err)
	}
	if !transparent {
		t.Fatal("transparent = false, want true")
	}

	img := decodeNRGBA(t, out)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			wantAlpha := uint8(255)
			for _, p := range chromaAt {
				if p.X == x && p.Y == y {
					wantAlpha = 0
				}
			}
			if got := img.NRGBAAt(x, y).A; got != wantAlpha {
				t.Errorf("pixel (%d,%d) alpha = %d, want %d", x, y, got, wantAlpha)
			}
		}
	}
}

func TestRemoveBackground_ZeroChromaPixelsReturnsOriginal(t *testing.T) {
	base := encodePNG(t, 4, 4, opaqueRed, nil)
	mask := encodePNG(t, 4, 4, opaqueRed, nil)

	out, transparent, err := RemoveBackground(base, mask)
	if err != nil {
		t.Fatalf("RemoveBackground: %v", err)
	}
	if transparent {
		t.Error("transparent = true, want false")
	}
	if !bytes.Equal(out, base) {
		t.Error("output differs from original bytes")
	}
}

func TestRemoveBackground_Fallbacks(t *testing.T) {
	base := encodePNG(t, 4, 4, opaqueRed, nil)
	tests := []struct {
		name string
		mask []byte
	}{
		{"absent mask", nil},
		{"undecodable mask", []byte("not an image")},
		{"dimension mismatch", encodePNG(t, 2, 2, opaqueRed, []image.Point{{X: 0, Y: 0}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, transparent, err := RemoveBackground(base, tt.mask)
			if err != nil {
				t.Fatalf("RemoveBackground: %v", err)
			}
			if transparent {
				t.Error("transparent = true, want false")
			}
			if !bytes.Equal(out, base) {
				t.Error("output differs from original bytes")
			}
		})
	}
}

func TestRemoveBackground_UndecodableBaseIsAnError(t *testing.T) {
	mask := encodePNG(t, 4, 4, opaqueRed, []image.Point{{X: 0, Y: 0}})
	if _, _, err := RemoveBackground([]byte("junk"), mask); err == nil {
		t.Fatal("expected error for undecodable base image")
	}
}

func TestIsChroma_ThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    bool
	}{
		{"pure green", 0, 255, 0, true},
		{"exactly at threshold", 100, 140, 100, false},
		{"one over threshold", 100, 141, 100, true},
		{"green dominates red only", 50, 200, 180, false},
		{"green dominates blue only", 180, 200, 50, false},
		{"white", 255, 255, 255, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isChroma(tt.r, tt.g, tt.b); got != tt.want {
				t.Errorf("isChroma(%d,%d,%d) = %v, want %v", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

func TestThumbnail_ScalesLongestSide(t *testing.T) {
	data := encodePNG(t, 64, 32, opaqueRed, nil)
	thumb, err := Thumbnail(data, 16)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	img := decodeNRGBA(t, thumb)
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 16 || h != 8 {
		t.Errorf("thumbnail = %dx%d, want 16x8", w, h)
	}
}

func TestThumbnail_SmallImageKeepsDimensions(t *testing.T) {
	data := encodePNG(t, 8, 8, opaqueRed, nil)
	thumb, err := Thumbnail(data, 16)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	img := decodeNRGBA(t, thumb)
	if w, h := img.Bounds().Dx(), img.Bounds().Dy(); w != 8 || h != 8 {
		t.Errorf("thumbnail = %dx%d, want 8x8", w, h)
	}
}
