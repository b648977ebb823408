package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func uniformImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func chartLikeImage(w, h int) *image.RGBA {
	img := uniformImage(w, h, color.RGBA{R: 19, G: 23, B: 34, A: 255})
	up := color.RGBA{R: 41, G: 189, B: 140, A: 255}
	down := color.RGBA{R: 246, G: 70, B: 93, A: 255}
	for x := 10; x < w-10; x += 24 {
		c := up
		if (x/24)%2 == 0 {
			c = down
		}
		for y := h / 4; y < 3*h/4; y++ {
			img.SetRGBA(x, y, c)
			img.SetRGBA(x+1, y, c)
		}
	}
	return img
}

func TestIsBlankDetectsUniformFrame(t *testing.T) {
	img := uniformImage(320, 240, color.RGBA{R: 19, G: 23, B: 34, A: 255})
	if !isBlank(img) {
		t.Fatalf("isBlank(uniform) = false, want true")
	}
}

func TestIsBlankToleratesDithering(t *testing.T) {
	img := uniformImage(320, 240, color.RGBA{R: 100, G: 100, B: 100, A: 255})
	// Per-pixel noise of one color step stays under the tolerance.
	for y := 0; y < 240; y += 3 {
		for x := 0; x < 320; x += 3 {
			img.SetRGBA(x, y, color.RGBA{R: 101, G: 99, B: 100, A: 255})
		}
	}
	if !isBlank(img) {
		t.Fatalf("isBlank(dithered flat) = false, want true")
	}
}

func TestIsBlankAcceptsDrawnChart(t *testing.T) {
	if isBlank(chartLikeImage(320, 240)) {
		t.Fatalf("isBlank(chart) = true, want false")
	}
}

func TestDecodePNGRoundTrip(t *testing.T) {
	data := encodePNG(t, chartLikeImage(64, 48))
	img, err := decodePNG(data)
	if err != nil {
		t.Fatalf("decodePNG() error = %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Fatalf("decoded bounds = %v, want 64x48", img.Bounds())
	}
}

func TestDecodePNGRejectsGarbage(t *testing.T) {
	if _, err := decodePNG([]byte("definitely not a png")); err == nil {
		t.Fatalf("decodePNG(garbage) should fail")
	}
}
