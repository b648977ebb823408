package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

const (
	// blankSampleGrid is the per-axis sample count when probing a
	// frame for uniformity. 24x24 probes are enough to catch any
	// drawn chart without walking every pixel.
	blankSampleGrid = 24

	// blankTolerance is the maximum per-channel deviation, in 16-bit
	// color units, still considered uniform. Allows for compression
	// dithering on flat backgrounds.
	blankTolerance = 600
)

func decodePNG(data []byte) (image.Image, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("capture: decode screenshot: %w", err)
	}
	return img, nil
}

// isBlank reports whether the image is visually uniform. A painted
// chart always has axis labels and series pixels that differ from the
// background, so a uniform frame means the widget never drew.
func isBlank(img image.Image) bool {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return true
	}

	var r0, g0, b0 uint32
	first := true
	for iy := 0; iy < blankSampleGrid; iy++ {
		for ix := 0; ix < blankSampleGrid; ix++ {
			x := b.Min.X + b.Dx()*ix/blankSampleGrid
			y := b.Min.Y + b.Dy()*iy/blankSampleGrid
			r, g, bb, _ := img.At(x, y).RGBA()
			if first {
				r0, g0, b0 = r, g, bb
				first = false
				continue
			}
			if delta(r, r0) > blankTolerance || delta(g, g0) > blankTolerance || delta(bb, b0) > blankTolerance {
				return false
			}
		}
	}
	return true
}

func delta(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
