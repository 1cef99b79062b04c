// Package integral builds summed-area tables over mirror-padded images and
// answers constant-time box queries against them.
//
// # Coordinates
//
// All query coordinates are source-image coordinates. Negative values and
// values past the image edge address the mirrored border, which extends
// Padding samples on every side. Image.At(x, y) is the sum of every padded
// sample whose column is <= x and whose row is <= y, so it is defined for
// -Padding-1 <= x <= Width+Padding-1 (and the same range for y).
//
// # Box Sums
//
// RectSum(x1, y1, x2, y2) returns the sum over the half-open rectangle
// (x1, x2] x (y1, y2] using the four-corner identity.
package integral

import (
	"fmt"

	"github.com/ironsheep/surf-mcp/internal/field"
	"github.com/ironsheep/surf-mcp/internal/kernel"
)

// Image is an immutable summed-area table over a mirror-padded source.
type Image struct {
	Width   int
	Height  int
	Padding int

	// sums has one leading zero row and column ahead of the padded data.
	sums *field.Field[float64]
}

// Mirror returns src extended by padding samples on every side. A
// coordinate i outside [0, w) maps to |i| mod 2w, reflected to 2w-i-1 when
// that lands at or past w.
func Mirror(src *field.Field[float64], padding int, backend kernel.Backend) *field.Field[float64] {
	if padding < 0 {
		panic(fmt.Sprintf("integral: negative padding %d", padding))
	}
	if src.Width == 0 || src.Height == 0 {
		panic(fmt.Sprintf("integral: empty source %dx%d", src.Width, src.Height))
	}

	pw, ph := src.Width+2*padding, src.Height+2*padding
	out := field.New[float64](pw, ph)

	cols := make([]int, pw)
	for i := range cols {
		cols[i] = reflect(i-padding, src.Width)
	}

	kernel.Each(backend, ph, func(j int) {
		srcRow := src.Row(reflect(j-padding, src.Height))
		dst := out.Row(j)
		for i, c := range cols {
			dst[i] = srcRow[c]
		}
	})
	return out
}

func reflect(i, n int) int {
	if i < 0 {
		i = -i
	}
	i %= 2 * n
	if i >= n {
		i = 2*n - i - 1
	}
	return i
}

// Build mirrors src by padding and computes its summed-area table with a row
// pass followed by a column pass.
func Build(src *field.Field[float64], padding int, backend kernel.Backend) *Image {
	padded := Mirror(src, padding, backend)
	pw, ph := padded.Width, padded.Height
	sums := field.New[float64](pw+1, ph+1)

	kernel.Each(backend, ph, func(j int) {
		in := padded.Row(j)
		out := sums.Row(j + 1)
		var acc float64
		for i, v := range in {
			acc += v
			out[i+1] = acc
		}
	})

	stride := sums.Width
	kernel.Each(backend, pw, func(i int) {
		col := i + 1
		var acc float64
		for j := 1; j <= ph; j++ {
			idx := j*stride + col
			acc += sums.Pix[idx]
			sums.Pix[idx] = acc
		}
	})

	return &Image{
		Width:   src.Width,
		Height:  src.Height,
		Padding: padding,
		sums:    sums,
	}
}

// At returns the running sum at source coordinate (x, y). It panics outside
// the padded domain.
func (im *Image) At(x, y int) float64 {
	return im.sums.At(x+im.Padding+1, y+im.Padding+1)
}

// RectSum returns the sum over (x1, x2] x (y1, y2].
func (im *Image) RectSum(x1, y1, x2, y2 int) float64 {
	return im.At(x2, y2) + im.At(x1, y1) - im.At(x2, y1) - im.At(x1, y2)
}

// BoxSum is the offset form used by the second-order box filters. With
// a1 = x-a, a2 = y-b, b1 = a1-c, b2 = a2-d it returns
// I(b1,b2) + I(a1,a2) - I(b1,a2) - I(a1,b2).
func (im *Image) BoxSum(a, b, c, d, x, y int) float64 {
	a1, a2 := x-a, y-b
	b1, b2 := a1-c, a2-d
	return im.At(b1, b2) + im.At(a1, a2) - im.At(b1, a2) - im.At(a1, b2)
}

// HaarX returns the horizontal Haar wavelet response at (x, y) with lobe
// half-width lambda: the right box minus the left box, each (lambda+1)
// columns by (2*lambda+1) rows. Corners outside the padded domain are
// clamped to it.
func (im *Image) HaarX(x, y, lambda int) float64 {
	right := im.clampedRectSum(x-1, y-lambda, x+lambda, y+lambda+1)
	left := im.clampedRectSum(x-lambda-1, y-lambda, x, y+lambda+1)
	return right - left
}

// HaarY returns the vertical Haar wavelet response at (x, y): the bottom box
// minus the top box.
func (im *Image) HaarY(x, y, lambda int) float64 {
	bottom := im.clampedRectSum(x-lambda, y-1, x+lambda+1, y+lambda)
	top := im.clampedRectSum(x-lambda, y-lambda-1, x+lambda+1, y)
	return bottom - top
}

func (im *Image) clampedRectSum(x1, y1, x2, y2 int) float64 {
	x1, x2 = im.clampX(x1), im.clampX(x2)
	y1, y2 = im.clampY(y1), im.clampY(y2)
	return im.RectSum(x1, y1, x2, y2)
}

func (im *Image) clampX(x int) int {
	return max(-im.Padding-1, min(x, im.Width+im.Padding-1))
}

func (im *Image) clampY(y int) int {
	return max(-im.Padding-1, min(y, im.Height+im.Padding-1))
}
