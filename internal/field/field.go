// Package field provides a dense, row-major 2D grid of numeric samples.
//
// A Field is the storage type shared by every stage of the detector: source
// intensities, the padded integral image, Hessian response planes and
// Laplacian sign planes. Indexing is validated; an out-of-range access is a
// programming error and panics.
package field

import (
	"fmt"
	"image"
)

// Number is the set of sample types a Field can hold.
type Number interface {
	~uint8 | ~int8 | ~int32 | ~int64 | ~float32 | ~float64
}

// Field is a Width x Height grid stored row-major in Pix.
type Field[T Number] struct {
	Width  int
	Height int
	Pix    []T
}

// New allocates a zero-filled field. It panics on negative dimensions.
func New[T Number](width, height int) *Field[T] {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("field: invalid dimensions %dx%d", width, height))
	}
	return &Field[T]{
		Width:  width,
		Height: height,
		Pix:    make([]T, width*height),
	}
}

// Wrap adopts pix as the backing store of a width x height field. The slice
// length must match exactly.
func Wrap[T Number](width, height int, pix []T) *Field[T] {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("field: invalid dimensions %dx%d", width, height))
	}
	if len(pix) != width*height {
		panic(fmt.Sprintf("field: buffer holds %d samples, want %d for %dx%d", len(pix), width*height, width, height))
	}
	return &Field[T]{Width: width, Height: height, Pix: pix}
}

// In reports whether (x, y) addresses a sample.
func (f *Field[T]) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

func (f *Field[T]) index(x, y int) int {
	if !f.In(x, y) {
		panic(fmt.Sprintf("field: index (%d,%d) out of range %dx%d", x, y, f.Width, f.Height))
	}
	return y*f.Width + x
}

// At returns the sample at (x, y).
func (f *Field[T]) At(x, y int) T {
	return f.Pix[f.index(x, y)]
}

// Set stores v at (x, y).
func (f *Field[T]) Set(x, y int, v T) {
	f.Pix[f.index(x, y)] = v
}

// Row returns the samples of row y. The returned slice aliases Pix.
func (f *Field[T]) Row(y int) []T {
	if y < 0 || y >= f.Height {
		panic(fmt.Sprintf("field: row %d out of range [0,%d)", y, f.Height))
	}
	return f.Pix[y*f.Width : (y+1)*f.Width]
}

// Fill sets every sample to v.
func (f *Field[T]) Fill(v T) {
	for i := range f.Pix {
		f.Pix[i] = v
	}
}

// FromGray converts an 8-bit grayscale image to intensities in [0, 255].
func FromGray(img *image.Gray) *Field[float64] {
	b := img.Bounds()
	out := New[float64](b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := out.Row(y)
		src := img.Pix[y*img.Stride : y*img.Stride+b.Dx()]
		for x, v := range src {
			row[x] = float64(v)
		}
	}
	return out
}

// FromNormalized builds a field from samples in [0, 1], rescaling them to
// the [0, 255] range the detector thresholds are tuned for.
func FromNormalized(width, height int, samples []float64) *Field[float64] {
	out := Wrap(width, height, make([]float64, len(samples)))
	for i, v := range samples {
		out.Pix[i] = v * 255
	}
	return out
}
