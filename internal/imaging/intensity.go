package imaging

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/surf-mcp/internal/field"
)

// ToIntensity converts img to a grayscale intensity field on the 0-255
// scale. The image origin maps to (0, 0) in the field.
func ToIntensity(img image.Image) *field.Field[float64] {
	if g, ok := img.(*image.Gray); ok {
		return field.FromGray(g)
	}

	// Grayscale returns an NRGBA image with R = G = B.
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	out := field.New[float64](b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		row := out.Row(y)
		src := gray.Pix[y*gray.Stride:]
		for x := range row {
			row[x] = float64(src[x*4])
		}
	}
	return out
}

// Downscale shrinks img so that neither side exceeds maxSide, preserving the
// aspect ratio. It returns the (possibly unchanged) image and the factor that
// maps coordinates in the result back to img. A maxSide <= 0 disables
// scaling.
func Downscale(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	if maxSide <= 0 || (b.Dx() <= maxSide && b.Dy() <= maxSide) {
		return img, 1
	}
	scaled := imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	return scaled, float64(b.Dx()) / float64(scaled.Bounds().Dx())
}
