// Package render draws detected keypoints and matches over their source
// images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/surf-mcp/internal/surf"
)

// radiusPerScale converts a keypoint scale to the radius of its marker.
const radiusPerScale = 2.5

// Style controls marker appearance.
type Style struct {
	// Positive and Negative colour markers by Laplacian sign. They are
	// ignored when ByOctave is set.
	Positive color.Color
	Negative color.Color

	// ByOctave picks a hue per octave and darkens negative-sign markers.
	ByOctave bool

	LineWidth float64
}

// DefaultStyle returns cyan markers for positive and orange markers for
// negative Laplacian signs.
func DefaultStyle() Style {
	return Style{
		Positive:  color.RGBA{R: 0, G: 200, B: 255, A: 255},
		Negative:  color.RGBA{R: 255, G: 120, B: 0, A: 255},
		LineWidth: 1.5,
	}
}

func (s Style) markerColor(kp surf.Keypoint) color.Color {
	if s.ByOctave {
		hue := math.Mod(float64(kp.Octave)*90, 360)
		v := 1.0
		if kp.Laplacian < 0 {
			v = 0.65
		}
		return colorful.Hsv(hue, 0.85, v).Clamped()
	}
	if kp.Laplacian > 0 {
		return s.Positive
	}
	return s.Negative
}

func (s Style) lineWidth() float64 {
	if s.LineWidth <= 0 {
		return 1
	}
	return s.LineWidth
}

// Keypoints returns a copy of img with a circle of radius 2.5·scale and an
// orientation tick drawn for every keypoint.
func Keypoints(img image.Image, kps []surf.Keypoint, style Style) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)

	for _, kp := range kps {
		drawMarker(dc, kp, 0, style.markerColor(kp), style.lineWidth())
	}
	return dc.Image()
}

// Matches places a and b side by side and joins every matched pair with a
// line. Each match gets its own hue so that crossing lines stay readable.
func Matches(a, b image.Image, matches []surf.Match, style Style) image.Image {
	ba, bb := a.Bounds(), b.Bounds()
	offset := float64(ba.Dx())

	dc := gg.NewContext(ba.Dx()+bb.Dx(), max(ba.Dy(), bb.Dy()))
	dc.SetColor(color.Black)
	dc.Clear()
	dc.DrawImage(a, -ba.Min.X, -ba.Min.Y)
	dc.DrawImage(b, ba.Dx()-bb.Min.X, -bb.Min.Y)

	lw := style.lineWidth()
	for _, m := range matches {
		c := colorful.Hsv(math.Mod(float64(m.ID)*137.508, 360), 0.8, 1).Clamped()
		drawMarker(dc, m.A.Keypoint, 0, c, lw)
		drawMarker(dc, m.B.Keypoint, offset, c, lw)

		dc.SetColor(c)
		dc.SetLineWidth(lw)
		dc.DrawLine(m.A.X, m.A.Y, m.B.X+offset, m.B.Y)
		dc.Stroke()
	}
	return dc.Image()
}

func drawMarker(dc *gg.Context, kp surf.Keypoint, dx float64, c color.Color, lw float64) {
	x, y := kp.X+dx, kp.Y
	r := radiusPerScale * kp.Scale

	dc.SetColor(c)
	dc.SetLineWidth(lw)
	dc.DrawCircle(x, y, r)
	dc.Stroke()

	dc.DrawLine(x, y, x+r*math.Cos(kp.Orientation), y+r*math.Sin(kp.Orientation))
	dc.Stroke()
}

// Save writes img to path, choosing PNG or JPEG from the extension.
func Save(path string, img image.Image) error {
	var enc imgio.Encoder
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		enc = imgio.PNGEncoder()
	case ".jpg", ".jpeg":
		enc = imgio.JPEGEncoder(95)
	default:
		return fmt.Errorf("unsupported output format: %s", filepath.Ext(path))
	}

	if err := imgio.Save(path, img, enc); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// ParseHexColor converts "#RRGGBB" or "#RRGGBBAA" to a colour. The leading
// '#' is optional.
func ParseHexColor(hex string) (color.NRGBA, error) {
	hex = strings.TrimPrefix(hex, "#")

	var shift uint
	switch len(hex) {
	case 6:
		shift = 0
	case 8:
		shift = 8
	default:
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q", hex)
	}

	val, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color %q: %w", hex, err)
	}

	c := color.NRGBA{
		R: uint8(val >> (16 + shift)),
		G: uint8(val >> (8 + shift)),
		B: uint8(val >> shift),
		A: 255,
	}
	if shift > 0 {
		c.A = uint8(val)
	}
	return c, nil
}
