package surf

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/surf-mcp/internal/integral"
)

const (
	descriptorCells   = 4
	descriptorSamples = 5
	descriptorSigma   = 3.3
)

// BuildDescriptor samples a 20·scale square window aligned with the keypoint
// orientation. The window is split into 4x4 cells of 5x5 samples; each cell
// accumulates the rotated Haar responses (sumDx, sumDy, sumAbsDx, sumAbsDy).
// The vector is scaled to unit length unless every response was zero.
func BuildDescriptor(ii *integral.Image, kp Keypoint) Descriptor {
	d := Descriptor{Keypoint: kp}
	cosP, sinP := math.Cos(kp.Orientation), math.Sin(kp.Orientation)
	lambda := fround(kp.Scale)
	half := float64(descriptorCells / 2)

	for i := 0; i < descriptorCells; i++ {
		for j := 0; j < descriptorCells; j++ {
			var sumDx, sumDy, sumAbsDx, sumAbsDy float64
			for k := 0; k < descriptorSamples; k++ {
				for l := 0; l < descriptorSamples; l++ {
					a := (float64(i)-half)*descriptorSamples + float64(k) + 0.5
					b := (float64(j)-half)*descriptorSamples + float64(l) + 0.5

					// (u, v) already include the half-sample shift, so
					// truncation picks the nearest pixel.
					u := kp.X + kp.Scale*(cosP*a-sinP*b)
					v := kp.Y + kp.Scale*(sinP*a+cosP*b)
					hx := ii.HaarX(int(u), int(v), lambda)
					hy := ii.HaarY(int(u), int(v), lambda)

					g := gaussian(a, b, descriptorSigma)
					ru := g * (hx*cosP + hy*sinP)
					rv := g * (-hx*sinP + hy*cosP)

					sumDx += ru
					sumAbsDx += math.Abs(ru)
					sumDy += rv
					sumAbsDy += math.Abs(rv)
				}
			}
			cell := d.Vector[4*(descriptorCells*i+j):]
			cell[0], cell[1], cell[2], cell[3] = sumDx, sumDy, sumAbsDx, sumAbsDy
		}
	}

	v := d.Vector[:]
	if norm := floats.Norm(v, 2); norm != 0 {
		floats.Scale(1/norm, v)
	}
	return d
}
