package surf

import (
	"math"

	"github.com/ironsheep/surf-mcp/internal/integral"
)

const orientationRadius = 6

// AssignOrientation returns the dominant gradient direction around a
// keypoint, in radians. Haar responses on a circular grid of radius 6·scale
// are Gaussian weighted, binned into sectors, smoothed with a circular window
// of ±sectors/12, and the strongest window wins. Ties keep the lowest sector.
func AssignOrientation(ii *integral.Image, kp Keypoint, sectors int) float64 {
	sumX := make([]float64, sectors)
	sumY := make([]float64, sectors)
	lambda := fround(2 * kp.Scale)

	for i := -orientationRadius; i <= orientationRadius; i++ {
		for j := -orientationRadius; j <= orientationRadius; j++ {
			if i*i+j*j > orientationRadius*orientationRadius {
				continue
			}
			px := int(kp.X + kp.Scale*float64(i))
			py := int(kp.Y + kp.Scale*float64(j))
			hx := ii.HaarX(px, py, lambda)
			hy := ii.HaarY(px, py, lambda)

			theta := int(math.Atan2(hy, hx) * float64(sectors) / (2 * math.Pi))
			if theta < 0 {
				theta += sectors
			}

			g := gaussian(float64(i), float64(j), 2)
			sumX[theta] += hx * g
			sumY[theta] += hy * g
		}
	}

	half := sectors / 12
	best, bestX, bestY := -1.0, 0.0, 0.0
	for k := 0; k < sectors; k++ {
		var wx, wy float64
		for m := -half; m <= half; m++ {
			s := ((k+m)%sectors + sectors) % sectors
			wx += sumX[s]
			wy += sumY[s]
		}
		if norm := wx*wx + wy*wy; best < norm {
			best, bestX, bestY = norm, wx, wy
		}
	}
	return math.Atan2(bestY, bestX)
}

func gaussian(x, y, sigma float64) float64 {
	return 1 / (2 * math.Pi * sigma * sigma) * math.Exp(-(x*x+y*y)/(2*sigma*sigma))
}

func fround(v float64) int {
	return int(v + 0.5)
}
