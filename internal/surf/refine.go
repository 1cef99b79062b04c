package surf

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Refine fits a quadratic to the 3x3x3 neighbourhood of an extremum and
// moves it to the sub-sample peak. It reports false when the candidate sits
// on the border, the local Hessian is singular, or the peak lies further
// than cfg.MaxOffset from the sample on any axis.
func Refine(oct *Octave, c Coordinate, cfg Config) (Keypoint, bool) {
	x, y, i := c.X, c.Y, c.Interval
	if x <= 0 || y <= 0 || x >= oct.Width-2 || y >= oct.Height-2 {
		return Keypoint{}, false
	}
	if i <= 0 || i >= len(oct.Hessian)-1 {
		return Keypoint{}, false
	}

	prev, cur, next := oct.Hessian[i-1], oct.Hessian[i], oct.Hessian[i+1]
	a := cur.At(x, y)

	dx := (cur.At(x+1, y) - cur.At(x-1, y)) / 2
	dy := (cur.At(x, y+1) - cur.At(x, y-1)) / 2
	var di float64
	if cfg.ScaleGradient == ScaleGradientCentral {
		di = (next.At(x, y) - prev.At(x, y)) / 2
	}

	dxx := cur.At(x+1, y) + cur.At(x-1, y) - 2*a
	dyy := cur.At(x, y+1) + cur.At(x, y-1) - 2*a
	dii := prev.At(x, y) + next.At(x, y) - 2*a

	dxy := (cur.At(x+1, y+1) - cur.At(x+1, y-1) - cur.At(x-1, y+1) + cur.At(x-1, y-1)) / 4
	dxi := (next.At(x+1, y) - next.At(x-1, y) - prev.At(x+1, y) + prev.At(x-1, y)) / 4
	dyi := (next.At(x, y+1) - next.At(x, y-1) - prev.At(x, y+1) + prev.At(x, y-1)) / 4

	hess := mat.NewDense(3, 3, []float64{
		dxx, dxy, dxi,
		dxy, dyy, dyi,
		dxi, dyi, dii,
	})

	var lu mat.LU
	lu.Factorize(hess)
	if lu.Det() == 0 {
		return Keypoint{}, false
	}

	var off mat.VecDense
	if err := lu.SolveVecTo(&off, false, mat.NewVecDense(3, []float64{-dx, -dy, -di})); err != nil {
		// An ill-conditioned but non-singular system still yields an offset;
		// the bounds below decide whether it is usable.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return Keypoint{}, false
		}
	}

	mx, my, mi := off.AtVec(0), off.AtVec(1), off.AtVec(2)
	for _, v := range [3]float64{mx, my, mi} {
		if math.IsNaN(v) || math.Abs(v) > cfg.MaxOffset {
			return Keypoint{}, false
		}
	}

	lobes := float64(int(1) << (oct.Index + 1))
	stride := float64(oct.Stride)
	kp := Keypoint{
		X:         stride*(float64(x)+mx) + 0.5,
		Y:         stride*(float64(y)+my) + 0.5,
		Scale:     cfg.BaseScale * (1 + lobes*(float64(i)+mi+1)),
		Laplacian: -1,
		Octave:    oct.Index,
	}
	if oct.SignLaplacian[i].At(x, y) == 1 {
		kp.Laplacian = 1
	}
	return kp, true
}
