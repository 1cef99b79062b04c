package surf

import (
	"math"

	"github.com/ironsheep/surf-mcp/internal/field"
	"github.com/ironsheep/surf-mcp/internal/integral"
	"github.com/ironsheep/surf-mcp/internal/kernel"
)

// Octave holds the Hessian response and Laplacian sign planes of one octave.
// Planes are immutable once BuildOctave returns.
type Octave struct {
	Index  int
	Stride int
	Width  int
	Height int

	Hessian       []*field.Field[float64]
	SignLaplacian []*field.Field[uint8]
}

// BuildOctave evaluates the box-filter Hessian at every grid point of octave
// o for each configured interval. Work is dispatched over (interval, row)
// pairs; each unit writes a single row of one plane.
func BuildOctave(ii *integral.Image, o int, cfg Config, backend kernel.Backend) *Octave {
	stride := cfg.stride(o)
	oct := &Octave{
		Index:         o,
		Stride:        stride,
		Width:         ii.Width / stride,
		Height:        ii.Height / stride,
		Hessian:       make([]*field.Field[float64], cfg.Intervals),
		SignLaplacian: make([]*field.Field[uint8], cfg.Intervals),
	}

	filters := make([]boxFilter, cfg.Intervals)
	for i := range filters {
		filters[i] = newBoxFilter(LobeSize(o, i))
		oct.Hessian[i] = field.New[float64](oct.Width, oct.Height)
		oct.SignLaplacian[i] = field.New[uint8](oct.Width, oct.Height)
	}

	kernel.Each(backend, cfg.Intervals*oct.Height, func(unit int) {
		i, y := unit/oct.Height, unit%oct.Height
		f := filters[i]
		hess := oct.Hessian[i].Row(y)
		sign := oct.SignLaplacian[i].Row(y)
		yc := y * stride
		for x := range hess {
			dxx, dyy, dxy := f.apply(ii, x*stride, yc)
			hess[x] = dxx*dyy - cfg.HessianWeight*dxy*dxy
			if dxx+dyy > 0 {
				sign[x] = 1
			}
		}
	})

	return oct
}

// boxFilter caches the offsets and normalisation of the three second-order
// box filters for a lobe size l.
type boxFilter struct {
	l      int
	lp1    int
	l3     int
	lp1d2  int
	mlp1p2 int
	l2p1   int
	nxx    float64
	nxy    float64
}

func newBoxFilter(l int) boxFilter {
	lp1d2 := (-l + 1) / 2
	return boxFilter{
		l:      l,
		lp1:    -l + 1,
		l3:     3 * l,
		lp1d2:  lp1d2,
		mlp1p2: lp1d2 - l,
		l2p1:   2*l - 1,
		nxx:    math.Sqrt(float64(6 * l * (2*l - 1))),
		nxy:    math.Sqrt(float64(4 * l * l)),
	}
}

func (f boxFilter) apply(ii *integral.Image, x, y int) (dxx, dyy, dxy float64) {
	l := f.l
	dxx = (ii.BoxSum(f.lp1, f.mlp1p2, f.l2p1, f.l3, x, y) -
		3*ii.BoxSum(f.lp1, f.lp1d2, f.l2p1, l, x, y)) / f.nxx
	dyy = (ii.BoxSum(f.mlp1p2, f.lp1, f.l3, f.l2p1, x, y) -
		3*ii.BoxSum(f.lp1d2, f.lp1, l, f.l2p1, x, y)) / f.nxx
	dxy = (ii.BoxSum(1, 1, l, l, x, y) +
		ii.BoxSum(0, 0, -l, -l, x, y) +
		ii.BoxSum(1, 0, l, -l, x, y) +
		ii.BoxSum(0, 1, -l, l, x, y)) / f.nxy
	return dxx, dyy, dxy
}
