package surf

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/surf-mcp/internal/kernel"
)

// MaxSquaredDistance is the squared diameter of the unit hypersphere, the
// largest squared distance two normalised descriptors can have. It seeds the
// second-nearest distance so that a single distant candidate is rejected.
const MaxSquaredDistance = 4.0

// MatchDescriptors pairs each descriptor of a with its nearest neighbour in b
// that shares its Laplacian sign. A pair is kept when rate²·d2 > d1, where d1
// and d2 are the squared distances to the nearest and second-nearest
// candidates. Matches are numbered in the order of a.
func MatchDescriptors(a, b []Descriptor, rate float64, backend kernel.Backend) []Match {
	type hit struct {
		ok   bool
		best int
		d1   float64
	}
	hits := make([]hit, len(a))
	rate2 := rate * rate

	kernel.Each(backend, len(a), func(ia int) {
		da := &a[ia]
		d1, d2 := math.Inf(1), MaxSquaredDistance
		best := -1
		for ib := range b {
			db := &b[ib]
			if da.Laplacian != db.Laplacian {
				continue
			}
			d := squaredDistance(da, db)
			switch {
			case d < d1:
				d2 = min(d1, d2)
				d1 = d
				best = ib
			case d < d2:
				d2 = d
			}
		}
		if best >= 0 && rate2*d2 > d1 {
			hits[ia] = hit{ok: true, best: best, d1: d1}
		}
	})

	var matches []Match
	for ia, h := range hits {
		if !h.ok {
			continue
		}
		matches = append(matches, Match{
			ID:       len(matches),
			A:        a[ia],
			B:        b[h.best],
			Distance: h.d1,
		})
	}
	return matches
}

func squaredDistance(a, b *Descriptor) float64 {
	d := floats.Distance(a.Vector[:], b.Vector[:], 2)
	return d * d
}
