package surf

import (
	"sort"

	"github.com/ironsheep/surf-mcp/internal/kernel"
)

// FindExtrema scans the inner intervals of an octave for strict 3x3x3
// maxima above threshold. Candidates are compacted into a buffer of the given
// capacity; the number that did not fit is returned as dropped. The result
// is ordered by interval, then row, then column.
func FindExtrema(oct *Octave, threshold float64, capacity int, backend kernel.Backend) (coords []Coordinate, dropped int) {
	buf := kernel.NewBuffer[Coordinate](capacity)
	intervals := len(oct.Hessian) - 2
	rows := oct.Height - 2
	if intervals <= 0 || rows <= 0 || oct.Width < 3 {
		return nil, 0
	}

	kernel.Each(backend, intervals*rows, func(unit int) {
		i := unit/rows + 1
		y := unit%rows + 1
		row := oct.Hessian[i].Row(y)
		for x := 1; x < oct.Width-1; x++ {
			if v := row[x]; v > threshold && isLocalMax(oct, v, x, y, i) {
				buf.Append(Coordinate{X: x, Y: y, Interval: i})
			}
		}
	})

	coords = append([]Coordinate(nil), buf.Items()...)
	sort.Slice(coords, func(a, b int) bool {
		ca, cb := coords[a], coords[b]
		if ca.Interval != cb.Interval {
			return ca.Interval < cb.Interval
		}
		if ca.Y != cb.Y {
			return ca.Y < cb.Y
		}
		return ca.X < cb.X
	})
	return coords, buf.Dropped()
}

// isLocalMax reports whether v at (x, y, i) is strictly greater than all 26
// neighbours. Any equal neighbour rejects the candidate.
func isLocalMax(oct *Octave, v float64, x, y, i int) bool {
	for di := -1; di <= 1; di++ {
		plane := oct.Hessian[i+di]
		for dy := -1; dy <= 1; dy++ {
			row := plane.Row(y + dy)
			for dx := -1; dx <= 1; dx++ {
				if di == 0 && dy == 0 && dx == 0 {
					continue
				}
				if row[x+dx] >= v {
					return false
				}
			}
		}
	}
	return true
}
