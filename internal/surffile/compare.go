package surffile

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/ironsheep/surf-mcp/internal/surf"
)

// Comparison summarises how well one descriptor set reproduces another.
type Comparison struct {
	Reference int `json:"reference"`
	Candidate int `json:"candidate"`

	// Found counts reference points with a same-sign candidate within the
	// position tolerance.
	Found    int     `json:"found"`
	Recall   float64 `json:"recall"`
	MeanDist float64 `json:"mean_descriptor_distance"`
	MaxDist  float64 `json:"max_descriptor_distance"`
}

// Compare pairs every reference point with the nearest candidate of the same
// Laplacian sign lying within tol pixels and reports the recall and the
// Euclidean descriptor distances of the pairs.
func Compare(candidate, reference []surf.Descriptor, tol float64) Comparison {
	c := Comparison{Reference: len(reference), Candidate: len(candidate)}
	var total float64

	for i := range reference {
		ref := &reference[i]
		best, bestDist := -1, tol
		for j := range candidate {
			cand := &candidate[j]
			if cand.Laplacian != ref.Laplacian {
				continue
			}
			if d := math.Hypot(cand.X-ref.X, cand.Y-ref.Y); d <= bestDist {
				best, bestDist = j, d
			}
		}
		if best < 0 {
			continue
		}

		dist := floats.Distance(candidate[best].Vector[:], ref.Vector[:], 2)
		total += dist
		c.MaxDist = max(c.MaxDist, dist)
		c.Found++
	}

	if c.Reference > 0 {
		c.Recall = float64(c.Found) / float64(c.Reference)
	}
	if c.Found > 0 {
		c.MeanDist = total / float64(c.Found)
	}
	return c
}
