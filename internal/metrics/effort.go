package metrics

import (
	"math"

	"github.com/san-kum/virtacc/internal/lattice"
)

// CorrectorEffort sums the absolute kick angles set on all correctors,
// the usual figure for how hard the orbit is being steered.
func CorrectorEffort(lat *lattice.Lattice) float64 {
	total := 0.0
	for _, el := range lat.Elements {
		if el.Kind != lattice.Corrector {
			continue
		}
		total += math.Abs(el.KickAngle[0]) + math.Abs(el.KickAngle[1])
	}
	return total
}
