package metrics

import (
	"math"

	"github.com/san-kum/virtacc/internal/optics"
)

// Excursion counts closed-orbit points outside a half-aperture
// threshold (meters, both planes).
type Excursion struct {
	threshold  float64
	violations int
	samples    int
}

func NewExcursion(threshold float64) *Excursion {
	return &Excursion{threshold: threshold}
}

func (e *Excursion) Observe(d *optics.Data) {
	for i := range d.SPos {
		e.samples++
		if math.Abs(d.OrbitX[i]) > e.threshold || math.Abs(d.OrbitY[i]) > e.threshold {
			e.violations++
		}
	}
}

// Value returns the fraction of observed points inside the threshold.
func (e *Excursion) Value() float64 {
	if e.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(e.violations)/float64(e.samples)
}

func (e *Excursion) Violations() int { return e.violations }

func (e *Excursion) Reset() {
	e.violations = 0
	e.samples = 0
}
