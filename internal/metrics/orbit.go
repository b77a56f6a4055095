// Package metrics computes summary statistics over a computed optics
// snapshot: closed-orbit quality, excursion counts against an aperture
// threshold, and total corrector effort.
package metrics

import (
	"math"

	"github.com/san-kum/virtacc/internal/optics"
)

// OrbitSummary condenses the closed orbit of one snapshot.
type OrbitSummary struct {
	RMSX, RMSY   float64
	PeakX, PeakY float64
	// s positions of the peak excursions
	PeakXPos, PeakYPos float64
}

func Orbit(d *optics.Data) OrbitSummary {
	var sum OrbitSummary
	if d == nil || len(d.SPos) == 0 {
		return sum
	}
	var sx, sy float64
	for i := range d.SPos {
		x, y := d.OrbitX[i], d.OrbitY[i]
		sx += x * x
		sy += y * y
		if math.Abs(x) > sum.PeakX {
			sum.PeakX = math.Abs(x)
			sum.PeakXPos = d.SPos[i]
		}
		if math.Abs(y) > sum.PeakY {
			sum.PeakY = math.Abs(y)
			sum.PeakYPos = d.SPos[i]
		}
	}
	n := float64(len(d.SPos))
	sum.RMSX = math.Sqrt(sx / n)
	sum.RMSY = math.Sqrt(sy / n)
	return sum
}

// BetaSummary reports the envelope extremes of one snapshot.
type BetaSummary struct {
	MaxBetaX, MaxBetaY float64
	MaxDispX           float64
}

func Beta(d *optics.Data) BetaSummary {
	var sum BetaSummary
	if d == nil {
		return sum
	}
	for i := range d.BetaX {
		sum.MaxBetaX = math.Max(sum.MaxBetaX, d.BetaX[i])
		sum.MaxBetaY = math.Max(sum.MaxBetaY, d.BetaY[i])
		sum.MaxDispX = math.Max(sum.MaxDispX, math.Abs(d.DispX[i]))
	}
	return sum
}
