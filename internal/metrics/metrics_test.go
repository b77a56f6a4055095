package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/virtacc/internal/lattice"
	"github.com/san-kum/virtacc/internal/optics"
)

func sampleData() *optics.Data {
	return &optics.Data{
		SPos:   []float64{0, 1, 2, 3},
		OrbitX: []float64{0, 3e-4, -4e-4, 1e-4},
		OrbitY: []float64{0, 0, 1e-4, 0},
		BetaX:  []float64{8, 12, 9, 10},
		BetaY:  []float64{4, 3, 6, 5},
		DispX:  []float64{0.1, -0.4, 0.3, 0.2},
	}
}

func TestOrbitSummary(t *testing.T) {
	sum := Orbit(sampleData())

	wantRMS := math.Sqrt((9e-8 + 16e-8 + 1e-8) / 4)
	if math.Abs(sum.RMSX-wantRMS) > 1e-12 {
		t.Errorf("rms x = %g, want %g", sum.RMSX, wantRMS)
	}
	if sum.PeakX != 4e-4 || sum.PeakXPos != 2 {
		t.Errorf("peak x = %g @ %g, want 4e-4 @ 2", sum.PeakX, sum.PeakXPos)
	}
	if sum.PeakY != 1e-4 || sum.PeakYPos != 2 {
		t.Errorf("peak y = %g @ %g", sum.PeakY, sum.PeakYPos)
	}
}

func TestOrbitEmpty(t *testing.T) {
	sum := Orbit(&optics.Data{})
	if sum.RMSX != 0 || sum.PeakX != 0 {
		t.Errorf("empty snapshot should give zero summary: %+v", sum)
	}
}

func TestBetaSummary(t *testing.T) {
	sum := Beta(sampleData())
	if sum.MaxBetaX != 12 || sum.MaxBetaY != 6 {
		t.Errorf("max beta = %g/%g, want 12/6", sum.MaxBetaX, sum.MaxBetaY)
	}
	if sum.MaxDispX != 0.4 {
		t.Errorf("max dispersion = %g, want 0.4", sum.MaxDispX)
	}
}

func TestExcursion(t *testing.T) {
	exc := NewExcursion(2e-4)
	exc.Observe(sampleData())

	if exc.Violations() != 2 {
		t.Errorf("violations = %d, want 2", exc.Violations())
	}
	if exc.Value() != 0.5 {
		t.Errorf("inside fraction = %g, want 0.5", exc.Value())
	}

	exc.Reset()
	if exc.Value() != 1.0 {
		t.Errorf("reset should report clean: %g", exc.Value())
	}
}

func TestCorrectorEffort(t *testing.T) {
	lat := lattice.Demo()
	if CorrectorEffort(lat) != 0 {
		t.Error("fresh ring should have zero effort")
	}

	kicked := 0
	for _, el := range lat.Elements {
		if el.Kind == lattice.Corrector && kicked < 2 {
			el.KickAngle[0] = 1e-4
			el.KickAngle[1] = -2e-4
			kicked++
		}
	}
	want := 2 * (1e-4 + 2e-4)
	if got := CorrectorEffort(lat); math.Abs(got-want) > 1e-15 {
		t.Errorf("effort = %g, want %g", got, want)
	}
}
