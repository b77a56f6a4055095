package optics

import (
	"math"
	"testing"

	"github.com/san-kum/virtacc/internal/lattice"
)

func computeDemo(t *testing.T, mutate func(*lattice.Lattice)) *Data {
	t.Helper()
	lat := lattice.Demo()
	if mutate != nil {
		mutate(lat)
	}
	d, err := NewLinear().Compute(lat)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	return d
}

func firstKind(t *testing.T, lat *lattice.Lattice, kind lattice.Kind) *lattice.Element {
	t.Helper()
	for _, e := range lat.Elements {
		if e.Kind == kind {
			return e
		}
	}
	t.Fatalf("no %s in lattice", kind)
	return nil
}

func TestDemoRingOptics(t *testing.T) {
	d := computeDemo(t, nil)

	for p := 0; p < 2; p++ {
		if d.Tune[p] <= 0 || d.Tune[p] >= 1 {
			t.Errorf("plane %d: fractional tune %g outside (0,1)", p, d.Tune[p])
		}
	}

	for i := range d.BetaX {
		if d.BetaX[i] <= 0 || d.BetaY[i] <= 0 {
			t.Fatalf("element %d: non-positive beta (%g, %g)", i+1, d.BetaX[i], d.BetaY[i])
		}
	}

	for i := 1; i < len(d.MuX); i++ {
		if d.MuX[i] < d.MuX[i-1]-1e-9 || d.MuY[i] < d.MuY[i-1]-1e-9 {
			t.Fatalf("phase advance not monotonic at element %d", i+1)
		}
	}

	for i := range d.OrbitX {
		if math.Abs(d.OrbitX[i]) > 1e-12 || math.Abs(d.OrbitY[i]) > 1e-12 {
			t.Fatalf("element %d: nonzero orbit without kicks (%g, %g)",
				i+1, d.OrbitX[i], d.OrbitY[i])
		}
	}

	maxDisp := 0.0
	for i := range d.DispX {
		if math.Abs(d.DispX[i]) > maxDisp {
			maxDisp = math.Abs(d.DispX[i])
		}
	}
	if maxDisp == 0 {
		t.Error("a ring with dipoles must have horizontal dispersion")
	}

	if !d.HasEmittance {
		t.Fatal("emittance should be computed by default")
	}
	if d.Emittance[0] <= 0 {
		t.Errorf("horizontal emittance should be positive, got %g", d.Emittance[0])
	}
	if ratio := d.Emittance[1] / d.Emittance[0]; math.Abs(ratio-0.01) > 1e-9 {
		t.Errorf("expected 1%% coupling, got ratio %g", ratio)
	}
	if d.RadInt[1] <= 0 {
		t.Errorf("I2 should be positive, got %g", d.RadInt[1])
	}
}

func TestCorrectorKickMovesOrbit(t *testing.T) {
	d := computeDemo(t, func(lat *lattice.Lattice) {
		firstKind(t, lat, lattice.Corrector).KickAngle[0] = 1e-4
	})

	maxX := 0.0
	for i := range d.OrbitX {
		if math.Abs(d.OrbitX[i]) > maxX {
			maxX = math.Abs(d.OrbitX[i])
		}
		if math.Abs(d.OrbitY[i]) > 1e-12 {
			t.Fatalf("horizontal kick leaked into the vertical orbit at %d", i+1)
		}
	}
	if maxX == 0 {
		t.Error("horizontal kick left the orbit flat")
	}
}

func TestSextupoleCoilKick(t *testing.T) {
	var kick float64
	d := computeDemo(t, func(lat *lattice.Lattice) {
		s := firstKind(t, lat, lattice.Sextupole)
		kick = 2e-4
		// embedded horizontal coil: x kick of +2e-4 rad
		s.SetPolyB(0, -kick/s.Length)
	})

	maxX := 0.0
	for i := range d.OrbitX {
		if math.Abs(d.OrbitX[i]) > maxX {
			maxX = math.Abs(d.OrbitX[i])
		}
	}
	if maxX == 0 {
		t.Error("sextupole coil kick left the orbit flat")
	}
}

func TestSextupolesChangeChromaticity(t *testing.T) {
	withSext := computeDemo(t, nil)
	without := computeDemo(t, func(lat *lattice.Lattice) {
		for _, e := range lat.Elements {
			if e.Kind == lattice.Sextupole {
				e.SetPolyB(2, 0)
			}
		}
	})

	if withSext.Chromaticity[0] == without.Chromaticity[0] {
		t.Error("sextupoles had no effect on horizontal chromaticity")
	}
	if without.Chromaticity[0] >= 0 {
		t.Errorf("natural horizontal chromaticity should be negative, got %g",
			without.Chromaticity[0])
	}
}

func TestDisableEmittance(t *testing.T) {
	calc := NewLinear()
	calc.DisableEmittance = true
	d, err := calc.Compute(lattice.Demo())
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if d.HasEmittance {
		t.Error("emittance should be skipped when disabled")
	}
}

func TestUnstableLatticeReported(t *testing.T) {
	lat := &lattice.Lattice{Name: "unstable", Energy: 1e9}
	q := &lattice.Element{Name: "Q1", Kind: lattice.Quadrupole, Length: 1}
	q.SetPolyB(1, 5)
	lat.Elements = []*lattice.Element{
		q,
		{Name: "D1", Kind: lattice.Drift, Length: 10},
	}

	calc := NewLinear()
	calc.DisableEmittance = true
	if _, err := calc.Compute(lat); err == nil {
		t.Error("expected an instability error")
	}
}

func TestEmptyLattice(t *testing.T) {
	if _, err := NewLinear().Compute(&lattice.Lattice{}); err == nil {
		t.Error("expected error for empty lattice")
	}
}
