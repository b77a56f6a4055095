package source

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/san-kum/virtacc/internal/engine"
	"github.com/san-kum/virtacc/internal/lattice"
	"github.com/san-kum/virtacc/internal/optics"
)

func demoEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(lattice.Demo(), optics.NewLinear())
	if err != nil {
		t.Fatalf("engine start failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func findKind(t *testing.T, eng *engine.Engine, kind lattice.Kind) int {
	t.Helper()
	for i := 1; i <= eng.ElementCount(); i++ {
		el, err := eng.Element(i)
		if err != nil {
			t.Fatal(err)
		}
		if el.Kind == kind {
			return i
		}
	}
	t.Fatalf("demo ring has no %s", kind)
	return 0
}

func TestDefaultFields(t *testing.T) {
	tests := []struct {
		kind lattice.Kind
		want []string
	}{
		{lattice.Monitor, []string{"x", "y"}},
		{lattice.Corrector, []string{"x_kick", "y_kick"}},
		{lattice.Quadrupole, []string{"b1"}},
		{lattice.Sextupole, []string{"b2", "x_kick", "y_kick"}},
		{lattice.Dipole, []string{"b0"}},
		{lattice.Cavity, []string{"f"}},
		{lattice.Drift, nil},
	}
	for _, tt := range tests {
		got := DefaultFields(tt.kind)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.kind, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.kind, got, tt.want)
			}
		}
	}
}

func TestCorrectorKickRoundTrip(t *testing.T) {
	eng := demoEngine(t)
	idx := findKind(t, eng, lattice.Corrector)
	src, err := NewElement(eng, idx, DefaultFields(lattice.Corrector))
	if err != nil {
		t.Fatal(err)
	}

	if err := src.SetValue("x_kick", 1e-4); err != nil {
		t.Fatal(err)
	}
	got, err := src.Value("x_kick")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1e-4 {
		t.Errorf("expected 1e-4, got %g", got)
	}

	el, _ := eng.Element(idx)
	if el.KickAngle[0] != 1e-4 {
		t.Errorf("model kick is %g", el.KickAngle[0])
	}
}

func TestSextupoleKickConversion(t *testing.T) {
	eng := demoEngine(t)
	idx := findKind(t, eng, lattice.Sextupole)
	src, err := NewElement(eng, idx, DefaultFields(lattice.Sextupole))
	if err != nil {
		t.Fatal(err)
	}

	const kick = 2e-4
	if err := src.SetValue("x_kick", kick); err != nil {
		t.Fatal(err)
	}
	got, err := src.Value("x_kick")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-kick) > 1e-15 {
		t.Errorf("x_kick round trip: got %g, want %g", got, kick)
	}

	el, _ := eng.Element(idx)
	wantB0 := -kick / el.Length
	if math.Abs(el.PolyB(0)-wantB0) > 1e-15 {
		t.Errorf("PolynomB[0] = %g, want %g", el.PolyB(0), wantB0)
	}

	if err := src.SetValue("y_kick", kick); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Value("y_kick"); err != nil {
		t.Fatal(err)
	}
	el, _ = eng.Element(idx)
	wantA0 := kick / el.Length
	if math.Abs(el.PolyA(0)-wantA0) > 1e-15 {
		t.Errorf("PolynomA[0] = %g, want %g", el.PolyA(0), wantA0)
	}
}

func TestMonitorReadsOrbit(t *testing.T) {
	eng := demoEngine(t)
	bpm := findKind(t, eng, lattice.Monitor)
	corr := findKind(t, eng, lattice.Corrector)

	src, err := NewElement(eng, bpm, DefaultFields(lattice.Monitor))
	if err != nil {
		t.Fatal(err)
	}

	x0, err := src.Value("x")
	if err != nil {
		t.Fatal(err)
	}
	if x0 != 0 {
		t.Errorf("expected flat orbit at startup, got %g", x0)
	}

	kicker, err := NewElement(eng, corr, DefaultFields(lattice.Corrector))
	if err != nil {
		t.Fatal(err)
	}
	if err := kicker.SetValue("x_kick", 1e-4); err != nil {
		t.Fatal(err)
	}

	// Value waits for the recompute triggered by the kick
	x1, err := src.Value("x")
	if err != nil {
		t.Fatal(err)
	}
	if x1 == 0 {
		t.Error("orbit at the monitor did not respond to the kick")
	}

	if err := src.SetValue("x", 1); !errors.Is(err, ErrReadOnlyField) {
		t.Errorf("expected ErrReadOnlyField, got %v", err)
	}
}

func TestUnknownField(t *testing.T) {
	eng := demoEngine(t)
	idx := findKind(t, eng, lattice.Corrector)

	if _, err := NewElement(eng, idx, []string{"voltage"}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField at construction, got %v", err)
	}

	src, err := NewElement(eng, idx, DefaultFields(lattice.Corrector))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.Value("b1"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField on read, got %v", err)
	}
	if err := src.SetValue("b1", 1); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField on write, got %v", err)
	}
}

func TestWritable(t *testing.T) {
	eng := demoEngine(t)
	bpm := findKind(t, eng, lattice.Monitor)
	src, err := NewElement(eng, bpm, DefaultFields(lattice.Monitor))
	if err != nil {
		t.Fatal(err)
	}
	if src.Writable("x") {
		t.Error("monitor x should be read-only")
	}

	corr := findKind(t, eng, lattice.Corrector)
	kicker, err := NewElement(eng, corr, DefaultFields(lattice.Corrector))
	if err != nil {
		t.Fatal(err)
	}
	if !kicker.Writable("x_kick") {
		t.Error("corrector x_kick should be writable")
	}
}

func TestAddField(t *testing.T) {
	eng := demoEngine(t)
	idx := findKind(t, eng, lattice.Corrector)
	src, err := NewElement(eng, idx, DefaultFields(lattice.Corrector))
	if err != nil {
		t.Fatal(err)
	}

	if err := src.AddField("length", func() (float64, error) {
		el, err := eng.Element(idx)
		if err != nil {
			return 0, err
		}
		return el.Length, nil
	}, nil); err != nil {
		t.Fatal(err)
	}

	got, err := src.Value("length")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.1 {
		t.Errorf("expected corrector length 0.1, got %g", got)
	}

	if err := src.AddField("length", nil, nil); !errors.Is(err, ErrFieldExists) {
		// also covers the nil-getter case returning some error
		if err == nil {
			t.Error("expected error on duplicate field")
		}
	}

	fields := src.Fields()
	if fields[len(fields)-1] != "length" {
		t.Errorf("added field should appear last, got %v", fields)
	}
}

func TestLatticeSource(t *testing.T) {
	eng := demoEngine(t)
	lat := NewLattice(eng)

	tune, err := lat.Value("tune_x")
	if err != nil {
		t.Fatal(err)
	}
	if tune <= 0 || tune >= 1 {
		t.Errorf("fractional tune %g outside (0,1)", tune)
	}

	energy, err := lat.Value("energy")
	if err != nil {
		t.Fatal(err)
	}
	if energy != 3e9 {
		t.Errorf("expected 3e9 eV, got %g", energy)
	}

	if err := lat.SetValue("tune_x", 0.5); !errors.Is(err, ErrReadOnlyField) {
		t.Errorf("lattice fields must be read-only, got %v", err)
	}
	if _, err := lat.Value("nope"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestValueTimeoutReturnsStale(t *testing.T) {
	eng := demoEngine(t)
	idx := findKind(t, eng, lattice.Corrector)
	src, err := NewElement(eng, idx, DefaultFields(lattice.Corrector))
	if err != nil {
		t.Fatal(err)
	}
	src.SetTimeout(time.Nanosecond)

	eng.Pause()
	if err := src.SetValue("x_kick", 1e-4); err != nil {
		t.Fatal(err)
	}

	// paused engine never becomes up to date: the read must still return
	done := make(chan struct{})
	go func() {
		src.Value("x_kick")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Value blocked past its timeout")
	}
	eng.Resume()
}
