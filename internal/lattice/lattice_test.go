package lattice

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestDemoRing(t *testing.T) {
	lat := Demo()

	if err := lat.Validate(); err != nil {
		t.Fatalf("demo ring invalid: %v", err)
	}
	if lat.Energy != 3e9 {
		t.Errorf("expected 3 GeV, got %g", lat.Energy)
	}
	if lat.Circumference() <= 0 {
		t.Error("circumference should be positive")
	}
	if math.Abs(lat.TotalBendAngle()-360.0) > 1e-9 {
		t.Errorf("expected 360 degrees of bending, got %f", lat.TotalBendAngle())
	}

	kinds := map[Kind]int{}
	for _, el := range lat.Elements {
		kinds[el.Kind]++
	}
	for _, k := range []Kind{Monitor, Quadrupole, Sextupole, Corrector, Dipole, Cavity} {
		if kinds[k] == 0 {
			t.Errorf("demo ring missing %s elements", k)
		}
	}
}

func TestCopyIsIndependent(t *testing.T) {
	lat := Demo()
	cp := lat.Copy()

	cp.Elements[1].SetPolyB(1, 99.0)
	if lat.Elements[1].PolyB(1) == 99.0 {
		t.Error("copy shares element storage with the original")
	}
}

func TestLoadRingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ring.yaml")
	spec := `
name: testring
energy: 1.5e9
cells: 4
elements:
  - kind: monitor
  - kind: quadrupole
    length: 0.4
    k1: 1.1
  - kind: drift
    length: 1.0
    repeat: 2
  - kind: dipole
    length: 1.2
    angle: 0.7853981633974483
  - kind: cavity
    frequency: 500.0e6
    voltage: 1.0e6
`
	if err := os.WriteFile(path, []byte(spec), 0644); err != nil {
		t.Fatal(err)
	}

	lat, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if lat.Name != "testring" {
		t.Errorf("expected name testring, got %s", lat.Name)
	}
	if len(lat.Elements) != 6*4 {
		t.Errorf("expected 24 elements, got %d", len(lat.Elements))
	}
	if lat.Elements[1].PolyB(1) != 1.1 {
		t.Errorf("quadrupole strength lost: got %g", lat.Elements[1].PolyB(1))
	}
	if lat.Elements[1].Family != "QUAD" {
		t.Errorf("expected default family QUAD, got %s", lat.Elements[1].Family)
	}
}

func TestLoadRejectsMissingKind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	spec := `
name: bad
energy: 1e9
elements:
  - length: 1.0
`
	if err := os.WriteFile(path, []byte(spec), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for element without kind")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		lat  *Lattice
	}{
		{"no elements", &Lattice{Name: "x", Energy: 1e9}},
		{"no energy", &Lattice{Name: "x", Elements: Demo().Elements}},
		{"negative length", func() *Lattice {
			l := Demo()
			l.Elements[0].Length = -1
			return l
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.lat.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
