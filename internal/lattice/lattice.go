package lattice

import (
	"fmt"
	"math"
)

// Lattice is the ordered whole-ring element sequence plus global
// parameters. The physics engine owns the canonical instance; everyone
// else works on copies.
type Lattice struct {
	Name     string
	Energy   float64 // eV
	Elements []*Element
}

func (l *Lattice) Copy() *Lattice {
	c := &Lattice{Name: l.Name, Energy: l.Energy}
	c.Elements = make([]*Element, len(l.Elements))
	for i, e := range l.Elements {
		c.Elements[i] = e.Copy()
	}
	return c
}

func (l *Lattice) Circumference() float64 {
	total := 0.0
	for _, e := range l.Elements {
		total += e.Length
	}
	return total
}

// TotalBendAngle returns the summed dipole bending angle in degrees.
func (l *Lattice) TotalBendAngle() float64 {
	total := 0.0
	for _, e := range l.Elements {
		if e.Kind == Dipole {
			total += e.BendAngle
		}
	}
	return total * 180 / math.Pi
}

// TotalAbsBendAngle returns the summed absolute dipole bending angle in
// degrees.
func (l *Lattice) TotalAbsBendAngle() float64 {
	total := 0.0
	for _, e := range l.Elements {
		if e.Kind == Dipole {
			total += math.Abs(e.BendAngle)
		}
	}
	return total * 180 / math.Pi
}

// Validate checks the structural invariants that must hold before the
// lattice is handed to the engine. Violations are fatal at startup.
func (l *Lattice) Validate() error {
	if len(l.Elements) == 0 {
		return fmt.Errorf("lattice %q has no elements", l.Name)
	}
	if l.Energy <= 0 {
		return fmt.Errorf("lattice %q has non-positive energy %g", l.Name, l.Energy)
	}
	for i, e := range l.Elements {
		if e.Length < 0 {
			return fmt.Errorf("element %d (%s): negative length %g", i+1, e.Name, e.Length)
		}
		switch e.Kind {
		case Drift, Dipole, Quadrupole, Sextupole, Corrector, Cavity, Monitor:
		default:
			return fmt.Errorf("element %d (%s): unknown kind %q", i+1, e.Name, e.Kind)
		}
		if e.Kind == Dipole && e.BendAngle == 0 {
			return fmt.Errorf("element %d (%s): dipole with zero bend angle", i+1, e.Name)
		}
		if e.Kind == Cavity && e.Frequency <= 0 {
			return fmt.Errorf("element %d (%s): cavity with non-positive frequency", i+1, e.Name)
		}
	}
	if l.Circumference() <= 0 {
		return fmt.Errorf("lattice %q has zero circumference", l.Name)
	}
	return nil
}
