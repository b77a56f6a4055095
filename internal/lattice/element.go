package lattice

// Kind identifies the magnet or device class of an element.
type Kind string

const (
	Drift      Kind = "drift"
	Dipole     Kind = "dipole"
	Quadrupole Kind = "quadrupole"
	Sextupole  Kind = "sextupole"
	Corrector  Kind = "corrector"
	Cavity     Kind = "cavity"
	Monitor    Kind = "monitor"
)

// Element is one addressable device position in the ring. Elements are
// created once at load time and mutated only by the engine worker.
type Element struct {
	Name   string
	Family string
	Kind   Kind
	Length float64

	BendAngle float64
	// PolynomA/PolynomB are the skew and normal multipole coefficients:
	// index 0 carries embedded corrector kicks, 1 the quadrupole strength,
	// 2 the sextupole strength.
	PolynomA  []float64
	PolynomB  []float64
	KickAngle [2]float64
	Frequency float64
	Voltage   float64
}

func (e *Element) Copy() *Element {
	c := *e
	c.PolynomA = append([]float64(nil), e.PolynomA...)
	c.PolynomB = append([]float64(nil), e.PolynomB...)
	return &c
}

// polynom grows the slice so that index i is addressable.
func polynom(p []float64, i int) []float64 {
	for len(p) <= i {
		p = append(p, 0)
	}
	return p
}

func (e *Element) PolyA(i int) float64 {
	if i < len(e.PolynomA) {
		return e.PolynomA[i]
	}
	return 0
}

func (e *Element) PolyB(i int) float64 {
	if i < len(e.PolynomB) {
		return e.PolynomB[i]
	}
	return 0
}

func (e *Element) SetPolyA(i int, v float64) {
	e.PolynomA = polynom(e.PolynomA, i)
	e.PolynomA[i] = v
}

func (e *Element) SetPolyB(i int, v float64) {
	e.PolynomB = polynom(e.PolynomB, i)
	e.PolynomB[i] = v
}
