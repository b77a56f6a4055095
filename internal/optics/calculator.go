package optics

import "github.com/san-kum/virtacc/internal/lattice"

// Calculator produces a full derived-quantity snapshot from a lattice.
// One call, one self-consistent snapshot; the engine treats it as a
// black box and never mixes results from two calls.
type Calculator interface {
	Compute(lat *lattice.Lattice) (*Data, error)
}

// Data is a versionless snapshot of every expensive derived quantity.
// Slices are indexed per element (entrance values) and must not be
// mutated after the snapshot is published.
type Data struct {
	SPos []float64

	OrbitX  []float64
	OrbitPX []float64
	OrbitY  []float64
	OrbitPY []float64

	DispX  []float64
	DispPX []float64
	DispY  []float64
	DispPY []float64

	AlphaX []float64
	AlphaY []float64
	BetaX  []float64
	BetaY  []float64
	MuX    []float64
	MuY    []float64

	OneTurnX [2][2]float64
	OneTurnY [2][2]float64

	Tune         [2]float64 // fractional
	Chromaticity [2]float64

	HasEmittance bool
	Emittance    [2]float64

	// RadInt holds the five synchrotron radiation integrals I1..I5.
	RadInt [5]float64
}
