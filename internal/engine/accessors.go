package engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/virtacc/internal/optics"
)

// ErrInvalidPlane reports a derived-quantity selector that does not
// exist for the requested quantity.
var ErrInvalidPlane = errors.New("invalid plane")

// ErrEmittanceDisabled reports an emittance request on an engine whose
// calculator runs with emittance computation turned off.
var ErrEmittanceDisabled = errors.New("emittance calculations not enabled")

// Snapshot returns the latest completed derived-data snapshot. The
// returned data is immutable; callers must not modify it. Accessors
// below return copies of all slice-valued quantities.
func (e *Engine) Snapshot() *optics.Data {
	return e.snap.Load()
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

// Tunes returns the fractional betatron tunes (x, y).
func (e *Engine) Tunes() [2]float64 {
	t := e.snap.Load().Tune
	return [2]float64{math.Mod(t[0], 1), math.Mod(t[1], 1)}
}

func (e *Engine) Tune(plane string) (float64, error) {
	t := e.Tunes()
	switch plane {
	case "x":
		return t[0], nil
	case "y":
		return t[1], nil
	}
	return 0, fmt.Errorf("%w: %q is not a valid tune plane", ErrInvalidPlane, plane)
}

func (e *Engine) Chromaticities() [2]float64 {
	return e.snap.Load().Chromaticity
}

func (e *Engine) Chromaticity(plane string) (float64, error) {
	c := e.snap.Load().Chromaticity
	switch plane {
	case "x":
		return c[0], nil
	case "y":
		return c[1], nil
	}
	return 0, fmt.Errorf("%w: %q is not a valid chromaticity plane", ErrInvalidPlane, plane)
}

// Orbit returns the closed orbit for plane "x", "px", "y" or "py", one
// value per element.
func (e *Engine) Orbit(plane string) ([]float64, error) {
	d := e.snap.Load()
	switch plane {
	case "x":
		return clone(d.OrbitX), nil
	case "px":
		return clone(d.OrbitPX), nil
	case "y":
		return clone(d.OrbitY), nil
	case "py":
		return clone(d.OrbitPY), nil
	}
	return nil, fmt.Errorf("%w: %q is not a valid closed orbit plane", ErrInvalidPlane, plane)
}

// Dispersion returns the dispersion for plane "x", "px", "y" or "py".
func (e *Engine) Dispersion(plane string) ([]float64, error) {
	d := e.snap.Load()
	switch plane {
	case "x":
		return clone(d.DispX), nil
	case "px":
		return clone(d.DispPX), nil
	case "y":
		return clone(d.DispY), nil
	case "py":
		return clone(d.DispPY), nil
	}
	return nil, fmt.Errorf("%w: %q is not a valid dispersion plane", ErrInvalidPlane, plane)
}

func (e *Engine) Alpha(plane string) ([]float64, error) {
	d := e.snap.Load()
	switch plane {
	case "x":
		return clone(d.AlphaX), nil
	case "y":
		return clone(d.AlphaY), nil
	}
	return nil, fmt.Errorf("%w: %q is not a valid alpha plane", ErrInvalidPlane, plane)
}

func (e *Engine) Beta(plane string) ([]float64, error) {
	d := e.snap.Load()
	switch plane {
	case "x":
		return clone(d.BetaX), nil
	case "y":
		return clone(d.BetaY), nil
	}
	return nil, fmt.Errorf("%w: %q is not a valid beta plane", ErrInvalidPlane, plane)
}

func (e *Engine) Mu(plane string) ([]float64, error) {
	d := e.snap.Load()
	switch plane {
	case "x":
		return clone(d.MuX), nil
	case "y":
		return clone(d.MuY), nil
	}
	return nil, fmt.Errorf("%w: %q is not a valid phase advance plane", ErrInvalidPlane, plane)
}

// OneTurn returns the one-turn transfer matrix for plane "x" or "y".
func (e *Engine) OneTurn(plane string) ([2][2]float64, error) {
	d := e.snap.Load()
	switch plane {
	case "x":
		return d.OneTurnX, nil
	case "y":
		return d.OneTurnY, nil
	}
	return [2][2]float64{}, fmt.Errorf("%w: %q is not a valid transfer matrix plane", ErrInvalidPlane, plane)
}

// SPositions returns the s position of every element entrance.
func (e *Engine) SPositions() []float64 {
	return clone(e.snap.Load().SPos)
}

func (e *Engine) Emittance(plane string) (float64, error) {
	d := e.snap.Load()
	if !d.HasEmittance {
		return 0, ErrEmittanceDisabled
	}
	switch plane {
	case "x":
		return d.Emittance[0], nil
	case "y":
		return d.Emittance[1], nil
	}
	return 0, fmt.Errorf("%w: %q is not a valid emittance plane", ErrInvalidPlane, plane)
}

func (e *Engine) Emittances() ([2]float64, error) {
	d := e.snap.Load()
	if !d.HasEmittance {
		return [2]float64{}, ErrEmittanceDisabled
	}
	return d.Emittance, nil
}

// RadiationIntegrals returns the five synchrotron integrals I1..I5.
func (e *Engine) RadiationIntegrals() [5]float64 {
	return e.snap.Load().RadInt
}

func (e *Engine) Energy() float64 {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	return e.lat.Energy
}

func (e *Engine) Circumference() float64 {
	return e.circ
}

func (e *Engine) TotalBendAngle() float64 {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	return e.lat.TotalBendAngle()
}

func (e *Engine) TotalAbsBendAngle() float64 {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	return e.lat.TotalAbsBendAngle()
}

// MomentumCompaction returns the linear momentum compaction factor.
func (e *Engine) MomentumCompaction() float64 {
	return e.snap.Load().RadInt[0] / e.circ
}

// EnergySpread returns the relative equilibrium energy spread.
func (e *Engine) EnergySpread() float64 {
	ri := e.snap.Load().RadInt
	gamma := e.Energy() / optics.ElectronMassEV
	return gamma * math.Sqrt((optics.Cq*ri[2])/(2*ri[1]+ri[3]))
}

// EnergyLoss returns the energy loss per turn in eV.
func (e *Engine) EnergyLoss() float64 {
	ri := e.snap.Load().RadInt
	egev := e.Energy() / 1e9
	return optics.Cgamma * ri[1] * egev * egev * egev * egev / (2 * math.Pi) * 1e9
}

// DampingPartitions returns the damping partition numbers (Jx, Jy, Je).
func (e *Engine) DampingPartitions() [3]float64 {
	ri := e.snap.Load().RadInt
	jx := 1 - ri[3]/ri[1]
	je := 2 + ri[3]/ri[1]
	jy := 4 - jx - je
	return [3]float64{jx, jy, je}
}

// DampingTimes returns the damping times in seconds for the three
// normal modes.
func (e *Engine) DampingTimes() [3]float64 {
	t0 := e.circ / optics.SpeedOfLight
	e0 := e.Energy()
	u0 := e.EnergyLoss()
	j := e.DampingPartitions()
	var out [3]float64
	for i := range j {
		out[i] = 2 * t0 * e0 / (u0 * j[i])
	}
	return out
}
