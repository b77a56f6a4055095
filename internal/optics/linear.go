package optics

import (
	"fmt"
	"math"

	"github.com/san-kum/virtacc/internal/lattice"
)

// Physical constants, eV/metre units.
const (
	ElectronMassEV = 510998.95
	SpeedOfLight   = 299792458.0
	// Cq is the quantum excitation constant in metres.
	Cq = 3.8319e-13
	// Cgamma is the radiation constant in m/GeV^3.
	Cgamma = 8.846e-5
)

// Linear is a thin-lens linear optics calculator: per-plane 2x2 transfer
// matrices with inhomogeneous kick and dispersion terms, periodic Twiss
// from the one-turn map, natural plus sextupole chromaticity and
// radiation-integral emittance. It is deliberately modest physics; the
// engine only requires the Calculator contract.
type Linear struct {
	DisableEmittance bool
	// Coupling sets the vertical emittance as a fraction of horizontal.
	Coupling float64
}

func NewLinear() *Linear {
	return &Linear{Coupling: 0.01}
}

type mat2 [2][2]float64

func ident() mat2 { return mat2{{1, 0}, {0, 1}} }

func mul(a, b mat2) mat2 {
	var c mat2
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			c[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j]
		}
	}
	return c
}

func apply(m mat2, v [2]float64) [2]float64 {
	return [2]float64{
		m[0][0]*v[0] + m[0][1]*v[1],
		m[1][0]*v[0] + m[1][1]*v[1],
	}
}

// inv inverts a unimodular 2x2 matrix.
func inv(m mat2) mat2 {
	det := m[0][0]*m[1][1] - m[0][1]*m[1][0]
	return mat2{
		{m[1][1] / det, -m[0][1] / det},
		{-m[1][0] / det, m[0][0] / det},
	}
}

func drift(l float64) mat2 { return mat2{{1, l}, {0, 1}} }

// segment is the per-plane linear map of one element: x1 = M x0 + kick,
// plus the dispersion drive term for off-momentum particles.
type segment struct {
	m    mat2
	kick [2]float64
	disp [2]float64
}

func segments(e *lattice.Element) (x, y segment) {
	x.m = drift(e.Length)
	y.m = drift(e.Length)
	switch e.Kind {
	case lattice.Quadrupole:
		// thin lens between half drifts
		kl := e.PolyB(1) * e.Length
		half := drift(e.Length / 2)
		x.m = mul(half, mul(mat2{{1, 0}, {-kl, 1}}, half))
		y.m = mul(half, mul(mat2{{1, 0}, {kl, 1}}, half))
	case lattice.Dipole:
		phi := e.BendAngle
		if phi != 0 {
			rho := e.Length / phi
			sin, cos := math.Sin(phi), math.Cos(phi)
			x.m = mat2{{cos, rho * sin}, {-sin / rho, cos}}
			x.disp = [2]float64{rho * (1 - cos), sin}
		}
	case lattice.Corrector:
		x.kick = [2]float64{0, e.KickAngle[0]}
		y.kick = [2]float64{0, e.KickAngle[1]}
	case lattice.Sextupole:
		// embedded corrector coils: PolynomA/B cell 0
		x.kick = [2]float64{0, -e.PolyB(0) * e.Length}
		y.kick = [2]float64{0, e.PolyA(0) * e.Length}
	}
	return x, y
}

// plane carries the accumulated per-plane maps over the ring.
type plane struct {
	segs []segment
	// prefix[i] maps the ring entrance to element i's entrance.
	prefix []mat2
	// one-turn map and accumulated inhomogeneous terms at the entrance
	turn mat2
	kick [2]float64
	disp [2]float64
}

func accumulate(segs []segment) plane {
	p := plane{segs: segs, turn: ident()}
	p.prefix = make([]mat2, len(segs))
	for i, s := range segs {
		p.prefix[i] = p.turn
		p.kick = add2(apply(s.m, p.kick), s.kick)
		p.disp = add2(apply(s.m, p.disp), s.disp)
		p.turn = mul(s.m, p.turn)
	}
	return p
}

func add2(a, b [2]float64) [2]float64 { return [2]float64{a[0] + b[0], a[1] + b[1]} }

// closed solves x = Mx + c for the periodic fixed point.
func closed(m mat2, c [2]float64) ([2]float64, error) {
	a := mat2{{1 - m[0][0], -m[0][1]}, {-m[1][0], 1 - m[1][1]}}
	det := a[0][0]*a[1][1] - a[0][1]*a[1][0]
	if math.Abs(det) < 1e-12 {
		return [2]float64{}, fmt.Errorf("no closed solution (det %.3g)", det)
	}
	return [2]float64{
		(a[1][1]*c[0] - a[0][1]*c[1]) / det,
		(a[0][0]*c[1] - a[1][0]*c[0]) / det,
	}, nil
}

type twiss struct {
	alpha, beta float64
}

// periodicTwiss extracts alpha/beta from a one-turn matrix.
func periodicTwiss(t mat2) (twiss, float64, error) {
	cosMu := (t[0][0] + t[1][1]) / 2
	if math.Abs(cosMu) >= 1 {
		return twiss{}, 0, fmt.Errorf("unstable motion (cos mu = %.6g)", cosMu)
	}
	sinMu := math.Sqrt(1 - cosMu*cosMu)
	if t[0][1] < 0 {
		sinMu = -sinMu
	}
	return twiss{
		alpha: (t[0][0] - t[1][1]) / (2 * sinMu),
		beta:  t[0][1] / sinMu,
	}, math.Atan2(sinMu, cosMu), nil
}

func (lo *Linear) Compute(lat *lattice.Lattice) (*Data, error) {
	n := len(lat.Elements)
	if n == 0 {
		return nil, fmt.Errorf("empty lattice")
	}
	segsX := make([]segment, n)
	segsY := make([]segment, n)
	for i, e := range lat.Elements {
		segsX[i], segsY[i] = segments(e)
	}
	px := accumulate(segsX)
	py := accumulate(segsY)

	d := &Data{
		SPos:    make([]float64, n),
		OrbitX:  make([]float64, n),
		OrbitPX: make([]float64, n),
		OrbitY:  make([]float64, n),
		OrbitPY: make([]float64, n),
		DispX:   make([]float64, n),
		DispPX:  make([]float64, n),
		DispY:   make([]float64, n),
		DispPY:  make([]float64, n),
		AlphaX:  make([]float64, n),
		AlphaY:  make([]float64, n),
		BetaX:   make([]float64, n),
		BetaY:   make([]float64, n),
		MuX:     make([]float64, n),
		MuY:     make([]float64, n),
	}
	d.OneTurnX = px.turn
	d.OneTurnY = py.turn

	s := 0.0
	for i, e := range lat.Elements {
		d.SPos[i] = s
		s += e.Length
	}

	if err := lo.computePlane(&px, d, 0); err != nil {
		return nil, fmt.Errorf("horizontal plane: %w", err)
	}
	if err := lo.computePlane(&py, d, 1); err != nil {
		return nil, fmt.Errorf("vertical plane: %w", err)
	}

	lo.chromaticity(lat, d)
	lo.radiation(lat, d)

	if !lo.DisableEmittance {
		gamma := lat.Energy / ElectronMassEV
		denom := d.RadInt[1] - d.RadInt[3]
		if denom <= 0 {
			return nil, fmt.Errorf("emittance: I2-I4 = %.3g is not positive", denom)
		}
		ex := Cq * gamma * gamma * d.RadInt[4] / denom
		coupling := lo.Coupling
		if coupling <= 0 {
			coupling = 0.01
		}
		d.Emittance = [2]float64{ex, ex * coupling}
		d.HasEmittance = true
	}
	return d, nil
}

// computePlane fills orbit, dispersion and Twiss arrays for one plane
// (0 = horizontal, 1 = vertical).
func (lo *Linear) computePlane(p *plane, d *Data, planeIdx int) error {
	tw0, mu, err := periodicTwiss(p.turn)
	if err != nil {
		return err
	}
	tune := mu / (2 * math.Pi)
	if tune < 0 {
		tune += 1
	}
	d.Tune[planeIdx] = tune

	orbit0, err := closed(p.turn, p.kick)
	if err != nil {
		return fmt.Errorf("closed orbit: %w", err)
	}
	disp0, err := closed(p.turn, p.disp)
	if err != nil {
		return fmt.Errorf("dispersion: %w", err)
	}

	orbit := orbit0
	disp := disp0
	phase := 0.0
	for i := range p.segs {
		pre := p.prefix[i]
		turnAt := mul(pre, mul(p.turn, inv(pre)))
		tw, _, err := periodicTwiss(turnAt)
		if err != nil {
			return fmt.Errorf("element %d: %w", i+1, err)
		}
		// phase advance from the ring entrance, unwrapped
		dpsi := math.Atan2(pre[0][1], tw0.beta*pre[0][0]-tw0.alpha*pre[0][1])
		for dpsi < phase-1e-9 {
			dpsi += 2 * math.Pi
		}
		phase = dpsi

		if planeIdx == 0 {
			d.OrbitX[i], d.OrbitPX[i] = orbit[0], orbit[1]
			d.DispX[i], d.DispPX[i] = disp[0], disp[1]
			d.AlphaX[i], d.BetaX[i], d.MuX[i] = tw.alpha, tw.beta, phase
		} else {
			d.OrbitY[i], d.OrbitPY[i] = orbit[0], orbit[1]
			d.DispY[i], d.DispPY[i] = disp[0], disp[1]
			d.AlphaY[i], d.BetaY[i], d.MuY[i] = tw.alpha, tw.beta, phase
		}

		seg := p.segs[i]
		orbit = add2(apply(seg.m, orbit), seg.kick)
		disp = add2(apply(seg.m, disp), seg.disp)
	}
	return nil
}

// chromaticity sums the natural quadrupole term and the sextupole term
// weighted by the local dispersion.
func (lo *Linear) chromaticity(lat *lattice.Lattice, d *Data) {
	var xiX, xiY float64
	for i, e := range lat.Elements {
		switch e.Kind {
		case lattice.Quadrupole:
			kl := e.PolyB(1) * e.Length
			xiX -= d.BetaX[i] * kl
			xiY += d.BetaY[i] * kl
		case lattice.Sextupole:
			k2l := e.PolyB(2) * e.Length
			xiX += d.BetaX[i] * k2l * d.DispX[i]
			xiY -= d.BetaY[i] * k2l * d.DispX[i]
		}
	}
	d.Chromaticity = [2]float64{xiX / (4 * math.Pi), xiY / (4 * math.Pi)}
}

// radiation fills the five synchrotron integrals from dipole entrance
// values.
func (lo *Linear) radiation(lat *lattice.Lattice, d *Data) {
	var ri [5]float64
	for i, e := range lat.Elements {
		if e.Kind != lattice.Dipole || e.BendAngle == 0 {
			continue
		}
		rho := e.Length / e.BendAngle
		eta, etap := d.DispX[i], d.DispPX[i]
		alpha, beta := d.AlphaX[i], d.BetaX[i]
		gamma := (1 + alpha*alpha) / beta
		h := gamma*eta*eta + 2*alpha*eta*etap + beta*etap*etap
		l := e.Length
		ri[0] += eta * l / rho
		ri[1] += l / (rho * rho)
		ri[2] += l / math.Abs(rho*rho*rho)
		ri[3] += eta * l / rho * (1/(rho*rho) + 2*e.PolyB(1))
		ri[4] += h * l / math.Abs(rho*rho*rho)
	}
	d.RadInt = ri
}
