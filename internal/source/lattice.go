package source

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/san-kum/virtacc/internal/engine"
)

// LatticeSource exposes whole-ring derived quantities through the same
// named-field interface as element sources. Every lattice field is
// read-only; writes always fail.
type LatticeSource struct {
	eng     *engine.Engine
	timeout time.Duration
	logger  *slog.Logger
	fields  map[string]Getter
	order   []string
}

func NewLattice(eng *engine.Engine) *LatticeSource {
	s := &LatticeSource{
		eng:     eng,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		fields:  make(map[string]Getter),
	}
	add := func(name string, get Getter) {
		s.fields[name] = get
		s.order = append(s.order, name)
	}
	add("tune_x", func() (float64, error) { return eng.Tune("x") })
	add("tune_y", func() (float64, error) { return eng.Tune("y") })
	add("chromaticity_x", func() (float64, error) { return eng.Chromaticity("x") })
	add("chromaticity_y", func() (float64, error) { return eng.Chromaticity("y") })
	add("emittance_x", func() (float64, error) { return eng.Emittance("x") })
	add("emittance_y", func() (float64, error) { return eng.Emittance("y") })
	add("energy", func() (float64, error) { return eng.Energy(), nil })
	add("energy_loss", func() (float64, error) { return eng.EnergyLoss(), nil })
	add("energy_spread", func() (float64, error) { return eng.EnergySpread(), nil })
	add("momentum_compaction", func() (float64, error) { return eng.MomentumCompaction(), nil })
	add("total_bend_angle", func() (float64, error) { return eng.TotalBendAngle(), nil })
	return s
}

func (s *LatticeSource) Fields() []string {
	return append([]string(nil), s.order...)
}

func (s *LatticeSource) SetTimeout(d time.Duration) { s.timeout = d }

func (s *LatticeSource) Value(name string) (float64, error) {
	get, ok := s.fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q on lattice", ErrUnknownField, name)
	}
	if !s.eng.Wait(s.timeout) {
		s.logger.Warn("computation wait timed out, data may be stale", "field", name)
	}
	return get()
}

// SetValue always fails: lattice fields are derived quantities.
func (s *LatticeSource) SetValue(name string, value float64) error {
	if _, ok := s.fields[name]; !ok {
		return fmt.Errorf("%w: %q on lattice", ErrUnknownField, name)
	}
	return fmt.Errorf("%w: %q on lattice", ErrReadOnlyField, name)
}
