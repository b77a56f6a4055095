// Package source provides the per-element and lattice facades that
// translate named-field access into reads and queued writes against the
// physics engine.
package source

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/san-kum/virtacc/internal/engine"
	"github.com/san-kum/virtacc/internal/lattice"
)

var (
	ErrUnknownField  = errors.New("unknown field")
	ErrReadOnlyField = errors.New("field is read-only")
	ErrFieldExists   = errors.New("field already present")
)

// DefaultTimeout bounds how long Value waits for outstanding
// computations before returning possibly stale data.
const DefaultTimeout = 5 * time.Second

// Getter reads the current value of one field.
type Getter func() (float64, error)

// Applier writes a field to the live element; it runs on the engine
// worker when the queued change is drained.
type Applier func(el *lattice.Element, value float64) error

type field struct {
	get   Getter
	apply Applier // nil for read-only fields
}

// ElementSource is the facade for one element. Writes are queued on the
// engine rather than applied synchronously; reads reflect the last
// value applied to the model.
type ElementSource struct {
	eng     *engine.Engine
	index   int
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	fields map[string]field
	order  []string
}

// NewElement builds a source for the element at the given 1-based
// index, exposing the requested fields. Unsupported field names are
// rejected.
func NewElement(eng *engine.Engine, index int, fields []string) (*ElementSource, error) {
	s := &ElementSource{
		eng:     eng,
		index:   index,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		fields:  make(map[string]field),
	}
	supported := s.supported()
	for _, name := range fields {
		f, ok := supported[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q on element %d", ErrUnknownField, name, index)
		}
		s.fields[name] = f
		s.order = append(s.order, name)
	}
	return s, nil
}

// supported maps every field name this source understands to its
// accessor pair. Kick angles on sextupoles go through the embedded
// corrector coils (PolynomA/B cell 0) scaled by length.
func (s *ElementSource) supported() map[string]field {
	return map[string]field{
		"x_kick": {get: s.kickGetter(0), apply: kickApplier(0)},
		"y_kick": {get: s.kickGetter(1), apply: kickApplier(1)},
		"x":      {get: s.orbitGetter("x")},
		"y":      {get: s.orbitGetter("y")},
		"a1": {
			get:   s.attrGetter(func(el *lattice.Element) float64 { return el.PolyA(1) }),
			apply: func(el *lattice.Element, v float64) error { el.SetPolyA(1, v); return nil },
		},
		"b1": {
			get:   s.attrGetter(func(el *lattice.Element) float64 { return el.PolyB(1) }),
			apply: func(el *lattice.Element, v float64) error { el.SetPolyB(1, v); return nil },
		},
		"b2": {
			get:   s.attrGetter(func(el *lattice.Element) float64 { return el.PolyB(2) }),
			apply: func(el *lattice.Element, v float64) error { el.SetPolyB(2, v); return nil },
		},
		"b0": {
			get:   s.attrGetter(func(el *lattice.Element) float64 { return el.BendAngle }),
			apply: func(el *lattice.Element, v float64) error { el.BendAngle = v; return nil },
		},
		"f": {
			get:   s.attrGetter(func(el *lattice.Element) float64 { return el.Frequency }),
			apply: func(el *lattice.Element, v float64) error { el.Frequency = v; return nil },
		},
	}
}

func (s *ElementSource) attrGetter(read func(*lattice.Element) float64) Getter {
	return func() (float64, error) {
		el, err := s.eng.Element(s.index)
		if err != nil {
			return 0, err
		}
		return read(el), nil
	}
}

func (s *ElementSource) orbitGetter(plane string) Getter {
	return func() (float64, error) {
		orbit, err := s.eng.Orbit(plane)
		if err != nil {
			return 0, err
		}
		if s.index-1 >= len(orbit) {
			return 0, fmt.Errorf("element index %d outside orbit data", s.index)
		}
		return orbit[s.index-1], nil
	}
}

func (s *ElementSource) kickGetter(cell int) Getter {
	return s.attrGetter(func(el *lattice.Element) float64 {
		if el.Kind == lattice.Sextupole {
			if cell == 0 {
				return -el.PolyB(0) * el.Length
			}
			return el.PolyA(0) * el.Length
		}
		return el.KickAngle[cell]
	})
}

func kickApplier(cell int) Applier {
	return func(el *lattice.Element, v float64) error {
		if el == nil {
			return errors.New("kick change without a target element")
		}
		if el.Kind == lattice.Sextupole {
			if el.Length == 0 {
				return fmt.Errorf("zero-length sextupole %s cannot hold a kick", el.Name)
			}
			if cell == 0 {
				el.SetPolyB(0, -v/el.Length)
			} else {
				el.SetPolyA(0, v/el.Length)
			}
			return nil
		}
		el.KickAngle[cell] = v
		return nil
	}
}

// Index returns the element's 1-based ring position.
func (s *ElementSource) Index() int { return s.index }

// Fields lists the fields present on this source, in registration order.
func (s *ElementSource) Fields() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// SetTimeout overrides how long Value waits for pending computations.
func (s *ElementSource) SetTimeout(d time.Duration) { s.timeout = d }

// Writable reports whether the field exists and accepts writes.
func (s *ElementSource) Writable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[name]
	return ok && f.apply != nil
}

// Value waits for outstanding computations, then reads the field. On
// timeout it logs a warning and returns the possibly stale value.
func (s *ElementSource) Value(name string) (float64, error) {
	s.mu.Lock()
	f, ok := s.fields[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %q on element %d", ErrUnknownField, name, s.index)
	}
	if !s.eng.Wait(s.timeout) {
		s.logger.Warn("computation wait timed out, data may be stale",
			"element", s.index, "field", name)
	}
	return f.get()
}

// SetValue validates and enqueues a change; the model is updated by the
// engine worker, not here.
func (s *ElementSource) SetValue(name string, value float64) error {
	s.mu.Lock()
	f, ok := s.fields[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q on element %d", ErrUnknownField, name, s.index)
	}
	if f.apply == nil {
		return fmt.Errorf("%w: %q on element %d", ErrReadOnlyField, name, s.index)
	}
	s.eng.Enqueue(engine.Change{
		Index: s.index,
		Field: name,
		Value: value,
		Apply: f.apply,
	})
	return nil
}

// AddField extends the field table at runtime. A nil applier makes the
// field read-only.
func (s *ElementSource) AddField(name string, get Getter, apply Applier) error {
	if get == nil {
		return fmt.Errorf("field %q needs a getter", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fields[name]; ok {
		return fmt.Errorf("%w: %q on element %d", ErrFieldExists, name, s.index)
	}
	s.fields[name] = field{get: get, apply: apply}
	s.order = append(s.order, name)
	return nil
}

// AddSupportedField enables one of the built-in fields that was not
// requested at construction time.
func (s *ElementSource) AddSupportedField(name string) error {
	f, ok := s.supported()[name]
	if !ok {
		return fmt.Errorf("%w: %q on element %d", ErrUnknownField, name, s.index)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fields[name]; ok {
		return fmt.Errorf("%w: %q on element %d", ErrFieldExists, name, s.index)
	}
	s.fields[name] = f
	s.order = append(s.order, name)
	return nil
}

// DefaultFields returns the fields conventionally exposed for an
// element of the given kind.
func DefaultFields(kind lattice.Kind) []string {
	switch kind {
	case lattice.Monitor:
		return []string{"x", "y"}
	case lattice.Corrector:
		return []string{"x_kick", "y_kick"}
	case lattice.Quadrupole:
		return []string{"b1"}
	case lattice.Sextupole:
		return []string{"b2", "x_kick", "y_kick"}
	case lattice.Dipole:
		return []string{"b0"}
	case lattice.Cavity:
		return []string{"f"}
	}
	return nil
}
