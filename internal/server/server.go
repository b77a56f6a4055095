// Package server builds and owns the addressable record layer over the
// physics engine: readback and setpoint records per element field,
// lattice readbacks refreshed after every recomputation, plus the
// mirror and feedback record graphs loaded from CSV.
package server

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/san-kum/virtacc/internal/engine"
	"github.com/san-kum/virtacc/internal/gateway"
	"github.com/san-kum/virtacc/internal/lattice"
	"github.com/san-kum/virtacc/internal/record"
	"github.com/san-kum/virtacc/internal/source"
)

// Limits carries the optional display limits loaded per PV.
type Limits struct {
	Upper, Lower float64
	Precision    int
}

type rbBinding struct {
	cell *record.Cell
	read func() (float64, error)
}

type outBinding struct {
	rb    *record.Cell
	field string
	srcs  []*source.ElementSource
}

type feedbackKey struct {
	Index int
	Field string
}

// Server wires the record graph. The engine's update callback must be
// pointed at UpdatePVs so readbacks track fresh snapshots.
type Server struct {
	prefix string
	eng    *engine.Engine
	gw     gateway.Client
	logger *slog.Logger
	limits map[string]Limits

	mu           sync.Mutex
	records      map[string]record.Record
	outs         map[string]*outBinding // setpoint name -> binding
	rbOnly       []rbBinding
	feedback     map[feedbackKey]*record.Cell
	mirrors      []*record.Mirror
	monitors     []gateway.CancelFunc
	offsets      map[string]record.Getter // setpoint name -> offset record
	tuneFeedback bool
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

func WithLimits(limits map[string]Limits) Option {
	return func(s *Server) { s.limits = limits }
}

// New creates records for every element source field and every lattice
// field. Dipoles share a single setpoint/readback pair per family, the
// way the live machine's bend strings are powered.
func New(prefix string, eng *engine.Engine, elems []*source.ElementSource, lat *source.LatticeSource, gw gateway.Client, opts ...Option) (*Server, error) {
	s := &Server{
		prefix:   prefix,
		eng:      eng,
		gw:       gw,
		logger:   slog.Default(),
		records:  make(map[string]record.Record),
		outs:     make(map[string]*outBinding),
		feedback: make(map[feedbackKey]*record.Cell),
		offsets:  make(map[string]record.Getter),
	}
	for _, opt := range opts {
		opt(s)
	}
	bendOuts := make(map[string]*outBinding)
	for _, src := range elems {
		el, err := eng.Element(src.Index())
		if err != nil {
			return nil, err
		}
		if el.Kind == lattice.Dipole {
			if err := s.createBendRecords(src, el, bendOuts); err != nil {
				return nil, err
			}
			continue
		}
		for _, field := range src.Fields() {
			if err := s.createElementRecords(src, el, field); err != nil {
				return nil, err
			}
		}
	}
	if err := s.createLatticeRecords(lat); err != nil {
		return nil, err
	}
	s.logger.Info("record creation finished", "records", len(s.records))
	return s, nil
}

func (s *Server) pvName(family string, index int, field string) string {
	return fmt.Sprintf("%s-%s-%03d:%s", s.prefix, family, index, strings.ToUpper(field))
}

func (s *Server) newCell(name string, initial record.Value) *record.Cell {
	c := record.NewCell(name, initial)
	if lim, ok := s.limits[name]; ok {
		c.Lower, c.Upper, c.Precision = lim.Lower, lim.Upper, lim.Precision
	}
	s.records[name] = c
	if reg, ok := s.gw.(gateway.Registrar); ok {
		reg.Register(c)
	}
	return c
}

func (s *Server) createElementRecords(src *source.ElementSource, el *lattice.Element, field string) error {
	value, err := src.Value(field)
	if err != nil {
		return fmt.Errorf("element %d field %s: %w", src.Index(), field, err)
	}
	rbName := s.pvName(el.Family, src.Index(), field)
	rb := s.newCell(rbName, record.Scalar(value))
	if !src.Writable(field) {
		s.bindReadback(rb, func() (float64, error) { return src.Value(field) })
		return nil
	}
	spName := rbName + ":SP"
	sp := s.newCell(spName, record.Scalar(value))
	binding := &outBinding{rb: rb, field: field, srcs: []*source.ElementSource{src}}
	s.outs[spName] = binding
	sp.OnChange(func(v record.Value) { s.onSetpoint(spName, binding, v) })
	return nil
}

// createBendRecords gives every dipole family one shared record pair;
// writing the setpoint reaches all bends in the family.
func (s *Server) createBendRecords(src *source.ElementSource, el *lattice.Element, bendOuts map[string]*outBinding) error {
	for _, field := range src.Fields() {
		if !src.Writable(field) {
			if err := s.createElementRecords(src, el, field); err != nil {
				return err
			}
			continue
		}
		if existing, ok := bendOuts[el.Family+":"+field]; ok {
			existing.srcs = append(existing.srcs, src)
			continue
		}
		value, err := src.Value(field)
		if err != nil {
			return fmt.Errorf("element %d field %s: %w", src.Index(), field, err)
		}
		rbName := fmt.Sprintf("%s-%s-ALL:%s", s.prefix, el.Family, strings.ToUpper(field))
		rb := s.newCell(rbName, record.Scalar(value))
		spName := rbName + ":SP"
		sp := s.newCell(spName, record.Scalar(value))
		binding := &outBinding{rb: rb, field: field, srcs: []*source.ElementSource{src}}
		bendOuts[el.Family+":"+field] = binding
		s.outs[spName] = binding
		sp.OnChange(func(v record.Value) { s.onSetpoint(spName, binding, v) })
	}
	return nil
}

func (s *Server) createLatticeRecords(lat *source.LatticeSource) error {
	for _, field := range lat.Fields() {
		value, err := lat.Value(field)
		if err != nil {
			if field == "emittance_x" || field == "emittance_y" {
				// emittance computation disabled on this engine
				continue
			}
			return fmt.Errorf("lattice field %s: %w", field, err)
		}
		name := fmt.Sprintf("%s-LAT:%s", s.prefix, strings.ToUpper(field))
		rb := s.newCell(name, record.Scalar(value))
		s.bindReadback(rb, func() (float64, error) { return lat.Value(field) })
	}
	return nil
}

func (s *Server) bindReadback(cell *record.Cell, read func() (float64, error)) {
	s.rbOnly = append(s.rbOnly, rbBinding{cell: cell, read: read})
}

// onSetpoint runs after a setpoint record write: it updates the paired
// readback and queues the change on the engine. While tune feedback is
// active the bound offset record's value is added before the lattice
// sees the write.
func (s *Server) onSetpoint(spName string, binding *outBinding, v record.Value) {
	binding.rb.Set(v)
	value := v.First()
	s.mu.Lock()
	offset := s.offsets[spName]
	active := s.tuneFeedback
	s.mu.Unlock()
	if active && offset != nil {
		value += offset.Get().First()
	}
	for _, src := range binding.srcs {
		if err := src.SetValue(binding.field, value); err != nil {
			s.logger.Warn("setpoint not applied", "pv", spName, "err", err)
		}
	}
}

// UpdatePVs refreshes every readback-only record from the latest
// snapshot. It is intended as the engine's update callback and runs on
// the worker goroutine.
func (s *Server) UpdatePVs() {
	for _, b := range s.rbOnly {
		v, err := b.read()
		if err != nil {
			s.logger.Warn("readback refresh failed", "pv", b.cell.Name(), "err", err)
			continue
		}
		b.cell.Set(record.Scalar(v))
	}
}

// Record looks up a record created by this server.
func (s *Server) Record(name string) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[name]
	if !ok {
		return nil, fmt.Errorf("%q is not the name of a record created by this server", name)
	}
	return r, nil
}

// RecordNames returns every record name, sorted.
func (s *Server) RecordNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refresh re-applies a record's current value, re-running its whole
// notification chain (and hence any offset application).
func (s *Server) Refresh(name string) error {
	r, err := s.Record(name)
	if err != nil {
		return err
	}
	r.Set(r.Get())
	return nil
}

// StopMonitoring cancels all external monitor subscriptions and
// deactivates tune feedback.
func (s *Server) StopMonitoring() {
	s.mu.Lock()
	monitors := s.monitors
	s.monitors = nil
	s.tuneFeedback = false
	s.mu.Unlock()
	for _, cancel := range monitors {
		cancel()
	}
}

// TuneFeedbackActive reports whether the offset chain is live.
func (s *Server) TuneFeedbackActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tuneFeedback
}

// SetFeedback writes a value to a feedback record; index 0 addresses
// lattice-level records.
func (s *Server) SetFeedback(index int, field string, value record.Value) error {
	s.mu.Lock()
	rec, ok := s.feedback[feedbackKey{Index: index, Field: field}]
	s.mu.Unlock()
	if !ok {
		if index == 0 {
			return fmt.Errorf("%w: %q on lattice feedback records", source.ErrUnknownField, field)
		}
		return fmt.Errorf("%w: %q on element %d feedback records", source.ErrUnknownField, field, index)
	}
	rec.Set(value)
	return nil
}
