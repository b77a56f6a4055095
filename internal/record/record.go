// Package record implements the addressable-cell graph: in-memory
// records with synchronous change notification, derived mirror records
// and mask adapters over external points.
package record

import "sync"

// Value is a record payload: a waveform of samples, length 1 for
// scalars.
type Value []float64

// Scalar wraps a single sample as a Value.
func Scalar(v float64) Value { return Value{v} }

func (v Value) Clone() Value {
	return append(Value(nil), v...)
}

// First returns the first sample, or zero for an empty value.
func (v Value) First() float64 {
	if len(v) == 0 {
		return 0
	}
	return v[0]
}

// Getter is the read capability of an addressable point.
type Getter interface {
	Name() string
	Get() Value
}

// Setter is the write capability of an addressable point.
type Setter interface {
	Name() string
	Set(Value)
}

// Source is a point that can be read and observed; mirror inputs must
// satisfy it.
type Source interface {
	Getter
	OnChange(fn func(Value))
}

// Record is a full in-process addressable cell.
type Record interface {
	Getter
	Setter
	OnChange(fn func(Value))
}

// Cell is the in-memory Record implementation. Set delivers change
// notifications synchronously before returning; a Set issued from
// inside one of this cell's own callbacks is queued and delivered by
// the outer call instead of recursing, so chained mirrors cannot grow
// the stack without bound on a single cell.
type Cell struct {
	name string

	mu          sync.Mutex
	value       Value
	subs        []func(Value)
	dispatching bool
	pending     []Value

	// display metadata, not enforced on writes
	Lower, Upper float64
	Precision    int
}

func NewCell(name string, initial Value) *Cell {
	return &Cell{name: name, value: initial.Clone()}
}

func (c *Cell) Name() string { return c.name }

func (c *Cell) Get() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value.Clone()
}

// OnChange registers a subscriber. Subscribers run on the goroutine
// that called Set, after the value is stored.
func (c *Cell) OnChange(fn func(Value)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

func (c *Cell) Set(v Value) {
	c.mu.Lock()
	if c.dispatching {
		c.pending = append(c.pending, v.Clone())
		c.mu.Unlock()
		return
	}
	c.dispatching = true
	c.mu.Unlock()

	next := v.Clone()
	for {
		c.mu.Lock()
		c.value = next
		subs := append(([]func(Value))(nil), c.subs...)
		c.mu.Unlock()

		for _, fn := range subs {
			fn(next.Clone())
		}

		c.mu.Lock()
		if len(c.pending) == 0 {
			c.dispatching = false
			c.mu.Unlock()
			return
		}
		next = c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
	}
}
