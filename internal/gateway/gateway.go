// Package gateway defines the contract a control-system transport must
// satisfy for the record graph to reach external addressable points,
// plus an in-process loopback implementation used in standalone mode
// and in tests.
package gateway

import (
	"fmt"
	"sync"

	"github.com/san-kum/virtacc/internal/record"
)

// CancelFunc stops a monitor subscription.
type CancelFunc = func()

// Client is the upstream transport contract. Monitor callbacks must be
// invoked synchronously with the write that changed the value, so
// mirror propagation stays deterministic with respect to the
// originating set.
type Client interface {
	Get(pv string) (record.Value, error)
	Put(pv string, v record.Value) error
	Monitor(pv string, fn func(record.Value)) (CancelFunc, error)
}

// Registrar is implemented by transports that can serve local records
// under their own names.
type Registrar interface {
	Register(r record.Record)
}

// Loopback serves registered in-process records under their own names.
type Loopback struct {
	mu     sync.Mutex
	points map[string]record.Record
}

func NewLoopback() *Loopback {
	return &Loopback{points: make(map[string]record.Record)}
}

// Register exposes a record through the gateway. Re-registering a name
// replaces the previous point.
func (l *Loopback) Register(r record.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points[r.Name()] = r
}

func (l *Loopback) lookup(pv string) (record.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r, ok := l.points[pv]
	if !ok {
		return nil, fmt.Errorf("no such point %q", pv)
	}
	return r, nil
}

func (l *Loopback) Get(pv string) (record.Value, error) {
	r, err := l.lookup(pv)
	if err != nil {
		return nil, err
	}
	return r.Get(), nil
}

func (l *Loopback) Put(pv string, v record.Value) error {
	r, err := l.lookup(pv)
	if err != nil {
		return err
	}
	r.Set(v)
	return nil
}

// Monitor subscribes to a point. The loopback delivers notifications
// synchronously on the writer's goroutine; the subscription cannot be
// removed from the underlying record, so cancel only silences the
// callback.
func (l *Loopback) Monitor(pv string, fn func(record.Value)) (CancelFunc, error) {
	r, err := l.lookup(pv)
	if err != nil {
		return nil, err
	}
	var mu sync.Mutex
	stopped := false
	r.OnChange(func(v record.Value) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			fn(v)
		}
	})
	return func() {
		mu.Lock()
		defer mu.Unlock()
		stopped = true
	}, nil
}
