package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/virtacc/internal/lattice"
	"github.com/san-kum/virtacc/internal/optics"
	"github.com/san-kum/virtacc/internal/telemetry"
)

// Change is one queued mutation of the canonical model. Apply is invoked
// by the worker with the live element for Index (nil for lattice-level
// changes); it must not retain the element. A Change with a nil Apply is
// a pure recomputation trigger.
type Change struct {
	Index int // 1-based element index, 0 for lattice level
	Field string
	Value float64
	Apply func(el *lattice.Element, value float64) error
}

// Engine owns the canonical lattice and the derived-quantity snapshot.
// A single worker goroutine drains the change queue, applies changes in
// FIFO order and recomputes the physics data once per drained batch.
// Readers never block on the worker: derived accessors load the latest
// completed snapshot, and element/lattice accessors return copies.
//
// Changes enqueued while a drain pass is running join that pass if they
// arrive before the queue is observed empty; later ones start the next
// pass. Pausing stops recomputation only, queued changes are still
// applied to the model.
type Engine struct {
	calc     optics.Calculator
	logger   *slog.Logger
	onUpdate atomic.Pointer[func()]

	modelMu sync.Mutex
	lat     *lattice.Lattice
	circ    float64

	queue   *fifo
	snap    atomic.Pointer[optics.Data]
	version atomic.Uint64

	stateMu  sync.Mutex
	paused   bool
	upToDate bool
	waitCh   chan struct{} // closed while up to date
	lastErr  error

	done chan struct{}
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithUpdateCallback registers a function called on the worker goroutine
// after every completed recomputation round. The record server uses it
// to refresh readback records.
func WithUpdateCallback(fn func()) Option {
	return func(e *Engine) { e.onUpdate.Store(&fn) }
}

// SetUpdateCallback replaces the update callback; it may be called
// after the worker is running.
func (e *Engine) SetUpdateCallback(fn func()) {
	e.onUpdate.Store(&fn)
}

// New validates the lattice, performs the initial computation
// synchronously so a snapshot exists before any accessor can run, and
// starts the worker.
func New(lat *lattice.Lattice, calc optics.Calculator, opts ...Option) (*Engine, error) {
	if err := lat.Validate(); err != nil {
		return nil, fmt.Errorf("load lattice: %w", err)
	}
	e := &Engine{
		calc:   calc,
		logger: slog.Default(),
		lat:    lat,
		circ:   lat.Circumference(),
		queue:  newFIFO(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	data, err := calc.Compute(lat.Copy())
	if err != nil {
		return nil, fmt.Errorf("initial computation: %w", err)
	}
	e.snap.Store(data)
	e.version.Add(1)
	e.upToDate = true
	e.waitCh = make(chan struct{})
	close(e.waitCh)
	go e.worker()
	return e, nil
}

// Enqueue appends a change to the queue and returns immediately. Any
// number of goroutines may call it concurrently; application order is
// exactly enqueue order.
func (e *Engine) Enqueue(ch Change) {
	e.stateMu.Lock()
	e.queue.push(ch)
	if e.upToDate {
		e.upToDate = false
		e.waitCh = make(chan struct{})
	}
	e.stateMu.Unlock()
	telemetry.QueueDepth.Set(float64(e.queue.len()))
}

// Trigger forces a recomputation without changing the model.
func (e *Engine) Trigger() {
	e.Enqueue(Change{})
}

// Wait blocks until the derived data reflects every change enqueued
// before the call, or until timeout elapses; it reports whether the data
// was up to date in time. No waiter is leaked on timeout.
func (e *Engine) Wait(timeout time.Duration) bool {
	e.stateMu.Lock()
	if e.upToDate {
		e.stateMu.Unlock()
		return true
	}
	ch := e.waitCh
	e.stateMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

// Toggle pauses or resumes recomputation and reports whether the engine
// is now paused. Resuming schedules a catch-up round if changes were
// applied while paused.
func (e *Engine) Toggle() bool {
	e.stateMu.Lock()
	e.paused = !e.paused
	paused := e.paused
	stale := !e.upToDate
	e.stateMu.Unlock()
	if !paused && stale {
		e.Trigger()
	}
	return paused
}

func (e *Engine) Pause() {
	e.stateMu.Lock()
	e.paused = true
	e.stateMu.Unlock()
}

func (e *Engine) Resume() {
	e.stateMu.Lock()
	e.paused = false
	stale := !e.upToDate
	e.stateMu.Unlock()
	if stale {
		e.Trigger()
	}
}

func (e *Engine) Paused() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.paused
}

// LastError returns the most recent computation failure, if any. A
// failed round keeps the previous snapshot and does not stop the worker.
func (e *Engine) LastError() error {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.lastErr
}

// Close stops the worker after the in-flight round, if any, has
// finished. Changes enqueued after Close are dropped.
func (e *Engine) Close() {
	e.queue.close()
	<-e.done
}

// Version counts completed snapshot replacements.
func (e *Engine) Version() uint64 {
	return e.version.Load()
}

// ElementCount returns the number of elements in the ring.
func (e *Engine) ElementCount() int {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	return len(e.lat.Elements)
}

// Element returns a copy of the element at the given 1-based index.
func (e *Engine) Element(index int) (*lattice.Element, error) {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	if index < 1 || index > len(e.lat.Elements) {
		return nil, fmt.Errorf("element index %d out of range [1, %d]", index, len(e.lat.Elements))
	}
	return e.lat.Elements[index-1].Copy(), nil
}

// Lattice returns a deep copy of the canonical model.
func (e *Engine) Lattice() *lattice.Lattice {
	e.modelMu.Lock()
	defer e.modelMu.Unlock()
	return e.lat.Copy()
}

func (e *Engine) worker() {
	defer close(e.done)
	e.logger.Debug("engine worker started")
	for {
		ch, ok := e.queue.pop()
		if !ok {
			e.logger.Debug("engine worker stopping")
			return
		}
		e.apply(ch)
		for {
			next, ok := e.queue.tryPop()
			if !ok {
				break
			}
			e.apply(next)
		}
		telemetry.QueueDepth.Set(float64(e.queue.len()))

		e.stateMu.Lock()
		paused := e.paused
		e.stateMu.Unlock()
		if paused {
			// stay stale; Resume schedules the catch-up round
			continue
		}

		e.recompute()
		e.markUpToDate()
		if fn := e.onUpdate.Load(); fn != nil {
			(*fn)()
		}
	}
}

func (e *Engine) apply(ch Change) {
	if ch.Apply == nil {
		return
	}
	e.modelMu.Lock()
	var el *lattice.Element
	if ch.Index >= 1 && ch.Index <= len(e.lat.Elements) {
		el = e.lat.Elements[ch.Index-1]
	}
	err := ch.Apply(el, ch.Value)
	e.modelMu.Unlock()
	if err != nil {
		e.logger.Warn("change not applied", "index", ch.Index, "field", ch.Field, "err", err)
		return
	}
	telemetry.ChangesApplied.Inc()
}

func (e *Engine) recompute() {
	start := time.Now()
	data, err := e.calc.Compute(e.Lattice())
	telemetry.RecomputeSeconds.Observe(time.Since(start).Seconds())

	e.stateMu.Lock()
	e.lastErr = err
	e.stateMu.Unlock()

	if err != nil {
		telemetry.RecomputeFailures.Inc()
		e.logger.Warn("computation failed, keeping previous snapshot", "err", err)
		return
	}
	e.snap.Store(data)
	e.version.Add(1)
	telemetry.RecomputeTotal.Inc()
	e.logger.Debug("snapshot replaced", "version", e.version.Load(),
		"elapsed", time.Since(start))
}

// markUpToDate signals waiters, unless new changes arrived after the
// drain pass was observed empty.
func (e *Engine) markUpToDate() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if e.queue.len() == 0 && !e.upToDate {
		e.upToDate = true
		close(e.waitCh)
	}
}
