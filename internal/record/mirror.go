package record

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/virtacc/internal/telemetry"
)

// Kind names a mirror record variant.
type Kind string

const (
	Basic     Kind = "basic"
	Transform Kind = "transform"
	Collate   Kind = "collate"
	Summate   Kind = "summate"
	Refresh   Kind = "refresh"
)

// TransformFunc is a pure function applied by a transform mirror.
type TransformFunc func(Value) (Value, error)

// Inverse is the logical-not transform: nonzero samples become 0, zero
// samples become 1.
func Inverse(v Value) (Value, error) {
	if len(v) == 0 {
		return nil, errors.New("inverse of empty value")
	}
	out := make(Value, len(v))
	for i, s := range v {
		if s == 0 {
			out[i] = 1
		}
	}
	return out, nil
}

// TransformByName resolves the transforms the mirror CSV may name.
func TransformByName(name string) (TransformFunc, error) {
	switch name {
	case "inverse":
		return Inverse, nil
	}
	return nil, fmt.Errorf("unknown transform %q", name)
}

// Mirror derives an output point from one or more input points. It is
// stateless across cycles: construction subscribes it to every input,
// and each input change notification re-evaluates the output from the
// inputs' current values. Evaluation failures are logged and leave the
// output unchanged; they never propagate into the Set that triggered
// them.
type Mirror struct {
	kind    Kind
	ins     []Source
	out     Setter
	fn      TransformFunc
	refresh func() error
	logger  *slog.Logger
}

// NewBasic copies a single input's value to the output on change.
func NewBasic(in Source, out Setter) *Mirror {
	m := &Mirror{kind: Basic, ins: []Source{in}, out: out, logger: slog.Default()}
	m.subscribe()
	return m
}

// NewTransform applies fn to the changed input value before setting the
// output.
func NewTransform(fn TransformFunc, in Source, out Setter) (*Mirror, error) {
	if fn == nil {
		return nil, errors.New("transform mirror needs a transform function")
	}
	m := &Mirror{kind: Transform, ins: []Source{in}, out: out, fn: fn, logger: slog.Default()}
	m.subscribe()
	return m, nil
}

// NewCollate rebuilds a waveform from the inputs' current values, in
// declared input order, whenever any input changes.
func NewCollate(ins []Source, out Setter) (*Mirror, error) {
	if len(ins) < 2 {
		return nil, fmt.Errorf("collate mirror needs at least two inputs, got %d", len(ins))
	}
	m := &Mirror{kind: Collate, ins: ins, out: out, logger: slog.Default()}
	m.subscribe()
	return m, nil
}

// NewSummate sets the output to the sum of the inputs' current values
// whenever any input changes.
func NewSummate(ins []Source, out Setter) (*Mirror, error) {
	if len(ins) < 2 {
		return nil, fmt.Errorf("summate mirror needs at least two inputs, got %d", len(ins))
	}
	m := &Mirror{kind: Summate, ins: ins, out: out, logger: slog.Default()}
	m.subscribe()
	return m, nil
}

// NewRefresher invokes refresh on every input change instead of
// computing a value; the target record re-reads itself.
func NewRefresher(in Source, refresh func() error) (*Mirror, error) {
	if refresh == nil {
		return nil, errors.New("refresher mirror needs a refresh function")
	}
	m := &Mirror{kind: Refresh, ins: []Source{in}, refresh: refresh, logger: slog.Default()}
	m.subscribe()
	return m, nil
}

func (m *Mirror) Kind() Kind { return m.kind }

func (m *Mirror) Name() string {
	if m.out != nil {
		return m.out.Name()
	}
	return m.ins[0].Name() + ":REFRESH"
}

func (m *Mirror) subscribe() {
	for _, in := range m.ins {
		in.OnChange(m.update)
	}
}

// update re-evaluates the output for one input-change notification.
func (m *Mirror) update(v Value) {
	if err := m.evaluate(v); err != nil {
		telemetry.MirrorFailures.Inc()
		m.logger.Warn("mirror update failed, output unchanged",
			"mirror", m.Name(), "kind", m.kind, "err", err)
		return
	}
	telemetry.MirrorUpdates.Inc()
}

func (m *Mirror) evaluate(v Value) error {
	switch m.kind {
	case Basic:
		m.out.Set(v)
	case Transform:
		out, err := m.fn(v)
		if err != nil {
			return err
		}
		m.out.Set(out)
	case Summate:
		sum := 0.0
		for _, in := range m.ins {
			sum += in.Get().First()
		}
		m.out.Set(Scalar(sum))
	case Collate:
		out := make(Value, 0, len(m.ins))
		for _, in := range m.ins {
			out = append(out, in.Get().First())
		}
		m.out.Set(out)
	case Refresh:
		return m.refresh()
	}
	return nil
}
