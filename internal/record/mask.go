package record

import "log/slog"

// Endpoint is the slice of the gateway contract the masks need; the
// gateway client satisfies it.
type Endpoint interface {
	Get(pv string) (Value, error)
	Put(pv string, v Value) error
	Monitor(pv string, fn func(Value)) (func(), error)
}

// Invoker is the callback capability a mask exposes to monitors.
type Invoker interface {
	Invoke(Value)
}

// SetMask fans a monitored value out to every bound output.
type SetMask struct {
	outs []Setter
}

func NewSetMask(outs ...Setter) *SetMask {
	return &SetMask{outs: outs}
}

func (m *SetMask) Invoke(v Value) {
	for _, out := range m.outs {
		out.Set(v)
	}
}

// OffsetMask reproduces the feedback-offset chain: invoking it writes
// the value to the offset record, then forces one refresh of the
// dependent setpoint so the new offset is applied.
type OffsetMask struct {
	offset  Setter
	refresh func() error
	logger  *slog.Logger
}

func NewOffsetMask(offset Setter, refresh func() error) *OffsetMask {
	return &OffsetMask{offset: offset, refresh: refresh, logger: slog.Default()}
}

func (m *OffsetMask) Invoke(v Value) {
	m.offset.Set(v)
	if err := m.refresh(); err != nil {
		m.logger.Warn("offset refresh failed", "offset", m.offset.Name(), "err", err)
	}
}

// GetMask adapts an external point to the Source shape so it can feed a
// mirror. Read failures are logged and yield an empty value.
type GetMask struct {
	ep     Endpoint
	pv     string
	logger *slog.Logger
}

func NewGetMask(ep Endpoint, pv string) *GetMask {
	return &GetMask{ep: ep, pv: pv, logger: slog.Default()}
}

func (m *GetMask) Name() string { return m.pv }

func (m *GetMask) Get() Value {
	v, err := m.ep.Get(m.pv)
	if err != nil {
		m.logger.Warn("external get failed", "pv", m.pv, "err", err)
		return nil
	}
	return v
}

func (m *GetMask) OnChange(fn func(Value)) {
	if _, err := m.ep.Monitor(m.pv, fn); err != nil {
		m.logger.Warn("external monitor failed", "pv", m.pv, "err", err)
	}
}

// PutMask adapts an external point to the Setter shape so a mirror can
// write through it.
type PutMask struct {
	ep     Endpoint
	pv     string
	logger *slog.Logger
}

func NewPutMask(ep Endpoint, pv string) *PutMask {
	return &PutMask{ep: ep, pv: pv, logger: slog.Default()}
}

func (m *PutMask) Name() string { return m.pv }

func (m *PutMask) Set(v Value) {
	if err := m.ep.Put(m.pv, v); err != nil {
		m.logger.Warn("external put failed", "pv", m.pv, "err", err)
	}
}
