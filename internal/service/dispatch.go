package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"water_heater/internal/hardware"
	"water_heater/internal/logger"
	"water_heater/internal/osc"
)

// DispatchHook is called for every decoded message after display handling.
type DispatchHook func(ctx context.Context, msg *osc.Message, category osc.Category, src net.Addr)

// PressureDispatcher routes inbound OSC datagrams. Pressure messages are
// rendered on the left digit pair; everything else is ignored.
type PressureDispatcher struct {
	panel   *hardware.Panel
	metrics *Metrics
	log     *logger.Logger
	now     func() time.Time
	hook    DispatchHook

	mu     sync.RWMutex
	last   float64
	lastAt time.Time
	seen   bool
}

// DispatchOption customizes a PressureDispatcher.
type DispatchOption func(*PressureDispatcher)

func WithDispatchHook(h DispatchHook) DispatchOption {
	return func(d *PressureDispatcher) { d.hook = h }
}

func WithDispatchMetrics(m *Metrics) DispatchOption {
	return func(d *PressureDispatcher) { d.metrics = m }
}

func WithDispatchLogger(l *logger.Logger) DispatchOption {
	return func(d *PressureDispatcher) { d.log = l }
}

func WithDispatchClock(now func() time.Time) DispatchOption {
	return func(d *PressureDispatcher) { d.now = now }
}

func NewPressureDispatcher(panel *hardware.Panel, opts ...DispatchOption) *PressureDispatcher {
	d := &PressureDispatcher{
		panel: panel,
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandlePacket decodes one datagram and dispatches its messages. A decode
// failure dispatches nothing and is returned wrapping osc.ErrMalformedPacket.
// Display failures are logged and do not stop the remaining messages.
func (d *PressureDispatcher) HandlePacket(ctx context.Context, data []byte, src net.Addr) error {
	pkt, err := osc.Decode(data)
	if err != nil {
		d.metrics.datagram("malformed")
		return fmt.Errorf("datagram from %v: %w", src, err)
	}
	d.metrics.datagram("ok")

	for _, msg := range osc.Messages(pkt) {
		cat := osc.Classify(msg.Address)
		switch cat {
		case osc.CategoryPressure:
			d.handlePressure(msg)
		case osc.CategoryTemperature:
			d.log.Debugw("remote_temperature_ignored", "address", msg.Address, "src", addrString(src))
		default:
			d.log.Debugw("osc_message_ignored", "address", msg.Address, "src", addrString(src))
		}
		if d.hook != nil {
			d.hook(ctx, msg, cat, src)
		}
	}
	return nil
}

func (d *PressureDispatcher) handlePressure(msg *osc.Message) {
	if len(msg.Args) == 0 {
		d.log.Debugw("pressure_without_value", "address", msg.Address)
		return
	}
	v, ok := osc.Number(msg.Args[0])
	if !ok {
		d.log.Debugw("pressure_not_numeric", "address", msg.Address, "tags", msg.Tags)
		return
	}

	d.mu.Lock()
	d.last, d.lastAt, d.seen = v, d.now(), true
	d.mu.Unlock()
	d.metrics.observePressure(v)

	if err := d.panel.ShowPair(v, hardware.PressurePosition); err != nil {
		d.metrics.actuatorError()
		d.log.Warnw("display_update_failed", "pressure", v, "err", err)
	}
}

// LastPressure returns the most recent pressure value and when it arrived.
// ok is false until the first pressure message.
func (d *PressureDispatcher) LastPressure() (value float64, at time.Time, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last, d.lastAt, d.seen
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
