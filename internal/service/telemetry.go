package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"water_heater/internal/hardware"
	"water_heater/internal/logger"
	"water_heater/internal/models"
	"water_heater/internal/osc"
)

// Telemetry addresses published every cycle.
const (
	AddrTemperature = "/temperature"
	AddrWaterHeater = "/water_heater"
	AddrUpperTemp   = "/upper_temp"
	AddrLowerTemp   = "/lower_temp"
)

// Sender delivers one datagram to one subscriber.
type Sender interface {
	Send(ctx context.Context, to *net.UDPAddr, data []byte) error
}

// UDPSender opens a fresh socket for every message: dial, write, close.
type UDPSender struct {
	Timeout time.Duration
}

func (s UDPSender) Send(ctx context.Context, to *net.UDPAddr, data []byte) error {
	d := net.Dialer{Timeout: s.Timeout}
	conn, err := d.DialContext(ctx, "udp", to.String())
	if err != nil {
		return fmt.Errorf("dial %s: %w", to, err)
	}
	defer conn.Close()
	if s.Timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.Timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", to, err)
	}
	return nil
}

// Telemetry is one cycle's published values.
type Telemetry struct {
	Temperature   float64   `json:"temperature"`
	HeaterOn      bool      `json:"heater_on"`
	Upper         float64   `json:"upper_temp"`
	Lower         float64   `json:"lower_temp"`
	SafetyLatched bool      `json:"safety_latched"`
	At            time.Time `json:"at"`
}

// Mirror republishes telemetry somewhere other than OSC.
type Mirror interface {
	Publish(ctx context.Context, t Telemetry) error
}

type stateSaver interface {
	Save(ctx context.Context, s models.HeaterState) error
}

// BroadcasterDeps are the collaborators of a Broadcaster. Sensor, Heater,
// Panel and Sender are required.
type BroadcasterDeps struct {
	Sensor   hardware.Sensor
	Heater   *HeaterController
	Panel    *hardware.Panel
	Sender   Sender
	States   stateSaver
	Mirror   Mirror
	Metrics  *Metrics
	Log      *logger.Logger
	Interval time.Duration
	// OnCycle runs after every completed cycle, e.g. to feed a watchdog.
	OnCycle func()
}

// Broadcaster runs the sense, control, display, publish cycle.
type Broadcaster struct {
	deps     BroadcasterDeps
	log      *logger.Logger
	registry atomic.Pointer[ClientRegistry]
}

var errMissingDeps = errors.New("broadcaster: sensor, heater, panel and sender are required")

func NewBroadcaster(deps BroadcasterDeps) (*Broadcaster, error) {
	if deps.Sensor == nil || deps.Heater == nil || deps.Panel == nil || deps.Sender == nil {
		return nil, errMissingDeps
	}
	if deps.Interval <= 0 {
		deps.Interval = 5 * time.Second
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Broadcaster{deps: deps, log: log}, nil
}

// SetRegistry installs the subscribers. Until it is called nothing is
// published.
func (b *Broadcaster) SetRegistry(r *ClientRegistry) {
	b.registry.Store(r)
	b.deps.Metrics.setSubscribers(r.Len())
}

// Run cycles immediately and then every interval, publishing to the
// registry, until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	return b.loop(ctx, true)
}

// RunLocal keeps the thermostat working without publishing anything. It is
// used while the network is still coming up.
func (b *Broadcaster) RunLocal(ctx context.Context) error {
	return b.loop(ctx, false)
}

func (b *Broadcaster) loop(ctx context.Context, publish bool) error {
	t := time.NewTicker(b.deps.Interval)
	defer t.Stop()
	for {
		if err := b.cycle(ctx, publish); err != nil && ctx.Err() == nil {
			b.log.Warnw("telemetry_cycle_skipped", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Cycle performs one full publishing cycle. Only a sensor failure is
// returned; everything after the read is best effort and logged.
func (b *Broadcaster) Cycle(ctx context.Context) error {
	return b.cycle(ctx, true)
}

func (b *Broadcaster) cycle(ctx context.Context, publish bool) error {
	temp, err := b.deps.Sensor.ReadTemperature(ctx)
	if err != nil {
		b.deps.Metrics.sensorError()
		return fmt.Errorf("read temperature: %w", err)
	}

	tr, err := b.deps.Heater.Update(ctx, temp)
	if err != nil {
		b.log.Errorw("heater_update_failed", "transition", tr.String(), "temp", temp, "err", err)
	}

	if err := b.deps.Panel.ShowPair(temp, hardware.TemperaturePosition); err != nil {
		b.deps.Metrics.actuatorError()
		b.log.Warnw("display_update_failed", "temp", temp, "err", err)
	}

	snap := b.deps.Heater.Snapshot()
	snap.Phase = PhaseConnecting
	if publish {
		snap.Phase = PhaseRunning
	}
	if b.deps.States != nil {
		if err := b.deps.States.Save(ctx, snap); err != nil {
			b.log.Warnw("state_save_failed", "err", err)
		}
	}

	if publish {
		tel := Telemetry{
			Temperature:   temp,
			HeaterOn:      snap.HeaterOn,
			Upper:         snap.UpperTemp,
			Lower:         snap.LowerTemp,
			SafetyLatched: snap.SafetyLatched,
			At:            snap.UpdatedAt,
		}
		b.publish(ctx, tel)
		if b.deps.Mirror != nil {
			if err := b.deps.Mirror.Publish(ctx, tel); err != nil {
				b.log.Warnw("telemetry_mirror_failed", "err", err)
			}
		}
	}

	if b.deps.OnCycle != nil {
		b.deps.OnCycle()
	}
	return nil
}

func (b *Broadcaster) publish(ctx context.Context, tel Telemetry) {
	clients := b.registry.Load().Clients()
	if len(clients) == 0 {
		return
	}
	heater := float32(0)
	if tel.HeaterOn {
		heater = 1
	}
	values := []struct {
		addr string
		v    float32
	}{
		{AddrTemperature, float32(tel.Temperature)},
		{AddrWaterHeater, heater},
		{AddrUpperTemp, float32(tel.Upper)},
		{AddrLowerTemp, float32(tel.Lower)},
	}

	type encoded struct {
		addr string
		data []byte
	}
	msgs := make([]encoded, 0, len(values))
	for _, m := range values {
		data, err := osc.Encode(m.addr, m.v)
		if err != nil {
			b.log.Errorw("telemetry_encode_failed", "address", m.addr, "err", err)
			continue
		}
		msgs = append(msgs, encoded{m.addr, data})
	}

	for _, c := range clients {
		for _, m := range msgs {
			if err := b.deps.Sender.Send(ctx, c, m.data); err != nil {
				b.deps.Metrics.telemetrySend("error")
				b.log.Warnw("telemetry_send_failed", "client", c.String(), "address", m.addr, "err", err)
				continue
			}
			b.deps.Metrics.telemetrySend("ok")
		}
	}
}
