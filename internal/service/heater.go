package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"water_heater/internal/hardware"
	"water_heater/internal/logger"
	"water_heater/internal/models"
)

// ErrActuator wraps every relay or display failure reported by Update.
var ErrActuator = errors.New("actuator failure")

var errThresholdOrder = errors.New("lower threshold above upper threshold")

// Transition is the outcome of one Update call.
type Transition int

const (
	TransitionNone Transition = iota
	TransitionLatched
	TransitionShutdown
	TransitionColdStart
	TransitionRecycle
	TransitionSafetyLatch
)

func (t Transition) String() string {
	switch t {
	case TransitionLatched:
		return "latched"
	case TransitionShutdown:
		return "shutdown"
	case TransitionColdStart:
		return "cold_start"
	case TransitionRecycle:
		return "recycle"
	case TransitionSafetyLatch:
		return "safety_latch"
	default:
		return "none"
	}
}

// ControlState is owned by HeaterController. A zero HeaterStartedAt means the
// heater is off.
type ControlState struct {
	HeaterStartedAt    time.Time
	CoolingDown        bool
	TemperatureAtStart float64
	SafetyLatched      bool
}

// HeaterOn reports whether a heating cycle is active.
func (s ControlState) HeaterOn() bool {
	return !s.HeaterStartedAt.IsZero()
}

// Thresholds configures the thermostat.
type Thresholds struct {
	Upper         float64
	Lower         float64
	ResetInterval time.Duration
	PrimingDelay  time.Duration
	// StagnationMargin is how far below the starting temperature a reading
	// may sit after ResetInterval before the latch trips. Zero latches on any
	// reading that has not risen above the start.
	StagnationMargin float64
}

// blinker is the display capability the controller needs.
type blinker interface {
	SetBlinkRate(rate int) error
}

// HeaterOption customizes a HeaterController.
type HeaterOption func(*HeaterController)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HeaterOption {
	return func(h *HeaterController) { h.now = now }
}

// WithSleeper overrides the priming delay wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) HeaterOption {
	return func(h *HeaterController) { h.sleep = sleep }
}

// WithEventLog records transitions to sink.
func WithEventLog(sink eventSink) HeaterOption {
	return func(h *HeaterController) { h.events = sink }
}

// WithHeaterMetrics exports state and transitions.
func WithHeaterMetrics(m *Metrics) HeaterOption {
	return func(h *HeaterController) { h.metrics = m }
}

// WithHeaterLogger sets the logger.
func WithHeaterLogger(l *logger.Logger) HeaterOption {
	return func(h *HeaterController) { h.log = l }
}

// HeaterController is the safety-latching thermostat. Update must only be
// called from one goroutine at a time; Snapshot and State may be called
// concurrently from anywhere.
type HeaterController struct {
	th      Thresholds
	relays  hardware.Relays
	display blinker

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	events  eventSink
	metrics *Metrics
	log     *logger.Logger

	mu        sync.RWMutex
	state     ControlState
	lastTemp  float64
	updatedAt time.Time
}

// NewHeaterController returns a controller with the heater off.
func NewHeaterController(th Thresholds, relays hardware.Relays, display blinker, opts ...HeaterOption) (*HeaterController, error) {
	if th.Lower > th.Upper {
		return nil, fmt.Errorf("%w: lower=%v upper=%v", errThresholdOrder, th.Lower, th.Upper)
	}
	h := &HeaterController{
		th:      th,
		relays:  relays,
		display: display,
		now:     time.Now,
		sleep:   sleepCtx,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Update applies the first matching rule for temperature t:
//
//  1. latched: force heater and pump off, assert the safety indicator
//  2. heater on and t >= upper: shut down and start cooling down
//  3. heater off and t <= lower: prime the pump, then fire the heater
//  4. heater on past the reset interval and t < upper: latch if the water has
//     not warmed since the start, otherwise recycle the pump
//
// Relay and display errors are returned wrapped in ErrActuator; the state
// change has already been applied when they occur.
func (h *HeaterController) Update(ctx context.Context, t float64) (Transition, error) {
	now := h.now()

	h.mu.Lock()
	h.lastTemp = t
	h.updatedAt = now
	st := h.state

	var tr Transition
	switch {
	case st.SafetyLatched:
		tr = TransitionLatched
	case st.HeaterOn() && t >= h.th.Upper:
		tr = TransitionShutdown
		h.state.HeaterStartedAt = time.Time{}
		h.state.CoolingDown = true
	case !st.HeaterOn() && t <= h.th.Lower:
		tr = TransitionColdStart
		h.state.HeaterStartedAt = now
		h.state.TemperatureAtStart = t
		h.state.CoolingDown = false
	case st.HeaterOn() && !st.CoolingDown && t < h.th.Upper && now.Sub(st.HeaterStartedAt) > h.th.ResetInterval:
		if t <= st.TemperatureAtStart-h.th.StagnationMargin {
			tr = TransitionSafetyLatch
			h.state.SafetyLatched = true
		} else {
			tr = TransitionRecycle
			h.state.HeaterStartedAt = now
			h.state.TemperatureAtStart = t
		}
	default:
		tr = TransitionNone
	}
	after := h.state
	h.mu.Unlock()

	h.metrics.observeState(after, t)
	h.metrics.observeTransition(tr)

	var err error
	switch tr {
	case TransitionLatched:
		err = h.forceSafe()
	case TransitionShutdown:
		err = h.shutdown()
		h.log.Infow("heater_stopped", "temp", t, "upper", h.th.Upper)
		h.record(ctx, now, models.EventHeaterStop, "upper threshold reached", map[string]any{"temp": t, "upper": h.th.Upper})
	case TransitionColdStart:
		h.log.Infow("heater_starting", "temp", t, "lower", h.th.Lower)
		h.record(ctx, now, models.EventHeaterStart, "cold start", map[string]any{"temp": t, "lower": h.th.Lower})
		err = h.coldStart(ctx)
	case TransitionRecycle:
		h.log.Infow("pump_recycle", "temp", t, "previous_start_temp", st.TemperatureAtStart)
		h.record(ctx, now, models.EventRecycle, "periodic pump recycle", map[string]any{"temp": t, "temp_at_start": st.TemperatureAtStart})
		err = h.recycle(ctx)
	case TransitionSafetyLatch:
		h.log.Errorw("safety_latch_tripped",
			"temp", t,
			"temp_at_start", st.TemperatureAtStart,
			"running_for", now.Sub(st.HeaterStartedAt).String(),
		)
		h.record(ctx, now, models.EventSafetyLatch, "water did not warm while heating", map[string]any{
			"temp":          t,
			"temp_at_start": st.TemperatureAtStart,
			"running_for_s": now.Sub(st.HeaterStartedAt).Seconds(),
		})
	}

	if err != nil && errors.Is(err, ErrActuator) {
		h.metrics.actuatorError()
		h.record(ctx, now, models.EventActuatorError, err.Error(), map[string]any{"transition": tr.String()})
	}
	return tr, err
}

// State returns a copy of the control state.
func (h *HeaterController) State() ControlState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Snapshot returns the state in its API form.
func (h *HeaterController) Snapshot() models.HeaterState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return models.HeaterState{
		ID:                 1,
		CurrentTemp:        h.lastTemp,
		UpperTemp:          h.th.Upper,
		LowerTemp:          h.th.Lower,
		HeaterOn:           h.state.HeaterOn(),
		HeaterStartedAt:    h.state.HeaterStartedAt,
		CoolingDown:        h.state.CoolingDown,
		TemperatureAtStart: h.state.TemperatureAtStart,
		SafetyLatched:      h.state.SafetyLatched,
		UpdatedAt:          h.updatedAt,
	}
}

// Thresholds returns the configured thresholds.
func (h *HeaterController) Thresholds() Thresholds {
	return h.th
}

// forceSafe drives every output to its safe level, attempting all of them
// even when one fails.
func (h *HeaterController) forceSafe() error {
	return errors.Join(
		h.setRelay(hardware.RelayHeater, false),
		h.setRelay(hardware.RelayPump, false),
		h.setRelay(hardware.RelaySafety, true),
	)
}

func (h *HeaterController) shutdown() error {
	return errors.Join(
		h.setRelay(hardware.RelayHeater, false),
		h.setRelay(hardware.RelayPump, false),
		h.setBlink(hardware.BlinkOff),
	)
}

// coldStart stops at the first failure so the heater never fires without
// the pump running.
func (h *HeaterController) coldStart(ctx context.Context) error {
	if err := h.setBlink(hardware.BlinkActive); err != nil {
		h.log.Warnw("display_blink_failed", "err", err)
	}
	if err := h.setRelay(hardware.RelayPump, true); err != nil {
		return err
	}
	if err := h.prime(ctx); err != nil {
		return err
	}
	return h.setRelay(hardware.RelayHeater, true)
}

func (h *HeaterController) recycle(ctx context.Context) error {
	if err := h.setRelay(hardware.RelayPump, true); err != nil {
		return err
	}
	if err := h.setRelay(hardware.RelayHeater, false); err != nil {
		return err
	}
	if err := h.prime(ctx); err != nil {
		return err
	}
	return h.setRelay(hardware.RelayHeater, true)
}

// prime waits out the priming delay. Cancellation is ignored: once the state
// says the heater is on, the pump, prime, heater sequence runs to the end.
func (h *HeaterController) prime(ctx context.Context) error {
	return h.sleep(context.WithoutCancel(ctx), h.th.PrimingDelay)
}

func (h *HeaterController) setRelay(name string, on bool) error {
	if err := h.relays.SetRelay(name, on); err != nil {
		return fmt.Errorf("%w: set %s=%t: %w", ErrActuator, name, on, err)
	}
	return nil
}

func (h *HeaterController) setBlink(rate int) error {
	if h.display == nil {
		return nil
	}
	if err := h.display.SetBlinkRate(rate); err != nil {
		return fmt.Errorf("%w: blink rate %d: %w", ErrActuator, rate, err)
	}
	return nil
}

func (h *HeaterController) record(ctx context.Context, at time.Time, typ, desc string, meta map[string]any) {
	recordEvent(ctx, h.events, h.log, newEvent(at, typ, desc, meta))
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
