package hardware

import (
	"context"
	"math"
	"sync"
	"time"
)

// SimulatorParams tunes the thermal model.
type SimulatorParams struct {
	Ambient  float64 // surrounding temperature the tank drifts toward
	Initial  float64 // water temperature at start
	HeatRate float64 // degrees per second while heating with the pump running
	LossRate float64 // fraction of the gap to ambient lost per second
	Speed    float64 // simulated seconds per wall second
	// HeaterFault makes the heater relay ineffective, which is how the
	// stagnation latch can be exercised without hardware.
	HeaterFault bool
}

// Simulator is a Sensor and Relays backend that models a tank of water. The
// temperature advances lazily on each read from the time elapsed since the
// previous one.
type Simulator struct {
	mu     sync.Mutex
	params SimulatorParams
	now    func() time.Time

	temp   float64
	last   time.Time
	relays map[string]bool
}

// NewSimulator returns a simulator starting at params.Initial.
func NewSimulator(params SimulatorParams) *Simulator {
	if params.Speed <= 0 {
		params.Speed = 1
	}
	return &Simulator{
		params: params,
		now:    time.Now,
		temp:   params.Initial,
		relays: make(map[string]bool),
	}
}

// ReadTemperature advances the model and returns the water temperature.
func (s *Simulator) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.last.IsZero() {
		s.advance(now.Sub(s.last).Seconds() * s.params.Speed)
	}
	s.last = now
	return math.Round(s.temp*100) / 100, nil
}

// SetRelay records the output state. Unknown names are accepted so the
// simulator can stand in for any wiring.
func (s *Simulator) SetRelay(name string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relays[name] = on
	return nil
}

// Relay reports the last state set for name.
func (s *Simulator) Relay(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relays[name]
}

func (s *Simulator) advance(elapsed float64) {
	if elapsed <= 0 {
		return
	}
	if s.heating() {
		s.temp += s.params.HeatRate * elapsed
	}
	s.driftToAmbient(elapsed)
}

// heating is true only when the heater fires into circulating water.
func (s *Simulator) heating() bool {
	return s.relays[RelayHeater] && s.relays[RelayPump] && !s.params.HeaterFault
}

// driftToAmbient applies Newtonian loss, clamped so the water never crosses
// the ambient temperature in one step.
func (s *Simulator) driftToAmbient(elapsed float64) {
	gap := s.temp - s.params.Ambient
	loss := gap * math.Min(s.params.LossRate*elapsed, 1)
	s.temp -= loss
}
