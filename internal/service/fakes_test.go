package service

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"water_heater/internal/models"
)

type relayCall struct {
	name string
	on   bool
}

type fakeRelays struct {
	mu    sync.Mutex
	calls []relayCall
	state map[string]bool
	fail  map[string]error
}

func newFakeRelays() *fakeRelays {
	return &fakeRelays{state: map[string]bool{}, fail: map[string]error{}}
}

func (r *fakeRelays) SetRelay(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, relayCall{name, on})
	if err := r.fail[name]; err != nil {
		return err
	}
	r.state[name] = on
	return nil
}

func (r *fakeRelays) Calls() []relayCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relayCall(nil), r.calls...)
}

func (r *fakeRelays) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *fakeRelays) On(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state[name]
}

type fakeDisplay struct {
	mu      sync.Mutex
	digits  [4]int
	glyphs  [4]byte
	blink   int
	flushes int
	err     error
}

func (d *fakeDisplay) SetDigit(value, position int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.digits[position] = value
	return nil
}

func (d *fakeDisplay) SetGlyph(pattern byte, position int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.glyphs[position] = pattern
	return nil
}

func (d *fakeDisplay) SetBlinkRate(rate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blink = rate
	return d.err
}

func (d *fakeDisplay) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
	return d.err
}

func (d *fakeDisplay) Digits() [4]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.digits
}

func (d *fakeDisplay) Glyphs() [4]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.glyphs
}

func (d *fakeDisplay) Flushes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushes
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.HeaterEvent
	err    error
}

func (e *fakeEvents) Append(_ context.Context, ev models.HeaterEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, ev)
	return nil
}

func (e *fakeEvents) List(_ context.Context, from, to time.Time, typ string) ([]models.HeaterEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []models.HeaterEvent
	for _, ev := range e.events {
		if typ != "" && ev.Type != typ {
			continue
		}
		if !from.IsZero() && ev.OccurredAt.Before(from) {
			continue
		}
		if !to.IsZero() && ev.OccurredAt.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (e *fakeEvents) Prune(_ context.Context, before time.Time) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var kept []models.HeaterEvent
	for _, ev := range e.events {
		if ev.OccurredAt.After(before) {
			kept = append(kept, ev)
		}
	}
	n := int64(len(e.events) - len(kept))
	e.events = kept
	return n, e.err
}

func (e *fakeEvents) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeStates struct {
	mu    sync.Mutex
	saved []models.HeaterState
	load  models.HeaterState
	err   error
}

func (s *fakeStates) Save(_ context.Context, st models.HeaterState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, st)
	return s.err
}

func (s *fakeStates) Load(context.Context) (models.HeaterState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load, s.err
}

func (s *fakeStates) Saved() []models.HeaterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HeaterState(nil), s.saved...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSensor struct {
	mu       sync.Mutex
	readings []float64
	err      error
}

func (s *fakeSensor) ReadTemperature(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if len(s.readings) == 0 {
		return 0, errors.New("no reading")
	}
	v := s.readings[0]
	if len(s.readings) > 1 {
		s.readings = s.readings[1:]
	}
	return v, nil
}

type sentMessage struct {
	to   string
	data []byte
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]error
}

func (s *fakeSender) Send(_ context.Context, to *net.UDPAddr, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to.String()]; err != nil {
		return err
	}
	s.sent = append(s.sent, sentMessage{to: to.String(), data: append([]byte(nil), data...)})
	return nil
}

func (s *fakeSender) Sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
