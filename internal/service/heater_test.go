package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water_heater/internal/hardware"
	"water_heater/internal/models"
)

var testThresholds = Thresholds{
	Upper:         75,
	Lower:         70,
	ResetInterval: 10 * time.Minute,
	PrimingDelay:  2 * time.Second,
}

type heaterFixture struct {
	h       *HeaterController
	relays  *fakeRelays
	display *fakeDisplay
	events  *fakeEvents
	clock   *fakeClock
	metrics *Metrics
}

func newHeaterFixture(t *testing.T, th Thresholds) *heaterFixture {
	t.Helper()
	f := &heaterFixture{
		relays:  newFakeRelays(),
		display: &fakeDisplay{},
		events:  &fakeEvents{},
		clock:   newFakeClock(),
		metrics: NewMetrics(),
	}
	h, err := NewHeaterController(th, f.relays, hardware.NewPanel(f.display),
		WithClock(f.clock.Now),
		WithSleeper(noSleep),
		WithEventLog(f.events),
		WithHeaterMetrics(f.metrics),
	)
	require.NoError(t, err)
	f.h = h
	return f
}

func TestNewHeaterController_RejectsInvertedThresholds(t *testing.T) {
	t.Parallel()

	_, err := NewHeaterController(Thresholds{Upper: 60, Lower: 70}, newFakeRelays(), nil)
	require.Error(t, err)
}

func TestUpdate_ReadingSequence(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)
	ctx := t.Context()

	for _, temp := range []float64{72, 71} {
		tr, err := f.h.Update(ctx, temp)
		require.NoError(t, err)
		assert.Equal(t, TransitionNone, tr, "temp %v", temp)
		assert.False(t, f.h.State().HeaterOn())
	}

	tr, err := f.h.Update(ctx, 70)
	require.NoError(t, err)
	require.Equal(t, TransitionColdStart, tr)
	st := f.h.State()
	assert.True(t, st.HeaterOn())
	assert.Equal(t, f.clock.Now(), st.HeaterStartedAt)
	assert.Equal(t, 70.0, st.TemperatureAtStart)
	assert.False(t, st.CoolingDown)
	assert.Equal(t, []relayCall{{hardware.RelayPump, true}, {hardware.RelayHeater, true}}, f.relays.Calls())
	assert.Equal(t, hardware.BlinkActive, f.display.blink)

	f.clock.Advance(5 * time.Second)
	tr, err = f.h.Update(ctx, 69)
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, tr)
	assert.True(t, f.h.State().HeaterOn())

	f.relays.Reset()
	f.clock.Advance(5 * time.Second)
	tr, err = f.h.Update(ctx, 76)
	require.NoError(t, err)
	require.Equal(t, TransitionShutdown, tr)
	st = f.h.State()
	assert.False(t, st.HeaterOn())
	assert.True(t, st.CoolingDown)
	assert.False(t, f.relays.On(hardware.RelayHeater))
	assert.False(t, f.relays.On(hardware.RelayPump))
	assert.Equal(t, hardware.BlinkOff, f.display.blink)

	assert.Equal(t, []string{models.EventHeaterStart, models.EventHeaterStop}, f.events.Types())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.transitions.WithLabelValues("cold_start")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.transitions.WithLabelValues("shutdown")))
	assert.Equal(t, 76.0, testutil.ToFloat64(f.metrics.temperature))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.coolingDown))
}

func TestUpdate_ColdStartBelowLower(t *testing.T) {
	t.Parallel()

	for _, temp := range []float64{-5, 0, 33.3, 69.99, 70} {
		f := newHeaterFixture(t, testThresholds)
		tr, err := f.h.Update(t.Context(), temp)
		require.NoError(t, err)
		assert.Equal(t, TransitionColdStart, tr, "temp %v", temp)
		assert.Equal(t, temp, f.h.State().TemperatureAtStart)
	}
}

func TestUpdate_ShutdownAtOrAboveUpper(t *testing.T) {
	t.Parallel()

	for _, temp := range []float64{75, 75.01, 99, 180} {
		f := newHeaterFixture(t, testThresholds)
		_, err := f.h.Update(t.Context(), 60)
		require.NoError(t, err)

		tr, err := f.h.Update(t.Context(), temp)
		require.NoError(t, err)
		assert.Equal(t, TransitionShutdown, tr, "temp %v", temp)
		assert.True(t, f.h.State().CoolingDown)
		assert.False(t, f.h.State().HeaterOn())
	}
}

func TestUpdate_HeaterOffBetweenThresholdsIsIdle(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)

	for _, temp := range []float64{70.5, 74.9, 75, 90} {
		tr, err := f.h.Update(t.Context(), temp)
		require.NoError(t, err)
		assert.Equal(t, TransitionNone, tr)
	}
	assert.Empty(t, f.relays.Calls())
}

func TestUpdate_StagnationLatchesAtStartTemperature(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)
	ctx := t.Context()

	_, err := f.h.Update(ctx, 65)
	require.NoError(t, err)
	f.relays.Reset()

	f.clock.Advance(testThresholds.ResetInterval + time.Second)
	tr, err := f.h.Update(ctx, 65)
	require.NoError(t, err)
	require.Equal(t, TransitionSafetyLatch, tr)
	assert.True(t, f.h.State().SafetyLatched)
	assert.Empty(t, f.relays.Calls(), "latching must not recycle")
	assert.Contains(t, f.events.Types(), models.EventSafetyLatch)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.safetyLatched))
}

func TestUpdate_StagnationOneDegreeBelowStart(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)

	_, err := f.h.Update(t.Context(), 66)
	require.NoError(t, err)
	f.clock.Advance(testThresholds.ResetInterval + time.Millisecond)

	tr, err := f.h.Update(t.Context(), 65)
	require.NoError(t, err)
	assert.Equal(t, TransitionSafetyLatch, tr)
}

func TestUpdate_StagnationMargin(t *testing.T) {
	t.Parallel()
	th := testThresholds
	th.StagnationMargin = 1
	f := newHeaterFixture(t, th)

	_, err := f.h.Update(t.Context(), 66)
	require.NoError(t, err)
	f.clock.Advance(th.ResetInterval + time.Second)

	tr, err := f.h.Update(t.Context(), 65.5)
	require.NoError(t, err)
	assert.Equal(t, TransitionRecycle, tr)
	assert.False(t, f.h.State().SafetyLatched)
}

func TestUpdate_RecycleWhenWarming(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)
	ctx := t.Context()

	_, err := f.h.Update(ctx, 60)
	require.NoError(t, err)

	f.clock.Advance(testThresholds.ResetInterval)
	tr, err := f.h.Update(ctx, 62)
	require.NoError(t, err)
	assert.Equal(t, TransitionNone, tr, "exactly the reset interval is not past it")

	f.relays.Reset()
	f.clock.Advance(time.Second)
	tr, err = f.h.Update(ctx, 63)
	require.NoError(t, err)
	require.Equal(t, TransitionRecycle, tr)

	st := f.h.State()
	assert.Equal(t, 63.0, st.TemperatureAtStart)
	assert.Equal(t, f.clock.Now(), st.HeaterStartedAt)
	assert.Equal(t, []relayCall{
		{hardware.RelayPump, true},
		{hardware.RelayHeater, false},
		{hardware.RelayHeater, true},
	}, f.relays.Calls())
}

func TestUpdate_LatchIsPermanent(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)
	ctx := t.Context()

	_, err := f.h.Update(ctx, 65)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	tr, err := f.h.Update(ctx, 64)
	require.NoError(t, err)
	require.Equal(t, TransitionSafetyLatch, tr)

	for _, temp := range []float64{10, 65, 70, 80, 200} {
		f.relays.Reset()
		f.clock.Advance(time.Hour)
		tr, err := f.h.Update(ctx, temp)
		require.NoError(t, err)
		assert.Equal(t, TransitionLatched, tr)
		assert.True(t, f.h.State().SafetyLatched)
		assert.False(t, f.relays.On(hardware.RelayHeater))
		assert.False(t, f.relays.On(hardware.RelayPump))
		assert.True(t, f.relays.On(hardware.RelaySafety))
	}
}

func TestUpdate_ActuatorErrors(t *testing.T) {
	t.Parallel()

	t.Run("cold start stops before the heater when the pump fails", func(t *testing.T) {
		t.Parallel()
		f := newHeaterFixture(t, testThresholds)
		f.relays.fail[hardware.RelayPump] = errors.New("gpio busy")

		tr, err := f.h.Update(t.Context(), 60)
		require.ErrorIs(t, err, ErrActuator)
		assert.Equal(t, TransitionColdStart, tr)
		assert.True(t, f.h.State().HeaterOn(), "state change is applied regardless")
		assert.Equal(t, []relayCall{{hardware.RelayPump, true}}, f.relays.Calls())
		assert.Contains(t, f.events.Types(), models.EventActuatorError)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.actuatorErrors))
	})

	t.Run("latched attempts every relay", func(t *testing.T) {
		t.Parallel()
		f := newHeaterFixture(t, testThresholds)
		_, err := f.h.Update(t.Context(), 60)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
		_, err = f.h.Update(t.Context(), 50)
		require.NoError(t, err)

		f.relays.Reset()
		f.relays.fail[hardware.RelayHeater] = errors.New("stuck")
		tr, err := f.h.Update(t.Context(), 50)
		require.ErrorIs(t, err, ErrActuator)
		assert.Equal(t, TransitionLatched, tr)
		assert.Len(t, f.relays.Calls(), 3)
		assert.True(t, f.relays.On(hardware.RelaySafety))
	})

	t.Run("event log failures are not returned", func(t *testing.T) {
		t.Parallel()
		f := newHeaterFixture(t, testThresholds)
		f.events.err = errors.New("disk full")

		_, err := f.h.Update(t.Context(), 60)
		require.NoError(t, err)
	})
}

func TestUpdate_PrimingSequenceIgnoresCancellation(t *testing.T) {
	t.Parallel()
	relays := newFakeRelays()
	clock := newFakeClock()
	started := make(chan struct{})
	release := make(chan struct{})
	sleeper := func(ctx context.Context, _ time.Duration) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h, err := NewHeaterController(testThresholds, relays, nil, WithClock(clock.Now), WithSleeper(sleeper))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	type result struct {
		tr  Transition
		err error
	}
	done := make(chan result, 1)
	go func() {
		tr, err := h.Update(ctx, 60)
		done <- result{tr, err}
	}()

	<-started
	cancel()
	assert.True(t, relays.On(hardware.RelayPump))
	assert.False(t, relays.On(hardware.RelayHeater))
	close(release)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, TransitionColdStart, res.tr)
	assert.True(t, relays.On(hardware.RelayHeater))
	assert.Equal(t, relays.On(hardware.RelayHeater), h.State().HeaterOn())
}

func TestUpdate_CancelledContextStillCompletesSequences(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	tr, err := f.h.Update(ctx, 60)
	require.NoError(t, err)
	assert.Equal(t, TransitionColdStart, tr)
	assert.True(t, f.relays.On(hardware.RelayHeater))
	assert.True(t, f.h.State().HeaterOn())

	// The heater really fired, so the water warms and the next check recycles
	// instead of tripping the latch.
	f.clock.Advance(11 * time.Minute)
	tr, err = f.h.Update(ctx, 65)
	require.NoError(t, err)
	assert.Equal(t, TransitionRecycle, tr)
	assert.True(t, f.relays.On(hardware.RelayHeater))
	assert.True(t, f.relays.On(hardware.RelayPump))
	assert.False(t, f.h.State().SafetyLatched)
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	f := newHeaterFixture(t, testThresholds)

	_, err := f.h.Update(t.Context(), 68.5)
	require.NoError(t, err)

	s := f.h.Snapshot()
	assert.Equal(t, 1, s.ID)
	assert.Equal(t, 68.5, s.CurrentTemp)
	assert.Equal(t, 75.0, s.UpperTemp)
	assert.Equal(t, 70.0, s.LowerTemp)
	assert.True(t, s.HeaterOn)
	assert.Equal(t, f.clock.Now(), s.UpdatedAt)
}

func TestTransitionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "none", TransitionNone.String())
	assert.Equal(t, "safety_latch", TransitionSafetyLatch.String())
	assert.Equal(t, "none", Transition(42).String())
}
