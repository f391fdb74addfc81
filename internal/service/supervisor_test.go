package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"water_heater/internal/hardware"
	"water_heater/internal/models"
)

type scriptedNetwork struct {
	mu           sync.Mutex
	connectAfter int // Connected returns true on this call (1-based); 0 never
	polls        int
	associations int
}

func (n *scriptedNetwork) Associate(context.Context, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.associations++
	return nil
}

func (n *scriptedNetwork) Connected(context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.polls++
	if n.connectAfter > 0 && n.polls >= n.connectAfter {
		return true, nil
	}
	return false, errors.New("disconnected")
}

type recordingRebooter struct {
	calls atomic.Int32
	err   error
}

func (r *recordingRebooter) Reboot(context.Context) error {
	r.calls.Add(1)
	return r.err
}

type supervisorFixture struct {
	deps     SupervisorDeps
	network  *scriptedNetwork
	display  *fakeDisplay
	rebooter *recordingRebooter
	events   *fakeEvents
	sleeps   *[]time.Duration
}

func newSupervisorFixture(connectAfter int) *supervisorFixture {
	sleeps := []time.Duration{}
	var mu sync.Mutex
	f := &supervisorFixture{
		network:  &scriptedNetwork{connectAfter: connectAfter},
		display:  &fakeDisplay{},
		rebooter: &recordingRebooter{err: ErrRestartRequested},
		events:   &fakeEvents{},
		sleeps:   &sleeps,
	}
	f.deps = SupervisorDeps{
		Network:         f.network,
		Panel:           hardware.NewPanel(f.display),
		Rebooter:        f.rebooter,
		Events:          f.events,
		SSID:            "boiler-room",
		ConnectAttempts: 3,
		PollInterval:    time.Second,
		SettleDelay:     5 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			sleeps = append(sleeps, d)
			mu.Unlock()
			return ctx.Err()
		},
	}
	return f
}

func TestSupervisor_TaskFailureReboots(t *testing.T) {
	t.Parallel()
	f := newSupervisorFixture(2)

	var connectedCalls int
	f.deps.OnConnected = func(context.Context) error {
		connectedCalls++
		return nil
	}
	boom := errors.New("socket closed")
	f.deps.Tasks = []Task{
		{Name: "broadcaster", Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
		{Name: "osc-server", Run: func(context.Context) error { return boom }},
	}

	s := NewSupervisor(f.deps)
	err := s.Run(t.Context())
	require.ErrorIs(t, err, ErrRestartRequested)

	assert.Equal(t, PhaseRebooting, s.Phase())
	assert.Equal(t, int32(1), f.rebooter.calls.Load())
	assert.Equal(t, 1, connectedCalls)
	assert.Equal(t, [4]byte{hardware.ReadyGlyph, hardware.ReadyGlyph, hardware.ReadyGlyph, hardware.ReadyGlyph}, f.display.Glyphs())
	assert.Equal(t, []string{models.EventConnected, models.EventReboot}, f.events.Types())
	// one poll interval while connecting, then the settle delay
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second}, *f.sleeps)
}

func TestSupervisor_CleanTaskReturnStillReboots(t *testing.T) {
	t.Parallel()
	f := newSupervisorFixture(1)
	f.deps.Tasks = []Task{{Name: "short", Run: func(context.Context) error { return nil }}}

	s := NewSupervisor(f.deps)
	require.ErrorIs(t, s.Run(t.Context()), ErrRestartRequested)
	assert.Equal(t, int32(1), f.rebooter.calls.Load())
}

func TestSupervisor_PanicIsRecovered(t *testing.T) {
	t.Parallel()
	f := newSupervisorFixture(1)
	f.deps.Tasks = []Task{{Name: "bad", Run: func(context.Context) error { panic("nil display") }}}

	var reason string
	s := NewSupervisor(f.deps)
	require.NotPanics(t, func() {
		require.ErrorIs(t, s.Run(t.Context()), ErrRestartRequested)
	})
	evs, _ := f.events.List(t.Context(), time.Time{}, time.Time{}, models.EventReboot)
	require.Len(t, evs, 1)
	reason = evs[0].Metadata.(map[string]any)["reason"].(string)
	assert.Contains(t, reason, "panicked")
}

func TestSupervisor_RetriesAssociationUnbounded(t *testing.T) {
	t.Parallel()
	// 3 attempts per round, connected on the 8th poll: three associations.
	f := newSupervisorFixture(8)
	f.deps.Tasks = []Task{{Name: "t", Run: func(context.Context) error { return errors.New("done") }}}

	s := NewSupervisor(f.deps)
	require.ErrorIs(t, s.Run(t.Context()), ErrRestartRequested)
	assert.Equal(t, 3, f.network.associations)
	assert.Equal(t, 8, f.network.polls)
}

func TestSupervisor_ContextCancelSkipsReboot(t *testing.T) {
	t.Parallel()
	f := newSupervisorFixture(1)
	ctx, cancel := context.WithCancel(t.Context())
	f.deps.Tasks = []Task{{Name: "t", Run: func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}}}

	s := NewSupervisor(f.deps)
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Zero(t, f.rebooter.calls.Load())
}

func TestSupervisor_LocalLoopRunsUntilConnected(t *testing.T) {
	t.Parallel()
	f := newSupervisorFixture(0)

	var localRunning atomic.Bool
	localStarted := make(chan struct{})
	f.deps.Local = func(ctx context.Context) error {
		localRunning.Store(true)
		close(localStarted)
		<-ctx.Done()
		localRunning.Store(false)
		return ctx.Err()
	}
	f.deps.OnConnected = func(context.Context) error {
		assert.False(t, localRunning.Load(), "local loop must stop before connecting completes")
		return nil
	}
	f.deps.Tasks = []Task{{Name: "t", Run: func(context.Context) error { return errors.New("done") }}}

	release := make(chan struct{})
	f.deps.Sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}

	s := NewSupervisor(f.deps)
	done := make(chan error, 1)
	go func() { done <- s.Run(t.Context()) }()

	<-localStarted
	assert.Equal(t, PhaseConnecting, s.Phase())
	f.network.mu.Lock()
	f.network.connectAfter = 1
	f.network.mu.Unlock()
	close(release)

	require.ErrorIs(t, <-done, ErrRestartRequested)
	assert.False(t, localRunning.Load())
}

type gatedNetwork struct {
	gate <-chan struct{}
}

func (gatedNetwork) Associate(context.Context, string, string) error { return nil }

func (n gatedNetwork) Connected(ctx context.Context) (bool, error) {
	select {
	case <-n.gate:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func TestSupervisor_HandoffWaitsForPrimingSequence(t *testing.T) {
	t.Parallel()
	f := newSupervisorFixture(0)

	priming := make(chan struct{})
	relays := newFakeRelays()
	heater, err := NewHeaterController(testThresholds, relays, nil,
		WithSleeper(func(ctx context.Context, _ time.Duration) error {
			close(priming)
			select {
			case <-time.After(20 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
	)
	require.NoError(t, err)

	// The network comes up while the local loop is between pump and heater.
	f.deps.Network = gatedNetwork{gate: priming}
	f.deps.Local = func(ctx context.Context) error {
		if _, err := heater.Update(ctx, 60); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	}

	var heaterRelay, heaterOn bool
	f.deps.Tasks = []Task{{Name: "broadcaster", Run: func(context.Context) error {
		heaterRelay = relays.On(hardware.RelayHeater)
		heaterOn = heater.State().HeaterOn()
		return errors.New("stop")
	}}}

	err = NewSupervisor(f.deps).Run(t.Context())
	require.ErrorIs(t, err, ErrRestartRequested)
	assert.True(t, heaterOn)
	assert.Equal(t, heaterOn, heaterRelay)
	assert.True(t, relays.On(hardware.RelayPump))
}
