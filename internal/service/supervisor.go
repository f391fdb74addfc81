package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"water_heater/internal/hardware"
	"water_heater/internal/logger"
	"water_heater/internal/models"
)

// Supervisor phases.
const (
	PhaseConnecting = "CONNECTING"
	PhaseRunning    = "RUNNING"
	PhaseRebooting  = "REBOOTING"
)

// ErrTaskExited reports a task that returned without an error. Running tasks
// are expected to live forever, so a clean return still ends the phase.
var ErrTaskExited = errors.New("task exited")

// Task is one long-lived job of the Running phase.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Rebooter restarts the unit.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// SupervisorDeps are the collaborators of a Supervisor. Network, Panel and
// Rebooter are required.
type SupervisorDeps struct {
	Network  hardware.Network
	Panel    *hardware.Panel
	Rebooter Rebooter
	Events   eventSink
	Log      *logger.Logger

	// Local keeps the thermostat running while connecting. It is cancelled
	// and awaited before OnConnected and the tasks start.
	Local func(ctx context.Context) error
	// OnConnected runs once the network is up, e.g. to resolve subscribers.
	OnConnected func(ctx context.Context) error
	Tasks       []Task

	SSID            string
	Password        string
	ConnectAttempts int
	PollInterval    time.Duration
	SettleDelay     time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// Supervisor drives Connecting, Running and Rebooting.
type Supervisor struct {
	deps  SupervisorDeps
	log   *logger.Logger
	phase atomic.Value
}

func NewSupervisor(deps SupervisorDeps) *Supervisor {
	if deps.ConnectAttempts <= 0 {
		deps.ConnectAttempts = 10
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = time.Second
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepCtx
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Supervisor{deps: deps, log: log}
	s.phase.Store(PhaseConnecting)
	return s
}

// Phase returns the current phase.
func (s *Supervisor) Phase() string {
	return s.phase.Load().(string)
}

func (s *Supervisor) setPhase(p string) {
	s.phase.Store(p)
	s.log.Infow("supervisor_phase", "phase", p)
}

// Run connects, runs the tasks until the first one ends and then reboots.
// It returns early only when ctx is cancelled; otherwise it returns whatever
// the Rebooter returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setPhase(PhaseConnecting)
	if err := s.connect(ctx); err != nil {
		return err
	}

	s.setPhase(PhaseRunning)
	err := s.runTasks(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.setPhase(PhaseRebooting)
	s.log.Errorw("supervisor_task_failed", "err", err, "settle_delay", s.deps.SettleDelay.String())
	recordEvent(ctx, s.deps.Events, s.log, newEvent(s.deps.Now(), models.EventReboot, "running task ended", map[string]any{
		"reason": errString(err),
	}))
	if err := s.deps.Sleep(ctx, s.deps.SettleDelay); err != nil {
		return err
	}
	return s.deps.Rebooter.Reboot(ctx)
}

func (s *Supervisor) connect(ctx context.Context) error {
	stopLocal := s.startLocal(ctx)
	defer stopLocal()

	step := 0
	for round := 1; ; round++ {
		if err := s.deps.Network.Associate(ctx, s.deps.SSID, s.deps.Password); err != nil {
			s.log.Warnw("network_associate_failed", "ssid", s.deps.SSID, "round", round, "err", err)
		}
		for i := 0; i < s.deps.ConnectAttempts; i++ {
			if err := s.deps.Panel.Progress(step); err != nil {
				s.log.Debugw("progress_display_failed", "err", err)
			}
			step++

			ok, err := s.deps.Network.Connected(ctx)
			if err != nil {
				s.log.Debugw("network_status_failed", "err", err)
			}
			if ok {
				return s.connected(ctx, round, stopLocal)
			}
			if err := s.deps.Sleep(ctx, s.deps.PollInterval); err != nil {
				return err
			}
		}
		s.log.Warnw("network_not_connected", "ssid", s.deps.SSID, "round", round, "attempts", s.deps.ConnectAttempts)
	}
}

func (s *Supervisor) connected(ctx context.Context, round int, stopLocal func()) error {
	stopLocal()
	if err := s.deps.Panel.Fill(hardware.ReadyGlyph); err != nil {
		s.log.Warnw("ready_display_failed", "err", err)
	}
	s.log.Infow("network_connected", "ssid", s.deps.SSID, "round", round)
	recordEvent(ctx, s.deps.Events, s.log, newEvent(s.deps.Now(), models.EventConnected, "network connected", map[string]any{
		"ssid":  s.deps.SSID,
		"round": round,
	}))
	if s.deps.OnConnected != nil {
		if err := s.deps.OnConnected(ctx); err != nil {
			s.log.Warnw("on_connected_failed", "err", err)
		}
	}
	return nil
}

// startLocal launches the local control loop and returns an idempotent stop
// function that waits for it to finish.
func (s *Supervisor) startLocal(ctx context.Context) func() {
	if s.deps.Local == nil {
		return func() {}
	}
	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.deps.Local(lctx); err != nil && lctx.Err() == nil {
			s.log.Errorw("local_control_stopped", "err", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *Supervisor) runTasks(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range s.deps.Tasks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %s panicked: %v", t.Name, r)
				}
			}()
			s.log.Infow("task_started", "task", t.Name)
			if err := t.Run(gctx); err != nil {
				return fmt.Errorf("task %s: %w", t.Name, err)
			}
			return fmt.Errorf("%w: %s", ErrTaskExited, t.Name)
		})
	}
	return g.Wait()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
