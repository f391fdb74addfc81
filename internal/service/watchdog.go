package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"water_heater/internal/logger"
)

// Watchdog reports readiness and liveness to systemd. Keepalives are only
// sent while Beat has been called within the stall window, so a wedged
// control loop gets the unit restarted.
type Watchdog struct {
	notify     func(unsetEnvironment bool, state string) (bool, error)
	enabled    func(unsetEnvironment bool) (time.Duration, error)
	now        func() time.Time
	stallAfter time.Duration
	log        *logger.Logger

	last atomic.Int64
}

func NewWatchdog(stallAfter time.Duration, log *logger.Logger) *Watchdog {
	if log == nil {
		log = logger.Nop()
	}
	w := &Watchdog{
		notify:     daemon.SdNotify,
		enabled:    daemon.SdWatchdogEnabled,
		now:        time.Now,
		stallAfter: stallAfter,
		log:        log,
	}
	w.Beat()
	return w
}

// Beat records progress of the control loop.
func (w *Watchdog) Beat() {
	w.last.Store(w.now().UnixNano())
}

// Ready tells systemd start-up has finished. Outside systemd it is a no-op.
func (w *Watchdog) Ready() {
	w.send(daemon.SdNotifyReady)
}

// Stopping tells systemd the process is shutting down.
func (w *Watchdog) Stopping() {
	w.send(daemon.SdNotifyStopping)
}

func (w *Watchdog) send(state string) {
	sent, err := w.notify(false, state)
	if err != nil {
		w.log.Warnw("sd_notify_failed", "state", state, "err", err)
		return
	}
	w.log.Debugw("sd_notify", "state", state, "sent", sent)
}

// Run sends keepalives at half the configured watchdog interval until ctx is
// done. It returns immediately when the watchdog is not enabled.
func (w *Watchdog) Run(ctx context.Context) error {
	interval, err := w.enabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		w.log.Debugw("watchdog_disabled")
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if w.Stalled() {
				w.log.Warnw("watchdog_withheld", "stall_after", w.stallAfter.String())
				continue
			}
			w.send(daemon.SdNotifyWatchdog)
		}
	}
}

// Stalled reports whether the last beat is older than the stall window.
func (w *Watchdog) Stalled() bool {
	if w.stallAfter <= 0 {
		return false
	}
	last := time.Unix(0, w.last.Load())
	return w.now().Sub(last) > w.stallAfter
}
