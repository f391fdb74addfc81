package service

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"water_heater/internal/config"
	"water_heater/internal/logger"
)

// ErrRestartRequested is returned by the exit rebooter; the process is
// expected to exit non-zero so its service manager restarts it.
var ErrRestartRequested = errors.New("restart requested")

var errUnknownRebootMode = errors.New("unknown reboot mode")

// ExecRebooter replaces the running process with a fresh copy of itself.
type ExecRebooter struct {
	exec func() error
	log  *logger.Logger
}

func (r ExecRebooter) Reboot(context.Context) error {
	r.log.Warnw("reboot_exec")
	if err := r.exec(); err != nil {
		return fmt.Errorf("re-exec: %w", err)
	}
	return nil
}

// ExitRebooter hands the restart to the service manager.
type ExitRebooter struct {
	log *logger.Logger
}

func (r ExitRebooter) Reboot(context.Context) error {
	r.log.Warnw("reboot_exit")
	return ErrRestartRequested
}

type rebootRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// SystemRebooter reboots the whole host.
type SystemRebooter struct {
	run rebootRunner
	log *logger.Logger
}

func (r SystemRebooter) Reboot(ctx context.Context) error {
	r.log.Warnw("reboot_system")
	out, err := r.run(ctx, "shutdown", "-r", "now")
	if err != nil {
		return fmt.Errorf("shutdown -r now: %w: %s", err, out)
	}
	return nil
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NewRebooter returns the rebooter for mode (exec, exit or system).
func NewRebooter(mode string, log *logger.Logger) (Rebooter, error) {
	if log == nil {
		log = logger.Nop()
	}
	switch mode {
	case config.RebootExec:
		return ExecRebooter{exec: execSelf, log: log}, nil
	case config.RebootExit:
		return ExitRebooter{log: log}, nil
	case config.RebootSystem:
		return SystemRebooter{run: runCombined, log: log}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownRebootMode, mode)
	}
}
