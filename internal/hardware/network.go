package hardware

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// StaticNetwork is used when the host network is managed outside the
// controller (wired Ethernet, systemd-networkd). It always reports connected.
type StaticNetwork struct{}

func (StaticNetwork) Associate(context.Context, string, string) error { return nil }

func (StaticNetwork) Connected(context.Context) (bool, error) { return true, nil }

// commandRunner runs an external command and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// NMCLI associates through NetworkManager's command line client.
type NMCLI struct {
	run commandRunner
}

// NewNMCLI returns an associator backed by the nmcli binary.
func NewNMCLI() *NMCLI {
	return &NMCLI{run: execRunner}
}

// Associate asks NetworkManager to join ssid. It returns once the request is
// accepted; Connected reports when the link is actually usable.
func (n *NMCLI) Associate(ctx context.Context, ssid, password string) error {
	args := []string{"--wait", "0", "device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}
	out, err := n.run(ctx, "nmcli", args...)
	if err != nil {
		return fmt.Errorf("nmcli connect %q: %w: %s", ssid, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Connected reports whether NetworkManager has full connectivity.
func (n *NMCLI) Connected(ctx context.Context) (bool, error) {
	out, err := n.run(ctx, "nmcli", "-t", "-f", "STATE", "general")
	if err != nil {
		return false, fmt.Errorf("nmcli general: %w", err)
	}
	return strings.TrimSpace(string(out)) == "connected", nil
}
