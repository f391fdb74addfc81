// Package hardware holds the collaborator interfaces the controller drives and
// the concrete backends selected by configuration.
package hardware

import (
	"context"
	"errors"
)

// Relay names.
const (
	RelayHeater = "heater"
	RelayPump   = "pump"
	RelaySafety = "safety"
)

// Display geometry and blink cadences.
const (
	Digits              = 4
	PressurePosition    = 0
	TemperaturePosition = 2

	BlinkOff    = 0
	BlinkFast   = 1
	BlinkActive = 2
	BlinkSlow   = 3
)

// ErrUnknownRelay is returned for a relay name the backend has no output for.
var ErrUnknownRelay = errors.New("hardware: unknown relay")

// Sensor reads the water temperature.
type Sensor interface {
	ReadTemperature(ctx context.Context) (float64, error)
}

// Display is a 4-position numeric display with an explicit flush.
type Display interface {
	SetDigit(value, position int) error
	SetGlyph(pattern byte, position int) error
	SetBlinkRate(rate int) error
	Flush() error
}

// Relays drives named on/off outputs.
type Relays interface {
	SetRelay(name string, on bool) error
}

// Network associates the unit with the wireless network.
type Network interface {
	Associate(ctx context.Context, ssid, password string) error
	Connected(ctx context.Context) (bool, error)
}
