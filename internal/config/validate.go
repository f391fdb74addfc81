package config

import (
	"errors"
	"fmt"

	"water_heater/internal/logger"
)

// Backend and mode names.
const (
	SensorSimulator = "simulator"
	SensorOneWire   = "onewire"
	SensorMCP9808   = "mcp9808"
	SensorSerial    = "serial"

	RelaysSimulator = "simulator"
	RelaysGPIO      = "gpio"
	RelaysSerial    = "serial"

	DisplayLog    = "log"
	DisplaySerial = "serial"

	NetworkNone  = "none"
	NetworkNMCLI = "nmcli"

	RebootExec   = "exec"
	RebootExit   = "exit"
	RebootSystem = "system"

	UnitsCelsius    = "C"
	UnitsFahrenheit = "F"
)

var (
	errThresholds     = errors.New("config: thermostat.lower_temperature must not exceed upper_temperature")
	errResetInterval  = errors.New("config: thermostat.heater_reset_interval must be positive")
	errPrimingDelay   = errors.New("config: thermostat.priming_delay must not be negative")
	errStagnation     = errors.New("config: thermostat.stagnation_margin must not be negative")
	errTelemetry      = errors.New("config: telemetry.interval must be positive")
	errTick           = errors.New("config: osc.tick_interval and osc.poll_timeout must be positive")
	errConnect        = errors.New("config: network.connect_attempts and connect_poll_interval must be positive")
	errSettle         = errors.New("config: supervisor.settle_delay must not be negative")
	errJWTSecret      = errors.New("config: http.jwt_secret is required when http is enabled")
	errMQTTQoS        = errors.New("config: telemetry.mqtt.qos must be 0, 1 or 2")
	errSSID           = errors.New("config: network.ssid is required for nmcli mode")
	errSerialPort     = errors.New("config: hardware.serial.port is required by the serial backend")
	errRelayPins      = errors.New("config: hardware.relays.pins must map heater and pump")
	errDBPath         = errors.New("config: db.path is required")
	errRetention      = errors.New("config: db.retention must not be negative")
	errUnknownSetting = errors.New("config: unknown value")
)

// Validate checks cross-field constraints. Load calls it; callers building a
// Config by hand should too.
func (c *Config) Validate() error {
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("%w: log_level %q", errUnknownSetting, c.LogLevel)
	}

	t := c.Thermostat
	if t.LowerTemperature > t.UpperTemperature {
		return errThresholds
	}
	if t.HeaterResetInterval <= 0 {
		return errResetInterval
	}
	if t.PrimingDelay < 0 {
		return errPrimingDelay
	}
	if t.StagnationMargin < 0 {
		return errStagnation
	}

	if err := validPort("osc.port", c.OSC.Port); err != nil {
		return err
	}
	if err := validPort("osc.client_port", c.OSC.ClientPort); err != nil {
		return err
	}
	if c.OSC.TickInterval <= 0 || c.OSC.PollTimeout <= 0 {
		return errTick
	}
	if c.Telemetry.Interval <= 0 {
		return errTelemetry
	}
	if q := c.Telemetry.MQTT.QoS; q < 0 || q > 2 {
		return errMQTTQoS
	}

	if c.Network.ConnectAttempts <= 0 || c.Network.ConnectPollInterval <= 0 {
		return errConnect
	}
	switch c.Network.Mode {
	case NetworkNone:
	case NetworkNMCLI:
		if c.Network.SSID == "" {
			return errSSID
		}
	default:
		return fmt.Errorf("%w: network.mode %q", errUnknownSetting, c.Network.Mode)
	}

	if c.Supervisor.SettleDelay < 0 {
		return errSettle
	}
	switch c.Supervisor.RebootMode {
	case RebootExec, RebootExit, RebootSystem:
	default:
		return fmt.Errorf("%w: supervisor.reboot_mode %q", errUnknownSetting, c.Supervisor.RebootMode)
	}

	if err := c.Hardware.validate(); err != nil {
		return err
	}

	if c.HTTP.Enabled && c.HTTP.JWTSecret == "" {
		return errJWTSecret
	}
	if c.DB.Path == "" {
		return errDBPath
	}
	if c.DB.Retention < 0 {
		return errRetention
	}
	return nil
}

func (h HardwareConfig) validate() error {
	usesSerial := false

	switch h.Sensor.Driver {
	case SensorSimulator, SensorOneWire, SensorMCP9808:
	case SensorSerial:
		usesSerial = true
	default:
		return fmt.Errorf("%w: hardware.sensor.driver %q", errUnknownSetting, h.Sensor.Driver)
	}
	switch h.Sensor.Units {
	case UnitsCelsius, UnitsFahrenheit:
	default:
		return fmt.Errorf("%w: hardware.sensor.units %q", errUnknownSetting, h.Sensor.Units)
	}

	switch h.Relays.Driver {
	case RelaysSimulator:
	case RelaysGPIO:
		if _, ok := h.Relays.Pins["heater"]; !ok {
			return errRelayPins
		}
		if _, ok := h.Relays.Pins["pump"]; !ok {
			return errRelayPins
		}
	case RelaysSerial:
		usesSerial = true
	default:
		return fmt.Errorf("%w: hardware.relays.driver %q", errUnknownSetting, h.Relays.Driver)
	}

	switch h.Display.Driver {
	case DisplayLog:
	case DisplaySerial:
		usesSerial = true
	default:
		return fmt.Errorf("%w: hardware.display.driver %q", errUnknownSetting, h.Display.Driver)
	}

	if usesSerial && h.Serial.Port == "" {
		return errSerialPort
	}
	return nil
}

func validPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("config: %s %d out of range", name, port)
	}
	return nil
}
