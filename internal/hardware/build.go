package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"

	"water_heater/internal/config"
	"water_heater/internal/logger"
)

// Devices is the set of backends selected by configuration.
type Devices struct {
	Sensor  Sensor
	Relays  Relays
	Display Display
	Network Network

	closers []io.Closer
}

// Close releases every opened backend.
func (d *Devices) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Fahrenheit converts a Celsius sensor to Fahrenheit.
type Fahrenheit struct {
	Sensor Sensor
}

func (f Fahrenheit) ReadTemperature(ctx context.Context) (float64, error) {
	c, err := f.Sensor.ReadTemperature(ctx)
	if err != nil {
		return 0, err
	}
	return c*9/5 + 32, nil
}

// Build opens the configured backends. On error everything opened so far is
// closed again.
func Build(hw config.HardwareConfig, netCfg config.NetworkConfig, log *logger.Logger) (*Devices, error) {
	d := &Devices{}
	var bridge *SerialBridge
	openBridge := func() (*SerialBridge, error) {
		if bridge != nil {
			return bridge, nil
		}
		b, err := OpenSerialBridge(hw.Serial.Port, hw.Serial.Baud, hw.Serial.Timeout)
		if err != nil {
			return nil, err
		}
		bridge = b
		d.closers = append(d.closers, b)
		return b, nil
	}
	fail := func(err error) (*Devices, error) {
		_ = d.Close()
		return nil, err
	}

	var sim *Simulator
	if hw.Sensor.Driver == config.SensorSimulator || hw.Relays.Driver == config.RelaysSimulator {
		p := hw.Simulator
		sim = NewSimulator(SimulatorParams{
			Ambient:     p.Ambient,
			Initial:     p.Initial,
			HeatRate:    p.HeatRate,
			LossRate:    p.LossRate,
			Speed:       p.Speed,
			HeaterFault: p.HeaterFault,
		})
	}

	switch hw.Sensor.Driver {
	case config.SensorSimulator:
		d.Sensor = sim
	case config.SensorOneWire:
		ow, err := NewOneWire(hw.Sensor.OneWireDir, hw.Sensor.DeviceID)
		if err != nil {
			return fail(err)
		}
		d.Sensor = ow
	case config.SensorMCP9808:
		m, err := OpenMCP9808(byte(hw.Sensor.I2CAddress))
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, m)
		d.Sensor = m
	case config.SensorSerial:
		b, err := openBridge()
		if err != nil {
			return fail(err)
		}
		d.Sensor = b
	default:
		return fail(fmt.Errorf("hardware: unknown sensor driver %q", hw.Sensor.Driver))
	}
	// Physical sensors report Celsius; the simulator models the configured unit.
	if hw.Sensor.Driver != config.SensorSimulator && hw.Sensor.Units == config.UnitsFahrenheit {
		d.Sensor = Fahrenheit{Sensor: d.Sensor}
	}

	switch hw.Relays.Driver {
	case config.RelaysSimulator:
		d.Relays = sim
	case config.RelaysGPIO:
		r, err := OpenGPIORelays(hw.Relays.Chip, hw.Relays.Pins, hw.Relays.ActiveLow)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, r)
		d.Relays = r
	case config.RelaysSerial:
		b, err := openBridge()
		if err != nil {
			return fail(err)
		}
		d.Relays = b
	default:
		return fail(fmt.Errorf("hardware: unknown relays driver %q", hw.Relays.Driver))
	}

	switch hw.Display.Driver {
	case config.DisplayLog:
		d.Display = NewLogDisplay(log.Named("display"))
	case config.DisplaySerial:
		b, err := openBridge()
		if err != nil {
			return fail(err)
		}
		d.Display = b
	default:
		return fail(fmt.Errorf("hardware: unknown display driver %q", hw.Display.Driver))
	}

	switch netCfg.Mode {
	case config.NetworkNMCLI:
		d.Network = NewNMCLI()
	default:
		d.Network = StaticNetwork{}
	}

	log.Infow("hardware_ready",
		"sensor", hw.Sensor.Driver,
		"units", hw.Sensor.Units,
		"relays", hw.Relays.Driver,
		"display", hw.Display.Driver,
		"network", netCfg.Mode,
	)
	return d, nil
}
