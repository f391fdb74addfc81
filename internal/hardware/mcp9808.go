package hardware

import (
	"context"
	"fmt"

	"github.com/reef-pi/rpi/i2c"
)

// MCP9808 register map.
const (
	mcp9808RegAmbient = 0x05
	mcp9808RegMfgID   = 0x06

	mcp9808ManufacturerID = 0x0054
)

// registerBus is the part of i2c.Bus the sensor needs.
type registerBus interface {
	ReadFromReg(addr, reg byte, value []byte) error
	Close() error
}

// MCP9808 reads a Microchip MCP9808 over I2C. Readings are in degrees Celsius.
type MCP9808 struct {
	bus     registerBus
	address byte
}

// OpenMCP9808 opens the default I2C bus and verifies the manufacturer id.
func OpenMCP9808(address byte) (*MCP9808, error) {
	bus, err := i2c.New()
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}
	m := newMCP9808(bus, address)
	if err := m.probe(); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return m, nil
}

func newMCP9808(bus registerBus, address byte) *MCP9808 {
	return &MCP9808{bus: bus, address: address}
}

func (m *MCP9808) probe() error {
	b := make([]byte, 2)
	if err := m.bus.ReadFromReg(m.address, mcp9808RegMfgID, b); err != nil {
		return fmt.Errorf("mcp9808: read manufacturer id: %w", err)
	}
	if id := uint16(b[0])<<8 | uint16(b[1]); id != mcp9808ManufacturerID {
		return fmt.Errorf("mcp9808: unexpected manufacturer id 0x%04X at 0x%02X", id, m.address)
	}
	return nil
}

// ReadTemperature reads the ambient temperature register.
func (m *MCP9808) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b := make([]byte, 2)
	if err := m.bus.ReadFromReg(m.address, mcp9808RegAmbient, b); err != nil {
		return 0, fmt.Errorf("mcp9808: read ambient: %w", err)
	}
	return mcp9808Celsius(b[0], b[1]), nil
}

// Close releases the bus.
func (m *MCP9808) Close() error {
	return m.bus.Close()
}

// mcp9808Celsius decodes the 13-bit two's complement reading; the top three
// bits of the upper byte are alert flags.
func mcp9808Celsius(upper, lower byte) float64 {
	upper &= 0x1f
	t := float64(upper&0x0f)*16 + float64(lower)/16
	if upper&0x10 != 0 {
		t -= 256
	}
	return t
}
