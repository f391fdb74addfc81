package hardware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	errNoOneWireDevice = errors.New("hardware: no DS18B20 device found")
	errOneWireCRC      = errors.New("hardware: DS18B20 CRC check failed")
	errOneWireFormat   = errors.New("hardware: unexpected w1_slave format")
)

// OneWire reads a DS18B20 through the kernel w1-therm driver. Readings are in
// degrees Celsius.
type OneWire struct {
	path string
}

// NewOneWire locates the device under dir. An empty id picks the first
// DS18B20 (family code 28) present.
func NewOneWire(dir, id string) (*OneWire, error) {
	if id == "" {
		matches, err := filepath.Glob(filepath.Join(dir, "28-*"))
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", dir, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w under %s", errNoOneWireDevice, dir)
		}
		return &OneWire{path: filepath.Join(matches[0], "w1_slave")}, nil
	}
	path := filepath.Join(dir, id, "w1_slave")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", errNoOneWireDevice, err)
	}
	return &OneWire{path: path}, nil
}

// ReadTemperature triggers a conversion (the driver blocks for up to 750ms)
// and parses the result.
func (o *OneWire) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(o.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", o.path, err)
	}
	return parseW1Slave(string(data))
}

// parseW1Slave parses the two-line w1_slave format:
//
//	4b 01 4b 46 7f ff 05 10 e1 : crc=e1 YES
//	4b 01 4b 46 7f ff 05 10 e1 t=20687
func parseW1Slave(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, errOneWireFormat
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, errOneWireCRC
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, errOneWireFormat
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errOneWireFormat, err)
	}
	return float64(milli) / 1000, nil
}
