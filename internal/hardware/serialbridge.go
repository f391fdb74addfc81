package hardware

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

var (
	errSerialTimeout = errors.New("hardware: serial read timed out")
	errBridgeReply   = errors.New("hardware: bridge rejected command")
)

// SerialBridge talks to a microcontroller that owns the sensor, relays and
// display. Each request is one JSON line and is answered by one JSON line:
//
//	{"cmd":"read"}                                  -> {"ok":true,"temperature":21.5}
//	{"cmd":"relay","name":"pump","on":true}         -> {"ok":true}
//	{"cmd":"display","cells":[...],"blink":2}       -> {"ok":true}
//
// Temperatures are in degrees Celsius.
type SerialBridge struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader

	cells [Digits]bridgeCell
	blink int
}

type bridgeCell struct {
	Digit *int `json:"digit,omitempty"`
	Glyph *int `json:"glyph,omitempty"`
}

type bridgeRequest struct {
	Cmd   string       `json:"cmd"`
	Name  string       `json:"name,omitempty"`
	On    *bool        `json:"on,omitempty"`
	Cells []bridgeCell `json:"cells,omitempty"`
	Blink *int         `json:"blink,omitempty"`
}

type bridgeReply struct {
	OK          bool     `json:"ok"`
	Error       string   `json:"error,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// OpenSerialBridge opens the port at baud with the given read timeout.
func OpenSerialBridge(name string, baud int, timeout time.Duration) (*SerialBridge, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", name, err)
	}
	return newSerialBridge(port), nil
}

func newSerialBridge(port io.ReadWriteCloser) *SerialBridge {
	return &SerialBridge{
		port:   port,
		reader: bufio.NewReader(timeoutReader{port}),
	}
}

// timeoutReader turns the (0, nil) read a serial port returns on timeout into
// an error so line reads terminate.
type timeoutReader struct{ r io.Reader }

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil {
		return 0, errSerialTimeout
	}
	return n, err
}

func (b *SerialBridge) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	reply, err := b.roundTrip(bridgeRequest{Cmd: "read"})
	if err != nil {
		return 0, err
	}
	if reply.Temperature == nil {
		return 0, fmt.Errorf("%w: read reply carries no temperature", errBridgeReply)
	}
	return *reply.Temperature, nil
}

func (b *SerialBridge) SetRelay(name string, on bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.roundTrip(bridgeRequest{Cmd: "relay", Name: name, On: &on})
	return err
}

func (b *SerialBridge) SetDigit(value, position int) error {
	if position < 0 || position >= Digits {
		return fmt.Errorf("hardware: position %d out of range", position)
	}
	b.mu.Lock()
	b.cells[position] = bridgeCell{Digit: &value}
	b.mu.Unlock()
	return nil
}

func (b *SerialBridge) SetGlyph(pattern byte, position int) error {
	if position < 0 || position >= Digits {
		return fmt.Errorf("hardware: position %d out of range", position)
	}
	g := int(pattern)
	b.mu.Lock()
	b.cells[position] = bridgeCell{Glyph: &g}
	b.mu.Unlock()
	return nil
}

// SetBlinkRate is buffered and sent with the next Flush.
func (b *SerialBridge) SetBlinkRate(rate int) error {
	b.mu.Lock()
	b.blink = rate
	b.mu.Unlock()
	return nil
}

func (b *SerialBridge) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	blink := b.blink
	_, err := b.roundTrip(bridgeRequest{Cmd: "display", Cells: b.cells[:], Blink: &blink})
	return err
}

func (b *SerialBridge) Close() error {
	return b.port.Close()
}

// roundTrip must be called with b.mu held.
func (b *SerialBridge) roundTrip(req bridgeRequest) (bridgeReply, error) {
	var reply bridgeReply
	line, err := json.Marshal(req)
	if err != nil {
		return reply, fmt.Errorf("encode %s request: %w", req.Cmd, err)
	}
	if _, err := b.port.Write(append(line, '\n')); err != nil {
		return reply, fmt.Errorf("write %s request: %w", req.Cmd, err)
	}
	resp, err := b.reader.ReadString('\n')
	if err != nil {
		b.reader.Reset(timeoutReader{b.port})
		return reply, fmt.Errorf("read %s reply: %w", req.Cmd, err)
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &reply); err != nil {
		return reply, fmt.Errorf("decode %s reply %q: %w", req.Cmd, strings.TrimSpace(resp), err)
	}
	if !reply.OK {
		return reply, fmt.Errorf("%w: %s: %s", errBridgeReply, req.Cmd, reply.Error)
	}
	return reply, nil
}
