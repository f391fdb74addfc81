package hardware

import (
	"fmt"
	"strings"
	"sync"

	"water_heater/internal/logger"
)

// LogDisplay renders the display buffer to the log on every flush. It stands
// in for the physical display on development hosts.
type LogDisplay struct {
	mu    sync.Mutex
	log   *logger.Logger
	cells [Digits]string
	blink int
	shown string
}

// NewLogDisplay returns a blank log display.
func NewLogDisplay(log *logger.Logger) *LogDisplay {
	d := &LogDisplay{log: log}
	for i := range d.cells {
		d.cells[i] = " "
	}
	return d
}

func (d *LogDisplay) SetDigit(value, position int) error {
	if value < 0 || value > 9 {
		return fmt.Errorf("hardware: digit value %d out of range", value)
	}
	return d.set(position, fmt.Sprintf("%d", value))
}

func (d *LogDisplay) SetGlyph(pattern byte, position int) error {
	return d.set(position, glyphRune(pattern))
}

func (d *LogDisplay) SetBlinkRate(rate int) error {
	if rate < BlinkOff || rate > BlinkSlow {
		return fmt.Errorf("hardware: blink rate %d out of range", rate)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.blink != rate {
		d.log.Debugw("display_blink", "rate", rate)
	}
	d.blink = rate
	return nil
}

// Flush logs the buffer when it differs from what was last shown.
func (d *LogDisplay) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	text := strings.Join(d.cells[:], "")
	if text != d.shown {
		d.log.Debugw("display", "text", text, "blink", d.blink)
		d.shown = text
	}
	return nil
}

// Text returns the last flushed contents.
func (d *LogDisplay) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shown
}

func (d *LogDisplay) set(position int, s string) error {
	if position < 0 || position >= Digits {
		return fmt.Errorf("hardware: position %d out of range", position)
	}
	d.mu.Lock()
	d.cells[position] = s
	d.mu.Unlock()
	return nil
}

// glyphRune approximates a single lit segment with an ASCII character.
func glyphRune(pattern byte) string {
	switch pattern {
	case 0x01:
		return "‾"
	case 0x02, 0x04, 0x10, 0x20:
		return "|"
	case 0x08:
		return "_"
	case ReadyGlyph:
		return "-"
	case 0:
		return " "
	default:
		return "*"
	}
}
