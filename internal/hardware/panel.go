package hardware

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Segment patterns shown while connecting and once the network is up.
var progressGlyphs = [...]byte{0x01, 0x02, 0x04, 0x08, 0x10, 0x20}

// ReadyGlyph lights the middle segment on every digit.
const ReadyGlyph byte = 0x40

// Panel serializes multi-step writes to a Display. The broadcaster renders
// temperature while the OSC server renders pressure, so each render and its
// flush run under one lock.
type Panel struct {
	mu sync.Mutex
	d  Display
}

// NewPanel wraps d.
func NewPanel(d Display) *Panel {
	return &Panel{d: d}
}

// BCD packs a reading into one byte, one decimal digit per nibble. Values
// outside 0..99, NaN and infinities render as 00. Fractions are truncated
// toward zero.
func BCD(value float64) byte {
	if math.IsNaN(value) || value < 0 || value >= 100 {
		return 0
	}
	v := int(value)
	return byte(v/10)<<4 | byte(v%10)
}

// ShowPair renders value on the two digits starting at position and flushes.
func (p *Panel) ShowPair(value float64, position int) error {
	if position < 0 || position+1 >= Digits {
		return fmt.Errorf("hardware: digit pair at %d out of range", position)
	}
	bcd := BCD(value)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.d.SetDigit(int(bcd>>4), position); err != nil {
		return fmt.Errorf("set digit %d: %w", position, err)
	}
	if err := p.d.SetDigit(int(bcd&0x0f), position+1); err != nil {
		return fmt.Errorf("set digit %d: %w", position+1, err)
	}
	if err := p.d.Flush(); err != nil {
		return fmt.Errorf("flush display: %w", err)
	}
	return nil
}

// SetBlinkRate changes the blink cadence.
func (p *Panel) SetBlinkRate(rate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.d.SetBlinkRate(rate); err != nil {
		return fmt.Errorf("set blink rate %d: %w", rate, err)
	}
	return nil
}

// Fill shows pattern on every digit and flushes.
func (p *Panel) Fill(pattern byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for pos := 0; pos < Digits; pos++ {
		if err := p.d.SetGlyph(pattern, pos); err != nil {
			errs = append(errs, fmt.Errorf("set glyph %d: %w", pos, err))
		}
	}
	if err := p.d.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush display: %w", err))
	}
	return errors.Join(errs...)
}

// Progress shows frame step of the rotating-segment startup animation.
func (p *Panel) Progress(step int) error {
	if step < 0 {
		step = -step
	}
	return p.Fill(progressGlyphs[step%len(progressGlyphs)])
}
