package hardware

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

const gpioConsumer = "water-heater"

type outputLine interface {
	SetValue(value int) error
	Close() error
}

// GPIORelays drives relays from GPIO lines through the character device API.
type GPIORelays struct {
	mu    sync.Mutex
	lines map[string]outputLine
}

// OpenGPIORelays requests one output line per entry in pins, all initially
// off. A relay missing from pins is reported as ErrUnknownRelay on use.
func OpenGPIORelays(chip string, pins map[string]int, activeLow bool) (*GPIORelays, error) {
	names := make([]string, 0, len(pins))
	for name := range pins {
		names = append(names, name)
	}
	sort.Strings(names)

	r := &GPIORelays{lines: make(map[string]outputLine, len(pins))}
	for _, name := range names {
		opts := []gpiocdev.LineReqOption{
			gpiocdev.WithConsumer(gpioConsumer),
			gpiocdev.AsOutput(0),
		}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := gpiocdev.RequestLine(chip, pins[name], opts...)
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("request %s line %d on %s: %w", name, pins[name], chip, err)
		}
		r.lines[name] = line
	}
	return r, nil
}

func (r *GPIORelays) SetRelay(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRelay, name)
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set %s=%d: %w", name, v, err)
	}
	return nil
}

// Close drives every line low and releases it.
func (r *GPIORelays) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, line := range r.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	r.lines = nil
	return errors.Join(errs...)
}
