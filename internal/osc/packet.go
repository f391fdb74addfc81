// Package osc implements the subset of Open Sound Control 1.0 the controller
// speaks on the wire: messages and (nested) bundles over UDP.
package osc

import "time"

// MaxDatagramSize is the largest packet read or written, sized to fit an
// unfragmented Ethernet UDP payload.
const MaxDatagramSize = 1472

// DefaultPort is the conventional OSC port used for both directions.
const DefaultPort = 8888

const (
	bundleTag      = "#bundle"
	maxBundleDepth = 16
	ntpEpochOffset = 2208988800 // seconds between 1900-01-01 and 1970-01-01
)

// TimeTag is a 64-bit NTP timestamp: seconds since 1900 in the high word and
// the binary fraction of a second in the low word.
type TimeTag uint64

// Immediate is the special timetag meaning "process now".
const Immediate TimeTag = 1

// NewTimeTag converts t to a timetag.
func NewTimeTag(t time.Time) TimeTag {
	secs := uint64(t.Unix() + ntpEpochOffset)
	frac := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return TimeTag(secs<<32 | frac)
}

// Time converts the timetag back to wall time. Immediate maps to the zero time.
func (t TimeTag) Time() time.Time {
	if t == Immediate {
		return time.Time{}
	}
	secs := int64(uint64(t)>>32) - ntpEpochOffset
	nanos := (uint64(t) & 0xffffffff) * uint64(time.Second) >> 32
	return time.Unix(secs, int64(nanos)).UTC()
}

// Packet is either a *Message or a *Bundle.
type Packet interface {
	packet()
}

// Message is a single OSC message. Tags holds the raw type tag string
// including the leading comma; it is empty for messages sent without one.
type Message struct {
	Address string
	Tags    string
	Args    []any
	// TimeTag is inherited from the enclosing bundle, Immediate otherwise.
	TimeTag TimeTag
}

// Bundle groups packets under one timetag. Elements may be nested bundles.
type Bundle struct {
	TimeTag  TimeTag
	Elements []Packet
}

func (*Message) packet() {}
func (*Bundle) packet()  {}

// Messages flattens p depth first, preserving element order.
func Messages(p Packet) []*Message {
	switch v := p.(type) {
	case *Message:
		return []*Message{v}
	case *Bundle:
		var out []*Message
		for _, el := range v.Elements {
			out = append(out, Messages(el)...)
		}
		return out
	}
	return nil
}

// Number extracts a numeric argument as float64.
func Number(arg any) (float64, bool) {
	switch v := arg.(type) {
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func align4(n int) int {
	return (n + 3) &^ 3
}
