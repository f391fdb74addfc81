package osc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrPacketTooLarge is returned when an encoded packet exceeds MaxDatagramSize.
	ErrPacketTooLarge = errors.New("osc: packet exceeds maximum datagram size")

	errInvalidAddress = errors.New("osc: address must start with '/' and contain no NUL")
	errInvalidString  = errors.New("osc: string argument contains NUL")
	errInvalidElement = errors.New("osc: bundle element must be a non-empty 4-byte aligned packet")
)

// Encode builds a message datagram. Supported argument types are int32, int64,
// float32, float64, string, []byte, bool, nil and TimeTag; a plain int is
// written as int32 when it fits and as int64 otherwise.
func Encode(address string, args ...any) ([]byte, error) {
	if !strings.HasPrefix(address, "/") || strings.IndexByte(address, 0) >= 0 {
		return nil, fmt.Errorf("%w: %q", errInvalidAddress, address)
	}

	tags := make([]byte, 1, len(args)+1)
	tags[0] = ','
	var payload []byte
	for i, arg := range args {
		switch v := arg.(type) {
		case int32:
			tags = append(tags, 'i')
			payload = binary.BigEndian.AppendUint32(payload, uint32(v))
		case int:
			if v >= math.MinInt32 && v <= math.MaxInt32 {
				tags = append(tags, 'i')
				payload = binary.BigEndian.AppendUint32(payload, uint32(int32(v)))
			} else {
				tags = append(tags, 'h')
				payload = binary.BigEndian.AppendUint64(payload, uint64(int64(v)))
			}
		case int64:
			tags = append(tags, 'h')
			payload = binary.BigEndian.AppendUint64(payload, uint64(v))
		case float32:
			tags = append(tags, 'f')
			payload = binary.BigEndian.AppendUint32(payload, math.Float32bits(v))
		case float64:
			tags = append(tags, 'd')
			payload = binary.BigEndian.AppendUint64(payload, math.Float64bits(v))
		case TimeTag:
			tags = append(tags, 't')
			payload = binary.BigEndian.AppendUint64(payload, uint64(v))
		case string:
			if strings.IndexByte(v, 0) >= 0 {
				return nil, fmt.Errorf("argument %d: %w", i, errInvalidString)
			}
			tags = append(tags, 's')
			payload = appendString(payload, v)
		case []byte:
			tags = append(tags, 'b')
			payload = binary.BigEndian.AppendUint32(payload, uint32(len(v)))
			payload = append(payload, v...)
			payload = pad(payload)
		case bool:
			if v {
				tags = append(tags, 'T')
			} else {
				tags = append(tags, 'F')
			}
		case nil:
			tags = append(tags, 'N')
		default:
			return nil, fmt.Errorf("osc: argument %d has unsupported type %T", i, arg)
		}
	}

	buf := appendString(nil, address)
	buf = appendString(buf, string(tags))
	buf = append(buf, payload...)
	if len(buf) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(buf))
	}
	return buf, nil
}

// EncodeBundle wraps already encoded packets (messages or bundles) into a
// bundle datagram.
func EncodeBundle(tt TimeTag, elements ...[]byte) ([]byte, error) {
	buf := appendString(nil, bundleTag)
	buf = binary.BigEndian.AppendUint64(buf, uint64(tt))
	for i, el := range elements {
		if len(el) == 0 || len(el)%4 != 0 {
			return nil, fmt.Errorf("element %d: %w", i, errInvalidElement)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(el)))
		buf = append(buf, el...)
	}
	if len(buf) > MaxDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(buf))
	}
	return buf, nil
}

func appendString(buf []byte, s string) []byte {
	buf = append(buf, s...)
	buf = append(buf, 0)
	return pad(buf)
}

func pad(buf []byte) []byte {
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}
