package osc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedPacket is wrapped by every Decode failure.
var ErrMalformedPacket = errors.New("osc: malformed packet")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPacket, fmt.Sprintf(format, args...))
}

// Decode parses one datagram. It never panics; any structural problem is
// reported as an error wrapping ErrMalformedPacket and nothing is returned.
func Decode(data []byte) (Packet, error) {
	return decode(data, 0)
}

func decode(data []byte, depth int) (Packet, error) {
	if len(data) == 0 {
		return nil, malformed("empty packet")
	}
	head, _, err := readString(data, 0)
	if err != nil {
		return nil, err
	}
	switch {
	case head == bundleTag:
		return decodeBundle(data, depth)
	case strings.HasPrefix(head, "/"):
		return decodeMessage(data)
	default:
		return nil, malformed("unexpected leading string %q", head)
	}
}

func decodeMessage(data []byte) (*Message, error) {
	addr, off, err := readString(data, 0)
	if err != nil {
		return nil, err
	}
	msg := &Message{Address: addr, TimeTag: Immediate}
	if off == len(data) {
		return msg, nil
	}

	tags, off, err := readString(data, off)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(tags, ",") {
		return nil, malformed("type tag string %q lacks leading comma", tags)
	}
	msg.Tags = tags

	msg.Args = make([]any, 0, len(tags)-1)
	for i := 1; i < len(tags); i++ {
		var arg any
		arg, off, err = readArg(data, off, tags[i])
		if err != nil {
			return nil, err
		}
		msg.Args = append(msg.Args, arg)
	}
	if off != len(data) {
		return nil, malformed("%d bytes left after %d arguments", len(data)-off, len(msg.Args))
	}
	return msg, nil
}

func decodeBundle(data []byte, depth int) (*Bundle, error) {
	if depth >= maxBundleDepth {
		return nil, malformed("bundle nesting deeper than %d", maxBundleDepth)
	}
	const header = len(bundleTag) + 1 + 8
	if len(data) < header {
		return nil, malformed("bundle header truncated at %d bytes", len(data))
	}
	b := &Bundle{TimeTag: TimeTag(binary.BigEndian.Uint64(data[header-8 : header]))}

	off := header
	for off < len(data) {
		if off+4 > len(data) {
			return nil, malformed("bundle element size truncated at offset %d", off)
		}
		size := int64(int32(binary.BigEndian.Uint32(data[off:])))
		if size <= 0 || size%4 != 0 {
			return nil, malformed("bundle element size %d at offset %d", size, off)
		}
		start := off + 4
		end := int64(start) + size
		if end > int64(len(data)) {
			return nil, malformed("bundle element of %d bytes exceeds packet", size)
		}
		el, err := decode(data[start:end], depth+1)
		if err != nil {
			return nil, fmt.Errorf("bundle element %d: %w", len(b.Elements), err)
		}
		if m, ok := el.(*Message); ok {
			m.TimeTag = b.TimeTag
		}
		b.Elements = append(b.Elements, el)
		off = int(end)
	}
	return b, nil
}

// readString reads a NUL terminated, 4-byte padded string at off and returns
// the offset just past its padding.
func readString(data []byte, off int) (string, int, error) {
	if off >= len(data) {
		return "", 0, malformed("string at offset %d past end", off)
	}
	n := bytes.IndexByte(data[off:], 0)
	if n < 0 {
		return "", 0, malformed("unterminated string at offset %d", off)
	}
	next := align4(off + n + 1)
	if next > len(data) {
		return "", 0, malformed("string padding at offset %d runs past end", off)
	}
	return string(data[off : off+n]), next, nil
}

func need(data []byte, off, n int, tag byte) error {
	if off+n > len(data) {
		return malformed("argument %q truncated at offset %d", tag, off)
	}
	return nil
}

func readArg(data []byte, off int, tag byte) (any, int, error) {
	switch tag {
	case 'i':
		if err := need(data, off, 4, tag); err != nil {
			return nil, 0, err
		}
		return int32(binary.BigEndian.Uint32(data[off:])), off + 4, nil
	case 'f':
		if err := need(data, off, 4, tag); err != nil {
			return nil, 0, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data[off:])), off + 4, nil
	case 'h':
		if err := need(data, off, 8, tag); err != nil {
			return nil, 0, err
		}
		return int64(binary.BigEndian.Uint64(data[off:])), off + 8, nil
	case 'd':
		if err := need(data, off, 8, tag); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data[off:])), off + 8, nil
	case 't':
		if err := need(data, off, 8, tag); err != nil {
			return nil, 0, err
		}
		return TimeTag(binary.BigEndian.Uint64(data[off:])), off + 8, nil
	case 's', 'S':
		s, next, err := readString(data, off)
		if err != nil {
			return nil, 0, err
		}
		return s, next, nil
	case 'b':
		if err := need(data, off, 4, tag); err != nil {
			return nil, 0, err
		}
		size := int64(int32(binary.BigEndian.Uint32(data[off:])))
		start := off + 4
		if size < 0 || int64(start)+size > int64(len(data)) {
			return nil, 0, malformed("blob of %d bytes at offset %d exceeds packet", size, off)
		}
		end := start + int(size)
		next := align4(end)
		if next > len(data) {
			return nil, 0, malformed("blob padding at offset %d runs past end", off)
		}
		blob := make([]byte, size)
		copy(blob, data[start:end])
		return blob, next, nil
	case 'T':
		return true, off, nil
	case 'F':
		return false, off, nil
	case 'N':
		return nil, off, nil
	default:
		return nil, 0, malformed("unsupported type tag %q", tag)
	}
}
