package frame

import (
	"bytes"
	"encoding/hex"
	"errors"
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	// LineTerminator ends an encoded line written to the device.
	LineTerminator byte = '\r'
	// DeviceLineTerminator ends a line read from the device.
	DeviceLineTerminator byte = '\n'

	markerPrefix = "PacketOut:["
	markerSuffix = "]"
)

// ErrInvalidWire indicates that a line is not in the encoded serial wire format.
var ErrInvalidWire = errors.New("frame: invalid wire line")

var markerPattern = regexp.MustCompile(`PacketOut:\[([0-9a-fA-F]*)\]`)

// dropInvalid removes byte sequences that are not valid UTF-8.
var dropInvalid = runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError }))

// Decode extracts the payload of the first PacketOut marker in line.
//
// Bytes that do not form valid UTF-8 are dropped before the marker is searched, so device
// log noise around a frame is tolerated. It returns false when the line carries no marker
// or when the marker's hex digits do not decode (odd count). An empty marker yields an
// empty payload.
func Decode(line []byte) ([]byte, bool) {
	text, _, err := transform.Bytes(dropInvalid, line)
	if err != nil {
		return nil, false
	}

	m := markerPattern.FindSubmatch(bytes.TrimSpace(text))
	if m == nil {
		return nil, false
	}

	payload := make([]byte, hex.DecodedLen(len(m[1])))
	if _, err := hex.Decode(payload, m[1]); err != nil {
		return nil, false
	}

	return payload, true
}

// Encode renders payload in the serial wire format: lowercase hex byte pairs separated by a
// single space and terminated by LineTerminator. An empty payload encodes to the terminator alone.
func Encode(payload []byte) []byte {
	if len(payload) == 0 {
		return []byte{LineTerminator}
	}

	out := make([]byte, 0, len(payload)*3)
	for i, b := range payload {
		if i > 0 {
			out = append(out, ' ')
		}
		out = hex.AppendEncode(out, []byte{b})
	}

	return append(out, LineTerminator)
}

// DecodeWire parses a line produced by Encode back into its payload.
//
// It is strict: the line must end with LineTerminator and contain only lowercase or
// uppercase hex byte pairs separated by single spaces.
func DecodeWire(line []byte) ([]byte, error) {
	if len(line) == 0 || line[len(line)-1] != LineTerminator {
		return nil, ErrInvalidWire
	}

	body := line[:len(line)-1]
	if len(body) == 0 {
		return []byte{}, nil
	}
	if (len(body)+1)%3 != 0 {
		return nil, ErrInvalidWire
	}

	payload := make([]byte, (len(body)+1)/3)
	for i := range payload {
		pos := i * 3
		if i > 0 && body[pos-1] != ' ' {
			return nil, ErrInvalidWire
		}
		if _, err := hex.Decode(payload[i:i+1], body[pos:pos+2]); err != nil {
			return nil, ErrInvalidWire
		}
	}

	return payload, nil
}

// Wrap builds the device side line carrying payload inside a PacketOut marker,
// terminated by DeviceLineTerminator.
func Wrap(payload []byte) []byte {
	out := make([]byte, 0, len(markerPrefix)+hex.EncodedLen(len(payload))+len(markerSuffix)+1)
	out = append(out, markerPrefix...)
	out = hex.AppendEncode(out, payload)
	out = append(out, markerSuffix...)

	return append(out, DeviceLineTerminator)
}
