package frame

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		desc   string
		line   string
		want   []byte
		wantOK bool
	}{
		{"marker with noise", "noise PacketOut:[deadbeef] trailing", []byte{0xde, 0xad, 0xbe, 0xef}, true},
		{"uppercase hex", "PacketOut:[DEADBEEF]\r\n", []byte{0xde, 0xad, 0xbe, 0xef}, true},
		{"mixed case hex", "PacketOut:[0aFf]", []byte{0x0a, 0xff}, true},
		{"no marker", "I (123) wifi: connected\n", nil, false},
		{"invalid hex", "PacketOut:[zz]", nil, false},
		{"odd hex digits", "PacketOut:[abc]", nil, false},
		{"empty marker", "PacketOut:[]", []byte{}, true},
		{"unterminated marker", "PacketOut:[dead", nil, false},
		{"case sensitive tag", "packetout:[dead]", nil, false},
		{"empty line", "", nil, false},
		{"first marker wins", "PacketOut:[01] PacketOut:[02]", []byte{0x01}, true},
		{"first marker odd drops the line", "PacketOut:[012] PacketOut:[02]", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			got, ok := Decode([]byte(tt.line))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_InvalidUTF8Dropped(t *testing.T) {
	line := []byte{0xff, 0xfe, 'P', 'a', 'c', 'k', 'e', 't', 'O', 'u', 't', ':', '[', 'c', 0xc3, 'a', 'f', 'e', ']', '\n'}

	got, ok := Decode(line)
	require.True(t, ok)
	assert.Equal(t, []byte{0xca, 0xfe}, got)
}

func TestDecode_BinaryNoise(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	buf := make([]byte, 512)
	for i := 0; i < 200; i++ {
		rnd.Read(buf)
		assert.NotPanics(t, func() { _, _ = Decode(buf) })
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte("00 01 ff\r"), Encode([]byte{0x00, 0x01, 0xff}))
	assert.Equal(t, []byte("\r"), Encode(nil))
	assert.Equal(t, []byte("\r"), Encode([]byte{}))
	assert.Equal(t, []byte("10\r"), Encode([]byte{0x10}))
}

func TestDecodeWire(t *testing.T) {
	got, err := DecodeWire([]byte("00 01 ff\r"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0xff}, got)

	got, err = DecodeWire([]byte("\r"))
	require.NoError(t, err)
	assert.Empty(t, got)

	for _, bad := range []string{"", "00 01", "0001\r", "00  01\r", "0g\r", "00 1\r", " 00\r"} {
		_, err := DecodeWire([]byte(bad))
		assert.ErrorIs(t, err, ErrInvalidWire, "line %q", bad)
	}
}

func TestWrap(t *testing.T) {
	assert.Equal(t, []byte("PacketOut:[deadbeef]\n"), Wrap([]byte{0xde, 0xad, 0xbe, 0xef}))
	assert.Equal(t, []byte("PacketOut:[]\n"), Wrap(nil))
}

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	sizes := []int{0, 1, 2, 3, 255, 256, 1024, 2047, 2048}
	for i := 0; i < 32; i++ {
		sizes = append(sizes, rnd.Intn(2049))
	}

	for _, n := range sizes {
		payload := make([]byte, n)
		rnd.Read(payload)

		wire, err := DecodeWire(Encode(payload))
		require.NoError(t, err)
		assert.Equal(t, payload, wire, "wire round trip, len=%d", n)

		decoded, ok := Decode(Wrap(payload))
		require.True(t, ok, "len=%d", n)
		assert.Equal(t, payload, decoded, "marker round trip, len=%d", n)
	}
}
