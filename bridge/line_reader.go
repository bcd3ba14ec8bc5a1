package bridge

import (
	"bytes"
	"io"

	"github.com/david-cermak/iot-conformance/frame"
)

const readChunkSize = 1024

// lineReader splits a timeout-bounded byte stream into terminated lines.
//
// Bytes of an unterminated line are kept across reads, so a frame split by a read timeout
// is still delivered whole. Pending bytes beyond maxLen without a terminator are dropped.
type lineReader struct {
	r       io.Reader
	pending []byte
	chunk   []byte
	maxLen  int
}

func newLineReader(r io.Reader, maxLen int) *lineReader {
	return &lineReader{
		r:      r,
		chunk:  make([]byte, readChunkSize),
		maxLen: maxLen,
	}
}

// ReadLine returns the next complete line including its terminator.
//
// It performs at most one Read on the underlying reader and returns (nil, nil) when no
// complete line is available yet. Lines already buffered are returned without reading.
func (lr *lineReader) ReadLine() ([]byte, error) {
	if line := lr.popLine(); line != nil {
		return line, nil
	}

	n, err := lr.r.Read(lr.chunk)
	if n > 0 {
		lr.pending = append(lr.pending, lr.chunk[:n]...)
	}

	if line := lr.popLine(); line != nil {
		return line, nil
	}

	if len(lr.pending) > lr.maxLen {
		lr.pending = lr.pending[:0]
		return nil, ErrLineTooLong
	}

	return nil, err
}

// Buffered returns the number of bytes waiting for a terminator or for the next ReadLine.
func (lr *lineReader) Buffered() int {
	return len(lr.pending)
}

func (lr *lineReader) popLine() []byte {
	idx := bytes.IndexByte(lr.pending, frame.DeviceLineTerminator)
	if idx < 0 {
		return nil
	}

	line := bytes.Clone(lr.pending[:idx+1])
	lr.pending = lr.pending[:copy(lr.pending, lr.pending[idx+1:])]

	return line
}
