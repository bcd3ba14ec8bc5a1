package bridge

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// SerialPort abstracts the subset of go.bug.st/serial.Port used by the bridge.
//
// Read must return within the configured read timeout, returning (0, nil) when no data
// arrived. Read and Write are called from different goroutines but never concurrently
// with themselves.
type SerialPort interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

var _ SerialPort = (serial.Port)(nil)

// OpenSerial opens path in 8N1 mode at baudRate with the given read timeout.
func OpenSerial(path string, baudRate int, readTimeout time.Duration) (SerialPort, error) {
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if err := port.SetReadTimeout(readTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}

	return port, nil
}

// writeFull writes all of p to w, retrying short writes.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}

	return nil
}
