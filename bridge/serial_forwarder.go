package bridge

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/david-cermak/iot-conformance/frame"
	"github.com/david-cermak/iot-conformance/internal/pool"
	"github.com/david-cermak/iot-conformance/logger"
)

// SerialForwarder forwards PacketOut frames read from the device to a UDP destination.
type SerialForwarder struct {
	reader      *lineReader
	conn        net.PacketConn
	dst         net.Addr
	readBackoff time.Duration
	logger      logger.Logger
	metrics     *Metrics
	state       AtomicState
}

// NewSerialForwarder creates a forwarder reading lines from port and sending frames on conn to dst.
//
// conn is only used for sending; its lifetime is owned by the caller.
func NewSerialForwarder(port SerialPort, conn net.PacketConn, dst net.Addr, cfg *Config, metrics *Metrics) *SerialForwarder {
	return &SerialForwarder{
		reader:      newLineReader(port, MaxLineLength),
		conn:        conn,
		dst:         dst,
		readBackoff: cfg.readBackoff,
		logger:      cfg.logger.With("component", "serial-to-net"),
		metrics:     metrics,
	}
}

// State returns the forwarder state.
func (f *SerialForwarder) State() State {
	return f.state.Get()
}

// Forward performs one step: read at most one line and forward its frame, if any.
// Errors are absorbed; it always returns true.
func (f *SerialForwarder) Forward(ctx context.Context) bool {
	line, err := f.reader.ReadLine()
	if err != nil {
		if errors.Is(err, ErrLineTooLong) {
			f.metrics.SerialSkipCount.Inc()
			f.logger.Debug("discard unterminated serial data", "limit", MaxLineLength)

			return true
		}

		f.metrics.SerialReadErrCount.Inc()
		f.logger.Debug("serial read failed", "error", err)
		pool.Sleep(ctx, f.readBackoff)

		return true
	}

	if line == nil {
		return true
	}
	f.metrics.SerialLineCount.Inc()

	payload, ok := frame.Decode(line)
	if !ok {
		f.metrics.SerialSkipCount.Inc()
		return true
	}

	if _, err := f.conn.WriteTo(payload, f.dst); err != nil {
		f.metrics.NetSendErrCount.Inc()
		f.logger.Warn("udp send failed", "dst", f.dst.String(), "len", len(payload), "error", err)

		return true
	}

	f.metrics.NetSendCount.Inc()
	f.logger.Debug("frame forwarded to network", "dst", f.dst.String(), "len", len(payload))

	return true
}
