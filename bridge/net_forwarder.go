package bridge

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/david-cermak/iot-conformance/frame"
	"github.com/david-cermak/iot-conformance/internal/pool"
	"github.com/david-cermak/iot-conformance/logger"
)

// NetForwarder writes datagrams received on a UDP socket to the device as encoded lines.
type NetForwarder struct {
	port         SerialPort
	conn         net.PacketConn
	buf          []byte
	recvTimeout  time.Duration
	writeBackoff time.Duration
	logger       logger.Logger
	metrics      *Metrics
	state        AtomicState
}

// NewNetForwarder creates a forwarder receiving on conn and writing to port.
//
// The forwarder never closes conn; its lifetime is owned by the caller.
func NewNetForwarder(port SerialPort, conn net.PacketConn, cfg *Config, metrics *Metrics) *NetForwarder {
	return &NetForwarder{
		port:         port,
		conn:         conn,
		buf:          make([]byte, cfg.recvBufferSize),
		recvTimeout:  cfg.recvTimeout,
		writeBackoff: cfg.writeBackoff,
		logger:       cfg.logger.With("component", "net-to-serial"),
		metrics:      metrics,
	}
}

// State returns the forwarder state.
func (f *NetForwarder) State() State {
	return f.state.Get()
}

// Forward performs one step: wait at most one receive timeout for a datagram and write it
// to the device. It returns false only when the socket can no longer receive.
func (f *NetForwarder) Forward(ctx context.Context) bool {
	if err := f.conn.SetReadDeadline(time.Now().Add(f.recvTimeout)); err != nil {
		f.logStop(err)
		return false
	}

	n, addr, err := f.conn.ReadFrom(f.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return true
		}

		f.logStop(err)

		return false
	}
	f.metrics.NetRecvCount.Inc()

	line := frame.Encode(f.buf[:n])
	if err := writeFull(f.port, line); err != nil {
		f.metrics.SerialWriteErrCount.Inc()
		f.logger.Warn("serial write failed", "from", addr.String(), "len", n, "error", err)
		pool.Sleep(ctx, f.writeBackoff)

		return true
	}

	f.metrics.SerialWriteCount.Inc()
	f.logger.Debug("datagram forwarded to serial", "from", addr.String(), "len", n)

	return true
}

func (f *NetForwarder) logStop(err error) {
	if errors.Is(err, net.ErrClosed) {
		f.logger.Debug("udp socket closed")
		return
	}
	f.logger.Error("udp receive failed", "error", err)
}
