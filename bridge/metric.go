package bridge

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Metrics contains the traffic counters of a bridge.
// Counters can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// SerialLineCount indicates the number of complete lines read from the device.
	SerialLineCount *xsync.Counter
	// SerialSkipCount indicates the number of lines without a usable PacketOut frame,
	// including discarded over-long lines.
	SerialSkipCount *xsync.Counter
	// SerialReadErrCount indicates the number of failed serial reads.
	SerialReadErrCount *xsync.Counter
	// NetSendCount indicates the number of frames sent as datagrams.
	NetSendCount *xsync.Counter
	// NetSendErrCount indicates the number of failed datagram sends.
	NetSendErrCount *xsync.Counter

	// NetRecvCount indicates the number of datagrams received.
	NetRecvCount *xsync.Counter
	// SerialWriteCount indicates the number of encoded lines written to the device.
	SerialWriteCount *xsync.Counter
	// SerialWriteErrCount indicates the number of failed serial writes.
	SerialWriteErrCount *xsync.Counter
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	SerialLines     int64
	SerialSkipped   int64
	SerialReadErrs  int64
	NetSent         int64
	NetSendErrs     int64
	NetReceived     int64
	SerialWritten   int64
	SerialWriteErrs int64
}

func newMetrics() *Metrics {
	return &Metrics{
		SerialLineCount:     xsync.NewCounter(),
		SerialSkipCount:     xsync.NewCounter(),
		SerialReadErrCount:  xsync.NewCounter(),
		NetSendCount:        xsync.NewCounter(),
		NetSendErrCount:     xsync.NewCounter(),
		NetRecvCount:        xsync.NewCounter(),
		SerialWriteCount:    xsync.NewCounter(),
		SerialWriteErrCount: xsync.NewCounter(),
	}
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		SerialLines:     m.SerialLineCount.Value(),
		SerialSkipped:   m.SerialSkipCount.Value(),
		SerialReadErrs:  m.SerialReadErrCount.Value(),
		NetSent:         m.NetSendCount.Value(),
		NetSendErrs:     m.NetSendErrCount.Value(),
		NetReceived:     m.NetRecvCount.Value(),
		SerialWritten:   m.SerialWriteCount.Value(),
		SerialWriteErrs: m.SerialWriteErrCount.Value(),
	}
}

// LogValues returns the snapshot as key-value pairs for structured logging.
func (s MetricsSnapshot) LogValues() []any {
	return []any{
		"serial_lines", s.SerialLines,
		"serial_skipped", s.SerialSkipped,
		"serial_read_errs", s.SerialReadErrs,
		"net_sent", s.NetSent,
		"net_send_errs", s.NetSendErrs,
		"net_received", s.NetReceived,
		"serial_written", s.SerialWritten,
		"serial_write_errs", s.SerialWriteErrs,
	}
}
