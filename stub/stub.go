// Package stub implements a minimal MQTT-style UDP peer for exercising a device's
// networking stack through the bridge.
//
// The server answers every CONNECT packet with a fixed CONNACK (session not present,
// connection accepted) and logs any other packet it receives. It does not keep sessions.
package stub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/david-cermak/iot-conformance/logger"
)

const (
	DefaultAddr        = "127.0.0.1:7777"
	DefaultBufferSize  = 4096
	DefaultPollTimeout = 500 * time.Millisecond
)

// PacketConnect is the first byte of an MQTT CONNECT with the flag bits cleared.
const PacketConnect byte = packets.Connect << 4

// ConnackAccepted is the reply to every CONNECT: session not present, connection accepted.
var ConnackAccepted = encodeConnack(packets.Accepted)

func encodeConnack(code byte) []byte {
	ack, _ := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	ack.ReturnCode = code

	var buf bytes.Buffer
	if err := ack.Write(&buf); err != nil {
		panic(err)
	}

	return buf.Bytes()
}

// describe returns log fields for pkt. Malformed packets are only named by type.
func describe(pkt []byte) []any {
	kind := pkt[0] >> 4
	name, ok := packets.PacketNames[kind]
	if !ok {
		name = fmt.Sprintf("0x%02x", pkt[0]&0xF0)
	}
	fields := []any{"type", name, "len", len(pkt)}

	remaining, headerLen, ok := remainingLength(pkt)
	if !ok || remaining > len(pkt)-headerLen {
		return append(fields, "malformed", true)
	}

	cp, err := packets.ReadPacket(bytes.NewReader(pkt))
	if err != nil {
		return append(fields, "malformed", true)
	}
	if conn, ok := cp.(*packets.ConnectPacket); ok {
		fields = append(fields, "client_id", conn.ClientIdentifier, "protocol", conn.ProtocolName)
	}

	return fields
}

// remainingLength decodes the variable length field that follows the first byte of pkt.
// It returns the length, the size of the fixed header and false when the field is
// truncated or longer than four bytes.
func remainingLength(pkt []byte) (int, int, bool) {
	length, shift := 0, 0
	for i := 1; i < len(pkt) && i <= 4; i++ {
		length |= int(pkt[i]&0x7f) << shift
		if pkt[i]&0x80 == 0 {
			return length, i + 1, true
		}
		shift += 7
	}

	return 0, 0, false
}

// Reply returns the response to pkt, or nil if pkt needs none.
func Reply(pkt []byte) []byte {
	if len(pkt) == 0 || pkt[0]&0xF0 != PacketConnect {
		return nil
	}

	return bytes.Clone(ConnackAccepted)
}

// PeerStats holds the packet counters of one remote address.
type PeerStats struct {
	Connects int64
	Others   int64
}

type peerCounters struct {
	connects *xsync.Counter
	others   *xsync.Counter
}

// Server is a UDP handshake server.
type Server struct {
	conn        net.PacketConn
	buf         []byte
	pollTimeout time.Duration
	logger      logger.Logger
	peers       *xsync.MapOf[string, *peerCounters]
}

// Option configures a Server.
type Option interface {
	apply(*Server) error
}

type optFunc func(*Server) error

func (f optFunc) apply(s *Server) error { return f(s) }

// WithBufferSize sets the receive buffer size. Longer datagrams are truncated.
func WithBufferSize(size int) Option {
	return optFunc(func(s *Server) error {
		if size < 1 || size > 65535 {
			return fmt.Errorf("stub: buffer size %d out of range [1, 65535]", size)
		}
		s.buf = make([]byte, size)

		return nil
	})
}

// WithPollTimeout sets how long one receive may block before the context is checked again.
func WithPollTimeout(d time.Duration) Option {
	return optFunc(func(s *Server) error {
		if d <= 0 {
			return errors.New("stub: poll timeout must be positive")
		}
		s.pollTimeout = d

		return nil
	})
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(s *Server) error {
		if l == nil {
			return errors.New("stub: logger must not be nil")
		}
		s.logger = l

		return nil
	})
}

// Listen binds a UDP socket on addr and returns a server ready to Serve.
func Listen(addr string, opts ...Option) (*Server, error) {
	s := &Server{
		pollTimeout: DefaultPollTimeout,
		logger:      logger.GetLogger(),
		peers:       xsync.NewMapOf[string, *peerCounters](),
	}
	for _, opt := range opts {
		if err := opt.apply(s); err != nil {
			return nil, err
		}
	}
	if s.buf == nil {
		s.buf = make([]byte, DefaultBufferSize)
	}

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("stub: listen %s: %w", addr, err)
	}
	s.conn = conn
	s.logger = s.logger.With("component", "udp-stub", "addr", conn.LocalAddr().String())

	return s, nil
}

// Addr returns the local address of the server socket.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve handles packets until ctx is done or the socket fails.
// It returns nil when ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("udp stub listening")

	for ctx.Err() == nil {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.pollTimeout)); err != nil {
			return fmt.Errorf("stub: set deadline: %w", err)
		}

		n, from, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if ctx.Err() != nil {
				break
			}

			return fmt.Errorf("stub: receive: %w", err)
		}
		if n == 0 {
			continue
		}

		s.handle(s.buf[:n], from)
	}

	return nil
}

func (s *Server) handle(pkt []byte, from net.Addr) {
	counters, _ := s.peers.LoadOrCompute(from.String(), func() *peerCounters {
		return &peerCounters{connects: xsync.NewCounter(), others: xsync.NewCounter()}
	})

	fields := append([]any{"from", from.String()}, describe(pkt)...)

	reply := Reply(pkt)
	if reply == nil {
		counters.others.Inc()
		s.logger.Info("unhandled packet", fields...)

		return
	}

	counters.connects.Inc()
	s.logger.Info("connect received", fields...)

	if _, err := s.conn.WriteTo(reply, from); err != nil {
		s.logger.Warn("connack send failed", "to", from.String(), "error", err)
		return
	}
	s.logger.Debug("connack sent", "to", from.String())
}

// Peers returns the packet counters of every address seen so far.
func (s *Server) Peers() map[string]PeerStats {
	out := make(map[string]PeerStats, s.peers.Size())
	s.peers.Range(func(addr string, c *peerCounters) bool {
		out[addr] = PeerStats{Connects: c.connects.Value(), Others: c.others.Value()}
		return true
	})

	return out
}

// Close closes the server socket. A running Serve returns soon after.
func (s *Server) Close() error {
	return s.conn.Close()
}
