package bridge

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/david-cermak/iot-conformance/logger"
)

// Default configuration values.
const (
	DefaultBaudRate   = 115200
	DefaultBindAddr   = "0.0.0.0"
	DefaultListenPort = 7771
	DefaultDestAddr   = "127.0.0.1"
	DefaultDestPort   = 7777

	DefaultSerialReadTimeout = 200 * time.Millisecond // bounds one serial read
	DefaultRecvTimeout       = 500 * time.Millisecond // bounds one UDP receive
	DefaultReadBackoff       = 100 * time.Millisecond // pause after a serial read error
	DefaultWriteBackoff      = 50 * time.Millisecond  // pause after a serial write error
	DefaultStopTimeout       = time.Second            // per forwarder, on shutdown

	DefaultRecvBufferSize = 2048
)

// Configuration limits.
const (
	MinPollTimeout = 10 * time.Millisecond
	MaxPollTimeout = 5 * time.Second

	MaxBackoff = 5 * time.Second

	MaxRecvBufferSize = 65535

	// MaxLineLength is the longest partial device line kept while waiting for its terminator.
	MaxLineLength = 64 * 1024
)

// SerialOpener opens the serial port at path. The returned port must bound every Read
// by readTimeout.
type SerialOpener func(path string, baudRate int, readTimeout time.Duration) (SerialPort, error)

// Config holds the immutable configuration of a Bridge.
type Config struct {
	serialPort string
	baudRate   int

	// UDP endpoint receiving datagrams for the device.
	bindAddr   string
	listenPort int

	// UDP endpoint receiving frames emitted by the device.
	destAddr string
	destPort int

	serialReadTimeout time.Duration
	recvTimeout       time.Duration
	readBackoff       time.Duration
	writeBackoff      time.Duration
	stopTimeout       time.Duration

	recvBufferSize int

	opener SerialOpener
	logger logger.Logger
}

// NewConfig creates a bridge configuration for the serial port at serialPort.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(serialPort string, opts ...ConfigOption) (*Config, error) {
	if strings.TrimSpace(serialPort) == "" {
		return nil, errors.New("bridge: serial port must not be empty")
	}

	cfg := &Config{
		serialPort:        serialPort,
		baudRate:          DefaultBaudRate,
		bindAddr:          DefaultBindAddr,
		listenPort:        DefaultListenPort,
		destAddr:          DefaultDestAddr,
		destPort:          DefaultDestPort,
		serialReadTimeout: DefaultSerialReadTimeout,
		recvTimeout:       DefaultRecvTimeout,
		readBackoff:       DefaultReadBackoff,
		writeBackoff:      DefaultWriteBackoff,
		stopTimeout:       DefaultStopTimeout,
		recvBufferSize:    DefaultRecvBufferSize,
		opener:            OpenSerial,
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// SerialPort returns the serial port path.
func (cfg *Config) SerialPort() string { return cfg.serialPort }

// BaudRate returns the serial baud rate.
func (cfg *Config) BaudRate() int { return cfg.baudRate }

// BindAddr returns the local address the UDP socket is bound to.
func (cfg *Config) BindAddr() string { return cfg.bindAddr }

// ListenPort returns the UDP port receiving datagrams for the device.
func (cfg *Config) ListenPort() int { return cfg.listenPort }

// ListenAddr returns "bindAddr:listenPort".
func (cfg *Config) ListenAddr() string {
	return net.JoinHostPort(cfg.bindAddr, strconv.Itoa(cfg.listenPort))
}

// DestAddr returns the address frames from the device are sent to.
func (cfg *Config) DestAddr() string { return cfg.destAddr }

// DestPort returns the port frames from the device are sent to.
func (cfg *Config) DestPort() int { return cfg.destPort }

// DestHostPort returns "destAddr:destPort".
func (cfg *Config) DestHostPort() string {
	return net.JoinHostPort(cfg.destAddr, strconv.Itoa(cfg.destPort))
}

// SerialReadTimeout returns the upper bound of a single serial read.
func (cfg *Config) SerialReadTimeout() time.Duration { return cfg.serialReadTimeout }

// RecvTimeout returns the upper bound of a single UDP receive.
func (cfg *Config) RecvTimeout() time.Duration { return cfg.recvTimeout }

// ReadBackoff returns the pause after a failed serial read.
func (cfg *Config) ReadBackoff() time.Duration { return cfg.readBackoff }

// WriteBackoff returns the pause after a failed serial write.
func (cfg *Config) WriteBackoff() time.Duration { return cfg.writeBackoff }

// StopTimeout returns how long the bridge waits for each forwarder on shutdown.
func (cfg *Config) StopTimeout() time.Duration { return cfg.stopTimeout }

// RecvBufferSize returns the UDP receive buffer size. Longer datagrams are truncated.
func (cfg *Config) RecvBufferSize() int { return cfg.recvBufferSize }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- ConfigOption ---

// ConfigOption is a functional option for configuring a Config.
type ConfigOption interface {
	apply(*Config) error
}

type configOptFunc func(*Config) error

func (f configOptFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the serial baud rate.
func WithBaudRate(baud int) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if baud <= 0 {
			return fmt.Errorf("bridge: baud rate %d must be positive", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithBindAddr sets the local address of the UDP socket.
func WithBindAddr(addr string) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		host, err := checkHost(addr)
		if err != nil {
			return fmt.Errorf("bridge: invalid bind address: %w", err)
		}
		cfg.bindAddr = host

		return nil
	})
}

// WithListenPort sets the UDP port receiving datagrams for the device.
// Port 0 binds an ephemeral port; see Bridge.LocalAddr.
func WithListenPort(port int) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("bridge: listen port %d out of range [0, 65535]", port)
		}
		cfg.listenPort = port

		return nil
	})
}

// WithDestAddr sets the address frames from the device are sent to.
func WithDestAddr(addr string) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		host, err := checkHost(addr)
		if err != nil {
			return fmt.Errorf("bridge: invalid destination address: %w", err)
		}
		cfg.destAddr = host

		return nil
	})
}

// WithDestPort sets the port frames from the device are sent to.
func WithDestPort(port int) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("bridge: destination port %d out of range [1, 65535]", port)
		}
		cfg.destPort = port

		return nil
	})
}

// WithSerialReadTimeout sets the upper bound of a single serial read, which is also the
// stop latency of the serial-to-network direction.
func WithSerialReadTimeout(d time.Duration) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if d < MinPollTimeout || d > MaxPollTimeout {
			return fmt.Errorf("bridge: serial read timeout %v out of range [%v, %v]", d, MinPollTimeout, MaxPollTimeout)
		}
		cfg.serialReadTimeout = d

		return nil
	})
}

// WithRecvTimeout sets the upper bound of a single UDP receive, which is also the stop
// latency of the network-to-serial direction.
func WithRecvTimeout(d time.Duration) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if d < MinPollTimeout || d > MaxPollTimeout {
			return fmt.Errorf("bridge: receive timeout %v out of range [%v, %v]", d, MinPollTimeout, MaxPollTimeout)
		}
		cfg.recvTimeout = d

		return nil
	})
}

// WithReadBackoff sets the pause after a failed serial read.
func WithReadBackoff(d time.Duration) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if d < 0 || d > MaxBackoff {
			return fmt.Errorf("bridge: read backoff %v out of range [0, %v]", d, MaxBackoff)
		}
		cfg.readBackoff = d

		return nil
	})
}

// WithWriteBackoff sets the pause after a failed serial write.
func WithWriteBackoff(d time.Duration) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if d < 0 || d > MaxBackoff {
			return fmt.Errorf("bridge: write backoff %v out of range [0, %v]", d, MaxBackoff)
		}
		cfg.writeBackoff = d

		return nil
	})
}

// WithStopTimeout sets how long the bridge waits for each forwarder on shutdown.
func WithStopTimeout(d time.Duration) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("bridge: stop timeout must be positive")
		}
		cfg.stopTimeout = d

		return nil
	})
}

// WithRecvBufferSize sets the UDP receive buffer size.
func WithRecvBufferSize(size int) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if size < 1 || size > MaxRecvBufferSize {
			return fmt.Errorf("bridge: receive buffer size %d out of range [1, %d]", size, MaxRecvBufferSize)
		}
		cfg.recvBufferSize = size

		return nil
	})
}

// WithSerialOpener replaces the function used to open the serial port.
func WithSerialOpener(opener SerialOpener) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if opener == nil {
			return errors.New("bridge: serial opener must not be nil")
		}
		cfg.opener = opener

		return nil
	})
}

// WithLogger sets the logger of the bridge and its forwarders.
func WithLogger(l logger.Logger) ConfigOption {
	return configOptFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("bridge: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

func checkHost(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", errors.New("empty host")
	}
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	host = strings.TrimSuffix(host, ".")
	if _, err := net.LookupHost(host); err != nil {
		return "", fmt.Errorf("host %q: %w", host, err)
	}

	return host, nil
}
