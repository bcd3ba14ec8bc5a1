package bridge

import (
	"testing"
	"time"

	"github.com/david-cermak/iot-conformance/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig("/dev/ttyUSB0")
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialPort())
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate())
	assert.Equal(t, "0.0.0.0", cfg.BindAddr())
	assert.Equal(t, 7771, cfg.ListenPort())
	assert.Equal(t, "0.0.0.0:7771", cfg.ListenAddr())
	assert.Equal(t, "127.0.0.1", cfg.DestAddr())
	assert.Equal(t, 7777, cfg.DestPort())
	assert.Equal(t, "127.0.0.1:7777", cfg.DestHostPort())

	assert.Equal(t, DefaultSerialReadTimeout, cfg.SerialReadTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.RecvTimeout())
	assert.Equal(t, DefaultReadBackoff, cfg.ReadBackoff())
	assert.Equal(t, DefaultWriteBackoff, cfg.WriteBackoff())
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout())
	assert.Equal(t, 2048, cfg.RecvBufferSize())
	assert.NotNil(t, cfg.GetLogger())
}

func TestNewConfig_WithOptions(t *testing.T) {
	l := logger.NewNopMockLogger()
	cfg, err := NewConfig("COM3",
		WithBaudRate(9600),
		WithBindAddr("127.0.0.1"),
		WithListenPort(0),
		WithDestAddr("::1"),
		WithDestPort(9000),
		WithSerialReadTimeout(50*time.Millisecond),
		WithRecvTimeout(100*time.Millisecond),
		WithReadBackoff(0),
		WithWriteBackoff(time.Second),
		WithStopTimeout(3*time.Second),
		WithRecvBufferSize(4096),
		WithLogger(l),
	)
	require.NoError(t, err)

	assert.Equal(t, 9600, cfg.BaudRate())
	assert.Equal(t, "127.0.0.1:0", cfg.ListenAddr())
	assert.Equal(t, "[::1]:9000", cfg.DestHostPort())
	assert.Equal(t, 50*time.Millisecond, cfg.SerialReadTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.RecvTimeout())
	assert.Equal(t, time.Duration(0), cfg.ReadBackoff())
	assert.Equal(t, time.Second, cfg.WriteBackoff())
	assert.Equal(t, 3*time.Second, cfg.StopTimeout())
	assert.Equal(t, 4096, cfg.RecvBufferSize())
	assert.Same(t, l, cfg.GetLogger())
}

func TestNewConfig_Localhost(t *testing.T) {
	cfg, err := NewConfig("/dev/ttyACM0", WithDestAddr("localhost"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.DestAddr())
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		desc     string
		port     string
		opt      ConfigOption
		contains string
	}{
		{"empty serial port", " ", nil, "serial port"},
		{"zero baud", "p", WithBaudRate(0), "baud"},
		{"bad bind addr", "p", WithBindAddr("!!!invalid!!!"), "bind address"},
		{"empty dest addr", "p", WithDestAddr(""), "destination address"},
		{"listen port range", "p", WithListenPort(70000), "listen port"},
		{"dest port zero", "p", WithDestPort(0), "destination port"},
		{"read timeout too small", "p", WithSerialReadTimeout(time.Millisecond), "serial read timeout"},
		{"recv timeout too large", "p", WithRecvTimeout(time.Minute), "receive timeout"},
		{"negative read backoff", "p", WithReadBackoff(-time.Second), "read backoff"},
		{"write backoff too large", "p", WithWriteBackoff(time.Minute), "write backoff"},
		{"zero stop timeout", "p", WithStopTimeout(0), "stop timeout"},
		{"buffer size", "p", WithRecvBufferSize(0), "receive buffer"},
		{"nil opener", "p", WithSerialOpener(nil), "opener"},
		{"nil logger", "p", WithLogger(nil), "logger"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			var opts []ConfigOption
			if tt.opt != nil {
				opts = append(opts, tt.opt)
			}
			_, err := NewConfig(tt.port, opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}
