// Package config resolves the bridge configuration from a YAML file, NET_SUITE_*
// environment variables and built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/david-cermak/iot-conformance/bridge"
	"github.com/david-cermak/iot-conformance/logger"
)

// Environment variables understood by FromEnv.
const (
	EnvSerial   = "NET_SUITE_SERIAL"
	EnvBaud     = "NET_SUITE_BAUD"
	EnvBind     = "NET_SUITE_BIND"
	EnvUDPIn    = "NET_SUITE_UDP_IN"
	EnvUDPOut   = "NET_SUITE_UDP_OUT"
	EnvUDPDst   = "NET_SUITE_UDP_DST"
	EnvLogLevel = "NET_SUITE_LOG_LEVEL"
)

const DefaultSerialPort = "/dev/ttyUSB0"

type Config struct {
	Serial SerialConfig `yaml:"serial"`
	UDP    UDPConfig    `yaml:"udp"`
	Timing TimingConfig `yaml:"timing"`
	Log    LogConfig    `yaml:"log"`
}

// ---- SERIAL ----

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ---- UDP ----

type UDPConfig struct {
	Bind string `yaml:"bind"` // local address for datagrams to the device
	In   int    `yaml:"in"`   // local port for datagrams to the device
	Dst  string `yaml:"dst"`  // destination address for device frames
	Out  int    `yaml:"out"`  // destination port for device frames

	RecvBufferSize int `yaml:"recv_buffer_size"`
}

// ---- TIMING ----

// TimingConfig values are milliseconds; 0 keeps the bridge default.
type TimingConfig struct {
	SerialReadTimeoutMs int `yaml:"serial_read_timeout_ms"`
	RecvTimeoutMs       int `yaml:"recv_timeout_ms"`
	ReadBackoffMs       int `yaml:"read_backoff_ms"`
	WriteBackoffMs      int `yaml:"write_backoff_ms"`
	StopTimeoutMs       int `yaml:"stop_timeout_ms"`
}

// ---- LOG ----

type LogConfig struct {
	Level     string `yaml:"level"`
	AddSource bool   `yaml:"add_source"`
}

// Default returns the configuration used when neither file nor environment say otherwise.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: DefaultSerialPort,
			Baud: bridge.DefaultBaudRate,
		},
		UDP: UDPConfig{
			Bind: bridge.DefaultBindAddr,
			In:   bridge.DefaultListenPort,
			Dst:  bridge.DefaultDestAddr,
			Out:  bridge.DefaultDestPort,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of Default.
// Keys missing from the file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// FromEnv overrides cfg with the NET_SUITE_* variables that are set.
// lookup is usually os.LookupEnv.
func FromEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not a number", key, v)
		}
		*dst = n

		return nil
	}

	str(EnvSerial, &cfg.Serial.Port)
	str(EnvBind, &cfg.UDP.Bind)
	str(EnvUDPDst, &cfg.UDP.Dst)
	str(EnvLogLevel, &cfg.Log.Level)

	if err := num(EnvBaud, &cfg.Serial.Baud); err != nil {
		return err
	}
	if err := num(EnvUDPIn, &cfg.UDP.In); err != nil {
		return err
	}

	return num(EnvUDPOut, &cfg.UDP.Out)
}

// BridgeConfig converts cfg to a bridge configuration using l as the bridge logger.
// Range checks are done by the bridge options.
func (cfg *Config) BridgeConfig(l logger.Logger) (*bridge.Config, error) {
	opts := []bridge.ConfigOption{
		bridge.WithBaudRate(cfg.Serial.Baud),
		bridge.WithBindAddr(cfg.UDP.Bind),
		bridge.WithListenPort(cfg.UDP.In),
		bridge.WithDestAddr(cfg.UDP.Dst),
		bridge.WithDestPort(cfg.UDP.Out),
	}

	if cfg.UDP.RecvBufferSize != 0 {
		opts = append(opts, bridge.WithRecvBufferSize(cfg.UDP.RecvBufferSize))
	}
	if d := millis(cfg.Timing.SerialReadTimeoutMs); d != 0 {
		opts = append(opts, bridge.WithSerialReadTimeout(d))
	}
	if d := millis(cfg.Timing.RecvTimeoutMs); d != 0 {
		opts = append(opts, bridge.WithRecvTimeout(d))
	}
	if d := millis(cfg.Timing.ReadBackoffMs); d != 0 {
		opts = append(opts, bridge.WithReadBackoff(d))
	}
	if d := millis(cfg.Timing.WriteBackoffMs); d != 0 {
		opts = append(opts, bridge.WithWriteBackoff(d))
	}
	if d := millis(cfg.Timing.StopTimeoutMs); d != 0 {
		opts = append(opts, bridge.WithStopTimeout(d))
	}
	if l != nil {
		opts = append(opts, bridge.WithLogger(l))
	}

	return bridge.NewConfig(cfg.Serial.Port, opts...)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
