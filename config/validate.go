package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/david-cermak/iot-conformance/logger"
)

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil config")
	}

	var errs []error

	if strings.TrimSpace(cfg.Serial.Port) == "" {
		errs = append(errs, errors.New("serial.port must not be empty"))
	}
	if cfg.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud %d must be positive", cfg.Serial.Baud))
	}

	if cfg.UDP.In < 0 || cfg.UDP.In > 65535 {
		errs = append(errs, fmt.Errorf("udp.in %d out of range [0, 65535]", cfg.UDP.In))
	}
	if cfg.UDP.Out < 1 || cfg.UDP.Out > 65535 {
		errs = append(errs, fmt.Errorf("udp.out %d out of range [1, 65535]", cfg.UDP.Out))
	}
	if strings.TrimSpace(cfg.UDP.Bind) == "" {
		errs = append(errs, errors.New("udp.bind must not be empty"))
	}
	if strings.TrimSpace(cfg.UDP.Dst) == "" {
		errs = append(errs, errors.New("udp.dst must not be empty"))
	}
	if cfg.UDP.RecvBufferSize < 0 {
		errs = append(errs, fmt.Errorf("udp.recv_buffer_size %d must not be negative", cfg.UDP.RecvBufferSize))
	}

	for _, t := range []struct {
		key string
		ms  int
	}{
		{"timing.serial_read_timeout_ms", cfg.Timing.SerialReadTimeoutMs},
		{"timing.recv_timeout_ms", cfg.Timing.RecvTimeoutMs},
		{"timing.read_backoff_ms", cfg.Timing.ReadBackoffMs},
		{"timing.write_backoff_ms", cfg.Timing.WriteBackoffMs},
		{"timing.stop_timeout_ms", cfg.Timing.StopTimeoutMs},
	} {
		if t.ms < 0 {
			errs = append(errs, fmt.Errorf("%s %d must not be negative", t.key, t.ms))
		}
	}

	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}

	return nil
}
