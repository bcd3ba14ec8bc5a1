// Command netbridge connects a device's serial console to UDP so that a network
// conformance tool can talk to the device's network stack.
//
// Lines printed by the device as "PacketOut:[<hex>]" are sent as datagrams to the
// destination address, and every datagram received on the listen port is written to
// the device as space-separated hex terminated by a carriage return.
//
// Settings are resolved in order: defaults, YAML file (-config), NET_SUITE_* environment
// variables, command line flags.
//
// Environment variables:
//
//	NET_SUITE_SERIAL    - serial device (default: "/dev/ttyUSB0")
//	NET_SUITE_BAUD      - baud rate (default: 115200)
//	NET_SUITE_BIND      - local bind address (default: "0.0.0.0")
//	NET_SUITE_UDP_IN    - local UDP port for datagrams to the device (default: 7771)
//	NET_SUITE_UDP_OUT   - destination UDP port for device frames (default: 7777)
//	NET_SUITE_UDP_DST   - destination address for device frames (default: "127.0.0.1")
//	NET_SUITE_LOG_LEVEL - debug, info, warn or error (default: "info")
//
// Exit status is 0 after a signal, 2 when the serial port cannot be opened and 1 for any
// other failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/david-cermak/iot-conformance/bridge"
	"github.com/david-cermak/iot-conformance/config"
	"github.com/david-cermak/iot-conformance/logger"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitSerialOpen = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := resolveConfig(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitFailure
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	log := logger.NewSlog(level, cfg.Log.AddSource)
	logger.SetLogger(log)

	bridgeCfg, err := cfg.BridgeConfig(log)
	if err != nil {
		log.Error("invalid bridge configuration", "error", err)
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bridge.New(ctx, bridgeCfg)
	if err != nil {
		log.Error("failed to create bridge", "error", err)
		return exitFailure
	}

	log.Info("starting bridge",
		"serial", bridgeCfg.SerialPort(),
		"baud", bridgeCfg.BaudRate(),
		"listen", bridgeCfg.ListenAddr(),
		"dest", bridgeCfg.DestHostPort(),
	)

	if err := b.Run(); err != nil {
		log.Error("bridge stopped", "error", err)
		if errors.Is(err, bridge.ErrSerialOpen) {
			return exitSerialOpen
		}

		return exitFailure
	}

	log.Info("shutdown finished")

	return exitOK
}

func resolveConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("netbridge", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML configuration file (optional)")
	port := fs.String("port", "", "serial device, overrides "+config.EnvSerial)
	baud := fs.Int("baud", 0, "baud rate, overrides "+config.EnvBaud)
	bind := fs.String("bind", "", "local bind address, overrides "+config.EnvBind)
	udpIn := fs.Int("udp-in", -1, "local UDP port, overrides "+config.EnvUDPIn)
	udpOut := fs.Int("udp-out", 0, "destination UDP port, overrides "+config.EnvUDPOut)
	udpDst := fs.String("udp-dst", "", "destination address, overrides "+config.EnvUDPDst)
	logLevel := fs.String("log-level", "", "log level, overrides "+config.EnvLogLevel)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := config.FromEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *bind != "" {
		cfg.UDP.Bind = *bind
	}
	if *udpIn >= 0 {
		cfg.UDP.In = *udpIn
	}
	if *udpOut != 0 {
		cfg.UDP.Out = *udpOut
	}
	if *udpDst != "" {
		cfg.UDP.Dst = *udpDst
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
