// Command udpstub answers MQTT CONNECT packets received over UDP with a CONNACK.
//
// It stands in for a broker when checking that a device can reach the network through
// netbridge. Other packets are logged and ignored.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/david-cermak/iot-conformance/logger"
	"github.com/david-cermak/iot-conformance/stub"
)

func main() {
	os.Exit(run())
}

func run() int {
	bind := flag.String("bind", "127.0.0.1", "bind address")
	port := flag.Int("port", 7777, "UDP port")
	bufSize := flag.Int("buffer", stub.DefaultBufferSize, "receive buffer size")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log := logger.NewSlog(level, false)

	srv, err := stub.Listen(net.JoinHostPort(*bind, strconv.Itoa(*port)),
		stub.WithBufferSize(*bufSize),
		stub.WithLogger(log),
	)
	if err != nil {
		log.Error("failed to start udp stub", "error", err)
		return 1
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, srv, log)
}

// serve runs srv until ctx is done and returns the process exit code.
func serve(ctx context.Context, srv *stub.Server, log logger.Logger) int {
	if err := srv.Serve(ctx); err != nil {
		log.Error("udp stub stopped", "error", err)
		return 1
	}

	for addr, st := range srv.Peers() {
		log.Info("peer summary", "peer", addr, "connects", st.Connects, "others", st.Others)
	}
	log.Info("shutdown finished")

	return 0
}
