package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/david-cermak/iot-conformance/logger"
)

// Task names of the two forwarding directions.
const (
	SerialToNetTask = "serial-to-net"
	NetToSerialTask = "net-to-serial"
)

// Bridge supervises the two forwarding directions between a serial port and UDP.
//
// It owns the serial port and the UDP socket: both are opened in Open and closed in
// Close after the forwarders stopped.
type Bridge struct {
	pctx    context.Context
	cfg     *Config
	logger  logger.Logger
	metrics *Metrics

	mu        sync.Mutex
	opened    bool
	closed    bool
	port      SerialPort
	conn      *net.UDPConn
	taskMgr   *TaskManager
	serialFwd *SerialForwarder
	netFwd    *NetForwarder

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Bridge. Cancelling ctx requests a shutdown of a running bridge.
func New(ctx context.Context, cfg *Config) (*Bridge, error) {
	if cfg == nil {
		return nil, errors.New("bridge: config is nil")
	}

	return &Bridge{
		pctx:    ctx,
		cfg:     cfg,
		logger:  cfg.logger.With("component", "bridge"),
		metrics: newMetrics(),
		done:    make(chan struct{}),
	}, nil
}

// Open opens the serial port, binds the UDP socket and starts both forwarders.
//
// A serial port that cannot be opened is reported as ErrSerialOpen. If the context passed
// to New is done before the forwarders start, the bridge is closed and Open returns nil.
func (b *Bridge) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opened {
		return ErrAlreadyOpened
	}

	port, err := b.cfg.opener(b.cfg.serialPort, b.cfg.baudRate, b.cfg.serialReadTimeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerialOpen, b.cfg.serialPort, err)
	}

	conn, dst, err := b.bindUDP()
	if err != nil {
		_ = port.Close()
		return err
	}

	b.port = port
	b.conn = conn
	b.opened = true
	b.taskMgr = NewTaskManager(b.pctx, b.cfg.logger)
	b.serialFwd = NewSerialForwarder(port, conn, dst, b.cfg, b.metrics)
	b.netFwd = NewNetForwarder(port, conn, b.cfg, b.metrics)

	for _, task := range []struct {
		name  string
		step  TaskFunc
		state *AtomicState
	}{
		{SerialToNetTask, b.serialFwd.Forward, &b.serialFwd.state},
		{NetToSerialTask, b.netFwd.Forward, &b.netFwd.state},
	} {
		if err := b.startForwarder(task.name, task.step, task.state); err != nil {
			_ = b.closeLocked()
			if b.pctx.Err() != nil {
				// shutdown requested while opening
				return nil
			}

			return err
		}
	}

	b.logger.Info("bridge running",
		"serial", b.cfg.serialPort,
		"baud", b.cfg.baudRate,
		"listen", conn.LocalAddr().String(),
		"dst", dst.String(),
	)

	return nil
}

// Done returns a channel that is closed when a forwarder terminated on its own.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the context passed to New is done or a forwarder terminated.
// It returns ErrForwarderStopped in the latter case.
func (b *Bridge) Wait() error {
	select {
	case <-b.pctx.Done():
		return nil
	case <-b.done:
		if b.pctx.Err() != nil {
			return nil
		}
		return ErrForwarderStopped
	}
}

// Run opens the bridge, waits for a shutdown request or a forwarder failure and closes it.
func (b *Bridge) Run() error {
	if err := b.Open(); err != nil {
		return err
	}

	waitErr := b.Wait()
	if waitErr != nil {
		b.logger.Error("forwarder terminated, shutting down",
			"serial_to_net", b.serialFwd.State().String(),
			"net_to_serial", b.netFwd.State().String(),
		)
	}

	return errors.Join(waitErr, b.Close())
}

// Close stops both forwarders, waits up to the stop timeout for each of them, then closes
// the UDP socket and the serial port. Closing a bridge twice is a no-op.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.opened {
		return nil
	}

	return b.closeLocked()
}

func (b *Bridge) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true

	b.serialFwd.state.ToStopRequested()
	b.netFwd.state.ToStopRequested()
	b.taskMgr.Stop()

	for name, state := range map[string]*AtomicState{
		SerialToNetTask: &b.serialFwd.state,
		NetToSerialTask: &b.netFwd.state,
	} {
		err := b.taskMgr.WaitTask(name, b.cfg.stopTimeout)
		switch {
		case errors.Is(err, ErrTaskNotFound):
			// never started
			state.ToStopped()
		case err != nil:
			b.logger.Warn("forwarder did not stop in time", "task", name, "error", err)
		}
	}

	var errs []error
	if err := b.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		errs = append(errs, fmt.Errorf("bridge: close udp socket: %w", err))
	}
	if err := b.port.Close(); err != nil {
		errs = append(errs, fmt.Errorf("bridge: close serial port: %w", err))
	}

	b.logger.Info("bridge closed", b.metrics.Snapshot().LogValues()...)

	return errors.Join(errs...)
}

// LocalAddr returns the bound UDP address, or nil before Open.
func (b *Bridge) LocalAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil {
		return nil
	}

	return b.conn.LocalAddr()
}

// Metrics returns the traffic counters of the bridge.
func (b *Bridge) Metrics() *Metrics {
	return b.metrics
}

// SerialToNetState returns the state of the serial-to-network forwarder.
func (b *Bridge) SerialToNetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.serialFwd == nil {
		return StartingState
	}

	return b.serialFwd.State()
}

// NetToSerialState returns the state of the network-to-serial forwarder.
func (b *Bridge) NetToSerialState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.netFwd == nil {
		return StartingState
	}

	return b.netFwd.State()
}

func (b *Bridge) bindUDP() (*net.UDPConn, *net.UDPAddr, error) {
	dst, err := net.ResolveUDPAddr("udp", b.cfg.DestHostPort())
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: resolve destination %s: %w", b.cfg.DestHostPort(), err)
	}

	laddr, err := net.ResolveUDPAddr("udp", b.cfg.ListenAddr())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrUDPBind, b.cfg.ListenAddr(), err)
	}

	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrUDPBind, b.cfg.ListenAddr(), err)
	}

	return conn, dst, nil
}

func (b *Bridge) startForwarder(name string, step TaskFunc, state *AtomicState) error {
	exit := func() {
		requested := state.Get() == StopRequestedState || b.pctx.Err() != nil
		state.ToStopped()
		b.logger.Info("forwarder stopped", "task", name)
		if !requested {
			b.doneOnce.Do(func() { close(b.done) })
		}
	}

	if err := b.taskMgr.Start(name, step, exit); err != nil {
		return err
	}
	state.ToRunning()
	b.logger.Debug("forwarder started", "task", name)

	return nil
}
