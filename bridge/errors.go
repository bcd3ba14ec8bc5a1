package bridge

import "errors"

var (
	// ErrSerialOpen indicates that the serial port could not be opened at startup.
	// It is the only unrecoverable error of a bridge.
	ErrSerialOpen = errors.New("bridge: serial port open failed")

	// ErrUDPBind indicates that the UDP socket could not be bound.
	ErrUDPBind = errors.New("bridge: udp bind failed")

	// ErrAlreadyOpened indicates that Open was called on a bridge that is already running.
	ErrAlreadyOpened = errors.New("bridge: already opened")

	// ErrForwarderStopped indicates that a forwarder terminated on its own and the bridge
	// was shut down as a consequence.
	ErrForwarderStopped = errors.New("bridge: forwarder stopped unexpectedly")

	// ErrLineTooLong indicates that the device sent more than MaxLineLength bytes without a
	// line terminator. The pending bytes are discarded.
	ErrLineTooLong = errors.New("bridge: serial line too long")
)

var (
	// ErrTaskExists indicates that a task with the same name is already running.
	ErrTaskExists = errors.New("bridge: task already exists")

	// ErrTaskNotFound indicates that no task with the given name was started.
	ErrTaskNotFound = errors.New("bridge: task not found")

	// ErrStopTimeout indicates that a task did not exit within its stop timeout.
	ErrStopTimeout = errors.New("bridge: task stop timeout")
)
