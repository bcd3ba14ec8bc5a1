// Package bridge connects a device under test on a serial port to a UDP endpoint used by a
// test-automation tool.
//
// Two forwarders run concurrently for the lifetime of a [Bridge]:
//
//   - [SerialForwarder] reads device lines, extracts PacketOut frames with [frame.Decode]
//     and sends each one as a single datagram to the configured destination.
//   - [NetForwarder] receives datagrams on the bind address and writes them to the device
//     as [frame.Encode] lines.
//
// # Lifecycle
//
// A Bridge opens the serial port once, binds the UDP socket and starts both forwarders on
// a [TaskManager]. Each forwarder follows the state machine
//
//	Starting -> Running -> StopRequested -> Stopped
//
// Transient I/O errors never change the state: reads are retried after a short pause and
// malformed frames are skipped. The only fatal error is a serial port that cannot be opened,
// reported as [ErrSerialOpen].
//
// Cancellation is polled between loop iterations. Serial reads are bounded by the port read
// timeout and UDP receives by a read deadline, so a stop request is observed within one of
// those intervals.
//
// # Shared handles
//
// The serial port is read by one forwarder and written by the other; reads and writes never
// share a call. The UDP socket is created by the Bridge before the forwarders start, used by
// [SerialForwarder] for sending and by [NetForwarder] for receiving, and closed by the Bridge
// only after both forwarders stopped or their stop timeout elapsed.
package bridge
