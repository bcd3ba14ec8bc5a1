// Package frame converts between the serial line framing spoken by the device under test
// and raw UDP payloads.
//
// # Device to network
//
// The device prints frames as part of its free-form log output:
//
//	I (1234) net_suite: PacketOut:[45000054a1b2...]
//
// [Decode] extracts the first PacketOut marker of a line and returns its hex-decoded
// bytes. Lines without a marker, or with a marker that does not hold a well-formed hex
// string, carry nothing to forward. Additional markers on the same line are ignored.
//
// # Network to device
//
// [Encode] renders a payload as two lowercase hex digits per byte separated by single
// spaces and terminated by a carriage return, which ends the line on the device console:
//
//	00 01 ff\r
//
// All functions are pure and safe for concurrent use.
package frame
