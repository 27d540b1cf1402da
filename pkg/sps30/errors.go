package sps30

import (
	"errors"
	"fmt"
)

// ErrTimeout indicates no valid response frame arrived within the
// configured timeout. One retry attempt is consumed per timeout.
var ErrTimeout = errors.New("no valid response within the timeout")

// ErrClosed indicates an exchange on a closed Device.
var ErrClosed = errors.New("device closed")

// ErrFormatMismatch indicates a measurement read that does not match
// the data format the measurement was started with.
var ErrFormatMismatch = errors.New("measurement started with a different data format")

// TransportError wraps a failure of the underlying byte stream.
// Transport failures are never retried: a request written into a dead
// transport may or may not have been delivered, and retrying cannot
// tell the difference.
type TransportError struct {
	Op  string // "read" or "write"
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ResponseShapeError indicates a structurally valid frame that does
// not fit the issued command: wrong opcode, wrong address, or a
// payload length the command cannot produce. Likely cross-talk or a
// response left over from an aborted exchange.
type ResponseShapeError struct {
	Cmd     byte // opcode issued
	GotCmd  byte // opcode in the response
	WantLen int  // expected payload length, -1 if variable
	GotLen  int  // payload length received
}

// Error implements error.
func (e *ResponseShapeError) Error() string {
	if e.GotCmd != e.Cmd {
		return fmt.Sprintf("response opcode 0x%02X does not match command 0x%02X", e.GotCmd, e.Cmd)
	}
	return fmt.Sprintf("command 0x%02X: response payload is %d bytes, want %d", e.Cmd, e.GotLen, e.WantLen)
}

// ExhaustedError is the terminal failure of an exchange after all
// configured attempts. Last carries the cause of the final attempt.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements error.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap returns the last attempt's cause.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}
