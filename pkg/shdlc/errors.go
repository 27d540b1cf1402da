package shdlc

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge indicates an encode request with more payload
// bytes than the length byte can describe.
var ErrPayloadTooLarge = errors.New("payload exceeds 255 bytes")

// FramingError indicates a malformed byte sequence inside a frame.
// The parser has already resynchronized when this is returned.
type FramingError struct {
	Reason string
}

// Error implements error.
func (e *FramingError) Error() string {
	return "framing error: " + e.Reason
}

// ChecksumError indicates a fully parsed frame whose checksum does not
// match its content.
type ChecksumError struct {
	Want byte // checksum computed over the received bytes
	Got  byte // checksum claimed by the frame
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: computed 0x%02X, frame claims 0x%02X", e.Want, e.Got)
}

// OverflowError indicates a frame declaring more payload bytes than
// the parser's buffer can hold. Retrying cannot help: the remote end
// decides the response size.
type OverflowError struct {
	Len int // declared payload length
	Cap int // parser buffer capacity
}

// Error implements error.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("frame payload of %d bytes exceeds buffer capacity %d", e.Len, e.Cap)
}
