package shdlc

// Protocol control bytes. Any of these appearing in the frame body is
// replaced by the escape marker followed by the byte XOR 0x20. XON and
// XOFF are reserved because the wire may pass through software
// flow control.
const (
	// Delimiter marks the start and end of every frame.
	Delimiter byte = 0x7e

	escapeMarker byte = 0x7d
	xon          byte = 0x11
	xoff         byte = 0x13

	// escapeXOR is the stuffing transform. XOR is its own inverse,
	// so decoding is lossless.
	escapeXOR byte = 0x20
)

// MaxPayload is the largest payload the length byte can describe.
const MaxPayload = 255

// Frame is one validated SHDLC message. The payload of a frame
// produced by a Parser aliases the parser's internal buffer and is
// only valid until the next Parse call.
type Frame struct {
	Addr byte
	Cmd  byte
	Data []byte
}

func reserved(b byte) bool {
	switch b {
	case Delimiter, escapeMarker, xon, xoff:
		return true
	}
	return false
}

func appendStuffed(dst []byte, b byte) []byte {
	if reserved(b) {
		return append(dst, escapeMarker, b^escapeXOR)
	}
	return append(dst, b)
}

// AppendFrame appends a complete encoded frame to dst and returns the
// extended slice. The checksum is computed over the unstuffed
// addr, cmd, length and data bytes before stuffing is applied.
func AppendFrame(dst []byte, addr, cmd byte, data []byte) ([]byte, error) {
	if len(data) > MaxPayload {
		return dst, ErrPayloadTooLarge
	}
	sum := addr + cmd + byte(len(data))
	for _, b := range data {
		sum += b
	}

	dst = append(dst, Delimiter)
	dst = appendStuffed(dst, addr)
	dst = appendStuffed(dst, cmd)
	dst = appendStuffed(dst, byte(len(data)))
	for _, b := range data {
		dst = appendStuffed(dst, b)
	}
	dst = appendStuffed(dst, ^sum)
	dst = append(dst, Delimiter)
	return dst, nil
}

// EncodeFrame is AppendFrame into a fresh slice.
func EncodeFrame(addr, cmd byte, data []byte) ([]byte, error) {
	// worst case: every body byte stuffed, plus two delimiters
	return AppendFrame(make([]byte, 0, 2*(len(data)+4)+2), addr, cmd, data)
}
