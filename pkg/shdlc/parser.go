package shdlc

type parseState int

const (
	stateScan     parseState = iota // discarding noise, waiting for a delimiter
	stateAddr                       // frame open, waiting for address
	stateCmd                        // waiting for command
	stateLen                        // waiting for length
	stateData                       // collecting payload bytes
	stateChecksum                   // waiting for checksum
	stateStop                       // waiting for the closing delimiter
)

// Parser incrementally decodes SHDLC frames from a byte stream. It
// owns a single fixed-capacity payload buffer which is reused for
// every frame; the buffer never grows after construction.
//
// Any malformed input resets the parser to scanning for the next
// delimiter, so noise on the wire corrupts at most the frame it
// arrived in.
type Parser struct {
	state   parseState
	escaped bool
	frame   Frame
	buf     []byte
	want    int
	sum     byte
	claimed byte
}

// NewParser creates a parser whose payload buffer holds up to
// capacity bytes. Zero, negative or out-of-range capacity means
// MaxPayload.
func NewParser(capacity int) *Parser {
	if capacity <= 0 || capacity > MaxPayload {
		capacity = MaxPayload
	}
	return &Parser{buf: make([]byte, 0, capacity)}
}

// Reset discards any partially decoded frame and returns the parser
// to scanning for a delimiter.
func (p *Parser) Reset() {
	p.state = stateScan
	p.escaped = false
	p.buf = p.buf[:0]
}

func (p *Parser) fail(reason string) (*Frame, error) {
	p.Reset()
	return nil, &FramingError{Reason: reason}
}

func (p *Parser) finish() (*Frame, error) {
	want := ^p.sum
	if p.claimed != want {
		p.Reset()
		return nil, &ChecksumError{Want: want, Got: p.claimed}
	}
	p.frame.Data = p.buf
	p.state = stateScan
	return &p.frame, nil
}

// Parse consumes one byte. It returns a completed frame, an error, or
// neither when more input is needed. A dangling escape marker is not
// an error: the parser suspends until the next byte arrives.
//
// The returned frame's payload aliases the parser buffer and is valid
// until the next Parse call.
func (p *Parser) Parse(b byte) (*Frame, error) {
	if p.state == stateScan {
		if b == Delimiter {
			p.state = stateAddr
		}
		return nil, nil
	}

	if b == Delimiter {
		if p.escaped {
			return p.fail("delimiter after escape marker")
		}
		switch p.state {
		case stateAddr:
			// Back-to-back delimiters: treat the previous one as
			// noise and keep the frame open.
			return nil, nil
		case stateStop:
			return p.finish()
		default:
			return p.fail("delimiter inside frame")
		}
	}

	if p.escaped {
		p.escaped = false
		b ^= escapeXOR
		if !reserved(b) {
			return p.fail("malformed escape sequence")
		}
	} else if b == escapeMarker {
		p.escaped = true
		return nil, nil
	}

	switch p.state {
	case stateAddr:
		p.frame.Addr = b
		p.sum = b
		p.state = stateCmd
	case stateCmd:
		p.frame.Cmd = b
		p.sum += b
		p.state = stateLen
	case stateLen:
		p.sum += b
		p.want = int(b)
		p.buf = p.buf[:0]
		if p.want > cap(p.buf) {
			err := &OverflowError{Len: p.want, Cap: cap(p.buf)}
			p.Reset()
			return nil, err
		}
		if p.want == 0 {
			p.state = stateChecksum
		} else {
			p.state = stateData
		}
	case stateData:
		p.buf = append(p.buf, b)
		p.sum += b
		if len(p.buf) == p.want {
			p.state = stateChecksum
		}
	case stateChecksum:
		p.claimed = b
		p.state = stateStop
	case stateStop:
		return p.fail("data after checksum")
	}
	return nil, nil
}
