// Package shdlc implements the SHDLC framing layer used by Sensirion
// UART sensors.
package shdlc

// A frame on the wire looks like:
//
//	[0x7E] [ADDR] [CMD] [LEN] [DATA...] [CHK] [0x7E]
//
// All bytes between the two delimiters are byte-stuffed so 0x7E only
// ever appears as a frame boundary. The checksum is the one's
// complement of the byte sum of ADDR through the last DATA byte,
// computed before stuffing.
//
// The encoder produces complete frames in one call. The decoder is an
// incremental state machine consuming one byte at a time, because a
// serial port delivers bytes at arbitrary chunk boundaries. Corrupted
// input never takes the decoder down: it resynchronizes by scanning
// for the next delimiter.
