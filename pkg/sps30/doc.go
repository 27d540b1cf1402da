// Package sps30 drives a Sensirion SPS30 particulate matter sensor
// over its UART interface.
package sps30

// The sensor speaks SHDLC (see package shdlc) at 115200 8N1. This
// package owns the request/response discipline on top of the framing:
// it encodes commands, correlates the response frame to the issued
// opcode, validates the payload shape, and retries on corrupted or
// missing responses up to a configured bound.
//
// The wire protocol has no request identifier, so only one exchange
// can be outstanding at a time. The Device serializes concurrent
// callers; the transport is owned exclusively by the Device for its
// lifetime.
