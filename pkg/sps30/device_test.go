package sps30

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/airmon/sps30.go/pkg/shdlc"
)

// scriptRW is an in-memory transport double. Writes are captured and
// handed to onWrite, which decides what the fake sensor sends back by
// pushing encoded frames into the response channel.
type scriptRW struct {
	mu      sync.Mutex
	writes  [][]byte
	onWrite func(n int, frame []byte)
	writeEr error
	closed  bool

	rc      chan []byte
	pending []byte
}

func newScriptRW() *scriptRW {
	return &scriptRW{rc: make(chan []byte, 16)}
}

func (s *scriptRW) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		b, ok := <-s.rc
		if !ok {
			return 0, io.EOF
		}
		s.pending = b
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *scriptRW) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeEr != nil {
		return 0, s.writeEr
	}
	frame := append([]byte(nil), p...)
	s.writes = append(s.writes, frame)
	if s.onWrite != nil {
		s.onWrite(len(s.writes), frame)
	}
	return len(p), nil
}

func (s *scriptRW) reply(frame []byte) {
	s.rc <- frame
}

func (s *scriptRW) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.rc)
	}
	return nil
}

func (s *scriptRW) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func encodeResp(t *testing.T, cmd byte, data []byte) []byte {
	t.Helper()
	frame, err := shdlc.EncodeFrame(Address, cmd, data)
	require.NoError(t, err)
	return frame
}

// reqCmd extracts the opcode from a captured request frame. None of
// the requests in these tests stuff the address or opcode byte.
func reqCmd(frame []byte) byte {
	return frame[2]
}

func floatPayload(vals [10]float32) []byte {
	out := make([]byte, 0, 40)
	for _, v := range vals {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], math.Float32bits(v))
		out = append(out, b[:]...)
	}
	return out
}

func TestStartAndReadMeasurement(t *testing.T) {
	rw := newScriptRW()
	vals := [10]float32{1.5, 2.5, 3.5, 4.5, 5.5, 10, 20, 30, 40, 0.75}
	rw.onWrite = func(_ int, frame []byte) {
		switch reqCmd(frame) {
		case CmdStartMeasurement:
			rw.reply(encodeResp(t, CmdStartMeasurement, nil))
		case CmdReadMeasuredData:
			rw.reply(encodeResp(t, CmdReadMeasuredData, floatPayload(vals)))
		}
	}
	d := New(rw)

	require.NoError(t, d.StartMeasurement(context.Background(), FormatFloat))
	m, err := d.ReadMeasurement(context.Background())
	require.NoError(t, err)
	require.Equal(t, vals[0], m.MassPM1_0)
	require.Equal(t, vals[4], m.NumberPM0_5)
	require.Equal(t, vals[9], m.TypicalParticleSize)
}

func TestReadFixedMeasurement(t *testing.T) {
	rw := newScriptRW()
	payload := make([]byte, 20)
	for i := 0; i < 10; i++ {
		binary.BigEndian.PutUint16(payload[2*i:], uint16(100*(i+1)))
	}
	rw.onWrite = func(_ int, frame []byte) {
		switch reqCmd(frame) {
		case CmdStartMeasurement:
			rw.reply(encodeResp(t, CmdStartMeasurement, nil))
		case CmdReadMeasuredData:
			rw.reply(encodeResp(t, CmdReadMeasuredData, payload))
		}
	}
	d := New(rw)

	require.NoError(t, d.StartMeasurement(context.Background(), FormatUint16))
	m, err := d.ReadFixedMeasurement(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint16(100), m.MassPM1_0)
	require.Equal(t, uint16(1000), m.TypicalParticleSize)
}

func TestReadFormatMismatch(t *testing.T) {
	rw := newScriptRW()
	d := New(rw)

	// Default format is float; the integer read must be rejected
	// locally without touching the wire.
	_, err := d.ReadFixedMeasurement(context.Background())
	require.Equal(t, ErrFormatMismatch, err)
	require.Equal(t, 0, rw.writeCount())
}

func TestFormatFollowsStartMeasurement(t *testing.T) {
	rw := newScriptRW()
	payload := make([]byte, 20)
	rw.onWrite = func(_ int, frame []byte) {
		switch reqCmd(frame) {
		case CmdStartMeasurement:
			rw.reply(encodeResp(t, CmdStartMeasurement, nil))
		case CmdReadMeasuredData:
			rw.reply(encodeResp(t, CmdReadMeasuredData, payload))
		}
	}
	d := New(rw)
	ctx := context.Background()

	require.NoError(t, d.StartMeasurement(ctx, FormatUint16))
	_, err := d.ReadMeasurement(ctx)
	require.Equal(t, ErrFormatMismatch, err)
	_, err = d.ReadFixedMeasurement(ctx)
	require.NoError(t, err)

	// Switching the mode switches which read is accepted.
	require.NoError(t, d.StartMeasurement(ctx, FormatFloat))
	_, err = d.ReadFixedMeasurement(ctx)
	require.Equal(t, ErrFormatMismatch, err)
}

func TestRetryExhausted(t *testing.T) {
	rw := newScriptRW()
	var traced []TraceEvent
	d := New(rw,
		WithTimeout(20*time.Millisecond),
		WithAttempts(3),
		WithTrace(func(ev TraceEvent) { traced = append(traced, ev) }),
	)

	err := d.StopMeasurement(context.Background())
	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	require.Equal(t, 3, ex.Attempts)
	require.Equal(t, ErrTimeout, ex.Last)
	require.Equal(t, 3, rw.writeCount())
	require.Len(t, traced, 3)
	require.Equal(t, byte(CmdStopMeasurement), traced[0].Cmd)
}

func TestRetryAfterChecksumError(t *testing.T) {
	rw := newScriptRW()
	good := encodeResp(t, CmdStopMeasurement, nil)
	bad := append([]byte(nil), good...)
	bad[len(bad)-2] ^= 0xff // corrupt the checksum
	rw.onWrite = func(n int, _ []byte) {
		if n == 1 {
			rw.reply(bad)
		} else {
			rw.reply(good)
		}
	}
	var traced []TraceEvent
	d := New(rw, WithTimeout(100*time.Millisecond), WithTrace(func(ev TraceEvent) { traced = append(traced, ev) }))

	require.NoError(t, d.StopMeasurement(context.Background()))
	require.Equal(t, 2, rw.writeCount())
	require.Len(t, traced, 1)
	var cerr *shdlc.ChecksumError
	require.True(t, errors.As(traced[0].Err, &cerr))
}

func TestResponseShapeMismatch(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(_ int, _ []byte) {
		// Wrong opcode: a measurement frame answering a stop request.
		rw.reply(encodeResp(t, CmdReadMeasuredData, make([]byte, 40)))
	}
	d := New(rw, WithTimeout(100*time.Millisecond), WithAttempts(1), WithResponseCapacity(64))

	err := d.StopMeasurement(context.Background())
	var shape *ResponseShapeError
	require.True(t, errors.As(err, &shape))
	require.Equal(t, byte(CmdStopMeasurement), shape.Cmd)
	require.Equal(t, byte(CmdReadMeasuredData), shape.GotCmd)
}

func TestReadErrorFailsEveryExchange(t *testing.T) {
	rw := newScriptRW()
	rw.Close() // reads return io.EOF from the start
	d := New(rw, WithTimeout(50*time.Millisecond), WithAttempts(2))

	err := d.Sleep(context.Background())
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, "read", terr.Op)
	require.Equal(t, io.EOF, terr.Err)

	// The dead transport must keep failing fast, not burn the retry
	// budget timing out.
	start := time.Now()
	err = d.Sleep(context.Background())
	require.True(t, errors.As(err, &terr))
	require.Equal(t, io.EOF, terr.Err)
	require.True(t, time.Since(start) < 50*time.Millisecond)
}

func TestClose(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(_ int, _ []byte) {
		rw.reply(encodeResp(t, CmdSleep, nil))
	}
	d := New(rw)

	require.NoError(t, d.Sleep(context.Background()))
	require.NoError(t, d.Close())
	require.NoError(t, d.Close()) // idempotent

	rw.mu.Lock()
	closed := rw.closed
	rw.mu.Unlock()
	require.True(t, closed)

	err := d.Sleep(context.Background())
	require.Equal(t, ErrClosed, err)
}

func TestWriteErrorNotRetried(t *testing.T) {
	rw := newScriptRW()
	rw.writeEr = errors.New("port gone")
	d := New(rw, WithAttempts(3))

	err := d.StopMeasurement(context.Background())
	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, "write", terr.Op)
	require.Equal(t, 0, rw.writeCount())
}

func TestWakeUpSendsPulse(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(n int, _ []byte) {
		// The first send is swallowed while the UART wakes up.
		if n == 2 {
			rw.reply(encodeResp(t, CmdWakeUp, nil))
		}
	}
	d := New(rw, WithTimeout(100*time.Millisecond))

	require.NoError(t, d.WakeUp(context.Background()))
	require.Equal(t, 2, rw.writeCount())
}

func TestContextCanceled(t *testing.T) {
	rw := newScriptRW()
	d := New(rw, WithTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.StopMeasurement(ctx)
	require.Equal(t, context.Canceled, err)
	require.Equal(t, 0, rw.writeCount())
}

func TestAutoCleaningInterval(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(_ int, frame []byte) {
		require.Equal(t, byte(CmdAutoCleaningInterval), reqCmd(frame))
		switch frame[4] {
		case subReadInterval:
			rw.reply(encodeResp(t, CmdAutoCleaningInterval, []byte{0x00, 0x01, 0x51, 0x80}))
		case subWriteInterval:
			rw.reply(encodeResp(t, CmdAutoCleaningInterval, nil))
		}
	}
	d := New(rw)

	secs, err := d.AutoCleaningInterval(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint32(86400), secs)

	require.NoError(t, d.SetAutoCleaningInterval(context.Background(), 604800))
	last := rw.writes[len(rw.writes)-1]
	require.Equal(t, byte(subWriteInterval), last[4])
	require.Equal(t, []byte{0x00, 0x09, 0x3a, 0x80}, last[5:9])
}

func TestDeviceInformation(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(_ int, frame []byte) {
		switch frame[4] {
		case byte(InfoSerialNumber):
			rw.reply(encodeResp(t, CmdDeviceInformation, []byte("5D1AD43A9C3F27C8\x00")))
		case byte(InfoProductType):
			rw.reply(encodeResp(t, CmdDeviceInformation, []byte("00080000\x00")))
		}
	}
	d := New(rw)

	serial, err := d.SerialNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, "5D1AD43A9C3F27C8", serial)

	ptype, err := d.ProductType(context.Background())
	require.NoError(t, err)
	require.Equal(t, "00080000", ptype)
}

func TestReadVersion(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(_ int, _ []byte) {
		rw.reply(encodeResp(t, CmdReadVersion, []byte{2, 2, 0, 7, 0, 2, 0}))
	}
	d := New(rw)

	v, err := d.ReadVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint8(2), v.FirmwareMajor)
	require.Equal(t, uint8(2), v.FirmwareMinor)
	require.Equal(t, uint8(7), v.HardwareRevision)
	require.Equal(t, "firmware 2.2, hardware 7, SHDLC 2.0", v.String())
}

func TestReadDeviceStatus(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(_ int, frame []byte) {
		require.Equal(t, byte(1), frame[4]) // clear flag forwarded
		rw.reply(encodeResp(t, CmdReadDeviceStatus, []byte{0x00, 0x20, 0x00, 0x10, 0x00}))
	}
	d := New(rw)

	st, err := d.ReadDeviceStatus(context.Background(), true)
	require.NoError(t, err)
	require.True(t, st.FanSpeedOutOfRange())
	require.True(t, st.FanFailure())
	require.False(t, st.LaserFailure())
	require.True(t, st.Fault())
}

func TestResetWaits(t *testing.T) {
	rw := newScriptRW()
	rw.onWrite = func(_ int, _ []byte) {
		rw.reply(encodeResp(t, CmdReset, nil))
	}
	d := New(rw)

	start := time.Now()
	require.NoError(t, d.Reset(context.Background()))
	require.True(t, time.Since(start) >= 20*time.Millisecond)
}
