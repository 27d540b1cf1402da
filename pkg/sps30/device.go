package sps30

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/airmon/sps30.go/pkg/shdlc"
)

// Device is the driver for one sensor. It takes exclusive ownership
// of the byte stream: nothing else may read from or write to it until
// the Device is closed.
//
// Device is safe for concurrent use. Because the wire protocol has no
// request identifier, concurrent calls are serialized, not
// interleaved: a call issued while another exchange is in flight
// waits for it to finish.
type Device struct {
	rw     io.ReadWriter
	config Config

	mu     sync.Mutex // serializes exchanges, guards format and out
	parser *shdlc.Parser
	out    []byte // reusable encode buffer
	format Format // representation selected by StartMeasurement

	readOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
	byteCh    chan byte
	readErr   chan error
}

// New creates a Device on rw. The stream must already be configured
// for the sensor's fixed UART settings (115200 baud, 8N1).
func New(rw io.ReadWriter, opts ...Option) *Device {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Device{
		rw:      rw,
		config:  cfg,
		parser:  shdlc.NewParser(cfg.ResponseCap),
		out:     make([]byte, 0, 2*(shdlc.MaxPayload+4)+2),
		format:  FormatFloat,
		done:    make(chan struct{}),
		byteCh:  make(chan byte, 256),
		readErr: make(chan error, 1),
	}
}

// Close releases the Device. If the underlying stream is an io.Closer
// it is closed too, unblocking a pending read. Exchanges issued after
// Close fail with ErrClosed.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		if c, ok := d.rw.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// startReader spawns the single reader goroutine feeding the byte
// channel. A read error stops it and stays latched in the error
// channel, failing every exchange from then on; Close stops it too.
func (d *Device) startReader() {
	d.readOnce.Do(func() {
		go func() {
			buf := make([]byte, 64)
			for {
				n, err := d.rw.Read(buf)
				for i := 0; i < n; i++ {
					select {
					case d.byteCh <- buf[i]:
					case <-d.done:
						return
					}
				}
				if err != nil {
					d.readErr <- err
					return
				}
			}
		}()
	})
}

// drainPending discards bytes that arrived outside an exchange, such
// as the tail of a response that came in after its timeout.
func (d *Device) drainPending() {
	for {
		select {
		case <-d.byteCh:
		default:
			return
		}
	}
}

func retryable(err error) bool {
	switch err.(type) {
	case *shdlc.FramingError, *shdlc.ChecksumError, *ResponseShapeError:
		return true
	}
	return err == ErrTimeout
}

func (d *Device) trace(cmd byte, attempt int, err error) {
	glog.V(2).Infof("sps30: cmd 0x%02X attempt %d failed: %v", cmd, attempt, err)
	if d.config.Trace != nil {
		d.config.Trace(TraceEvent{Cmd: cmd, Attempt: attempt, Err: err})
	}
}

// exchange performs one request/response round including retries.
// want is the exact expected response payload length, or anyLen.
// wake additionally writes the request once up front without waiting:
// a sleeping sensor swallows the first frame while its UART wakes up.
//
// The returned payload is a copy and remains valid after the next
// exchange.
func (d *Device) exchange(ctx context.Context, cmd byte, req []byte, want int, wake bool) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exchangeLocked(ctx, cmd, req, want, wake)
}

func (d *Device) exchangeLocked(ctx context.Context, cmd byte, req []byte, want int, wake bool) ([]byte, error) {
	select {
	case <-d.done:
		return nil, ErrClosed
	default:
	}
	d.startReader()

	out, err := shdlc.AppendFrame(d.out[:0], Address, cmd, req)
	if err != nil {
		return nil, err
	}
	d.out = out

	if wake {
		_, _ = d.rw.Write(out)
	}

	var last error
	for attempt := 1; attempt <= d.config.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d.drainPending()
		d.parser.Reset()

		glog.V(3).Infof("sps30: cmd 0x%02X attempt %d/%d", cmd, attempt, d.config.Attempts)
		if _, err := d.rw.Write(out); err != nil {
			return nil, &TransportError{Op: "write", Err: err}
		}

		data, err := d.await(ctx, cmd, want)
		if err == nil {
			return data, nil
		}
		if !retryable(err) {
			return nil, err
		}
		last = err
		d.trace(cmd, attempt, err)
	}
	return nil, &ExhaustedError{Attempts: d.config.Attempts, Last: last}
}

// await waits for a complete frame matching cmd and want, racing the
// byte stream against the timeout and the caller's context. The race
// is a genuine select: a byte arriving at the timeout boundary is not
// lost to a fixed read-then-check ordering.
func (d *Device) await(ctx context.Context, cmd byte, want int) ([]byte, error) {
	timeout := time.After(d.config.Timeout)
	for {
		select {
		case <-ctx.Done():
			d.parser.Reset()
			return nil, ctx.Err()
		case <-d.done:
			return nil, ErrClosed
		case err := <-d.readErr:
			// The reader is gone for good. Put the error back so
			// every later exchange sees the same failure instead of
			// timing out against a dead transport.
			d.readErr <- err
			return nil, &TransportError{Op: "read", Err: err}
		case <-timeout:
			return nil, ErrTimeout
		case b := <-d.byteCh:
			frame, err := d.parser.Parse(b)
			if err != nil {
				return nil, err
			}
			if frame == nil {
				continue
			}
			if frame.Addr != Address || frame.Cmd != cmd {
				return nil, &ResponseShapeError{Cmd: cmd, GotCmd: frame.Cmd, WantLen: want, GotLen: len(frame.Data)}
			}
			if want != anyLen && len(frame.Data) != want {
				return nil, &ResponseShapeError{Cmd: cmd, GotCmd: frame.Cmd, WantLen: want, GotLen: len(frame.Data)}
			}
			return append([]byte(nil), frame.Data...), nil
		}
	}
}

// StartMeasurement switches the sensor from idle to measurement mode.
// The format decides how ReadMeasurement responses are encoded and
// must be remembered by the driver: it cannot be recovered from the
// response frames.
func (d *Device) StartMeasurement(ctx context.Context, format Format) error {
	if !format.valid() {
		return fmt.Errorf("unsupported data format 0x%02X", byte(format))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.exchangeLocked(ctx, CmdStartMeasurement, []byte{subStartMeasurement, byte(format)}, 0, false); err != nil {
		return err
	}
	d.format = format
	return nil
}

// StopMeasurement returns the sensor to idle mode.
func (d *Device) StopMeasurement(ctx context.Context) error {
	_, err := d.exchange(ctx, CmdStopMeasurement, nil, 0, false)
	return err
}

// readSample checks the remembered format and reads a sample within
// one critical section, so a concurrent StartMeasurement cannot slip
// between the mode check and the wire exchange.
func (d *Device) readSample(ctx context.Context, format Format, want int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.format != format {
		return nil, ErrFormatMismatch
	}
	return d.exchangeLocked(ctx, CmdReadMeasuredData, nil, want, false)
}

// ReadMeasurement reads the latest sample. The measurement must have
// been started with FormatFloat.
func (d *Device) ReadMeasurement(ctx context.Context) (Measurement, error) {
	data, err := d.readSample(ctx, FormatFloat, measurementFloatSize)
	if err != nil {
		return Measurement{}, err
	}
	return DecodeMeasurement(data)
}

// ReadFixedMeasurement reads the latest sample in the unsigned
// integer representation. The measurement must have been started with
// FormatUint16.
func (d *Device) ReadFixedMeasurement(ctx context.Context) (FixedMeasurement, error) {
	data, err := d.readSample(ctx, FormatUint16, measurementUint16Size)
	if err != nil {
		return FixedMeasurement{}, err
	}
	return DecodeFixedMeasurement(data)
}

// Sleep puts the sensor into sleep mode. The UART interface is
// disabled until WakeUp.
func (d *Device) Sleep(ctx context.Context) error {
	_, err := d.exchange(ctx, CmdSleep, nil, 0, false)
	return err
}

// WakeUp transitions the sensor from sleep back to idle. The request
// is written once up front to activate the UART interface; the
// sensor only answers the repeated send.
func (d *Device) WakeUp(ctx context.Context) error {
	_, err := d.exchange(ctx, CmdWakeUp, nil, 0, true)
	return err
}

// StartFanCleaning runs the fan at maximum speed for ten seconds to
// blow out accumulated dust.
func (d *Device) StartFanCleaning(ctx context.Context) error {
	_, err := d.exchange(ctx, CmdStartFanCleaning, nil, 0, false)
	return err
}

// AutoCleaningInterval reads the automatic fan cleaning interval in
// seconds. Zero means disabled.
func (d *Device) AutoCleaningInterval(ctx context.Context) (uint32, error) {
	data, err := d.exchange(ctx, CmdAutoCleaningInterval, []byte{subReadInterval}, intervalSize, false)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data), nil
}

// SetAutoCleaningInterval writes the automatic fan cleaning interval
// in seconds. The value is stored in non-volatile memory.
func (d *Device) SetAutoCleaningInterval(ctx context.Context, seconds uint32) error {
	req := make([]byte, 5)
	req[0] = subWriteInterval
	binary.BigEndian.PutUint32(req[1:], seconds)
	_, err := d.exchange(ctx, CmdAutoCleaningInterval, req, 0, false)
	return err
}

// DeviceInformation reads one of the sensor's information strings.
func (d *Device) DeviceInformation(ctx context.Context, kind InfoKind) (string, error) {
	data, err := d.exchange(ctx, CmdDeviceInformation, []byte{byte(kind)}, anyLen, false)
	if err != nil {
		return "", err
	}
	if len(data) > maxInfoSize {
		return "", &ResponseShapeError{Cmd: CmdDeviceInformation, GotCmd: CmdDeviceInformation, WantLen: maxInfoSize, GotLen: len(data)}
	}
	return strings.TrimRight(string(data), "\x00"), nil
}

// SerialNumber reads the device serial number.
func (d *Device) SerialNumber(ctx context.Context) (string, error) {
	return d.DeviceInformation(ctx, InfoSerialNumber)
}

// ProductType reads the product type string.
func (d *Device) ProductType(ctx context.Context) (string, error) {
	return d.DeviceInformation(ctx, InfoProductType)
}

// ReadVersion reads firmware, hardware and protocol versions.
func (d *Device) ReadVersion(ctx context.Context) (Version, error) {
	data, err := d.exchange(ctx, CmdReadVersion, nil, versionSize, false)
	if err != nil {
		return Version{}, err
	}
	return DecodeVersion(data)
}

// ReadDeviceStatus reads the status register. With clear set, fault
// bits that support it are reset after reading.
func (d *Device) ReadDeviceStatus(ctx context.Context, clear bool) (DeviceStatus, error) {
	var flag byte
	if clear {
		flag = 1
	}
	data, err := d.exchange(ctx, CmdReadDeviceStatus, []byte{flag}, statusSize, false)
	if err != nil {
		return 0, err
	}
	return DecodeDeviceStatus(data)
}

// Reset reboots the sensor. The device needs roughly 20 ms before it
// accepts the next command; Reset waits that out, honoring ctx.
func (d *Device) Reset(ctx context.Context) error {
	if _, err := d.exchange(ctx, CmdReset, nil, 0, false); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
		return nil
	}
}
