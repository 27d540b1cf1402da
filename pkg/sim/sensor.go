// Package sim implements a simulated particulate matter sensor
// speaking the framed serial protocol. It backs the CLI's -sim mode
// and integration style tests that need a full request/response peer
// without hardware.
package sim

import (
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/golang/glog"

	"github.com/airmon/sps30.go/pkg/shdlc"
	"github.com/airmon/sps30.go/pkg/sps30"
)

// Sensor is a simulated device. The exported fields configure what it
// reports; change them before Serve or between exchanges.
type Sensor struct {
	Values      [10]float32
	FixedValues [10]uint16
	Serial      string
	Product     string
	Firmware    [2]byte
	Hardware    byte
	Status      uint32
	Interval    uint32

	mu          sync.Mutex
	measuring   bool
	sleeping    bool
	format      sps30.Format
	dropNext    int
	corruptNext int
}

// NewSensor returns a simulated sensor with plausible defaults.
func NewSensor() *Sensor {
	return &Sensor{
		Values:      [10]float32{2.3, 2.4, 2.5, 2.5, 15.7, 18.1, 18.5, 18.5, 18.5, 0.59},
		FixedValues: [10]uint16{2, 2, 2, 2, 15, 18, 18, 18, 18, 0},
		Serial:      "0123456789ABCDEF",
		Product:     "00080000",
		Firmware:    [2]byte{2, 2},
		Hardware:    7,
		Interval:    604800,
	}
}

// DropNext makes the sensor swallow the next n responses. The driver
// sees timeouts.
func (s *Sensor) DropNext(n int) {
	s.mu.Lock()
	s.dropNext = n
	s.mu.Unlock()
}

// CorruptNext makes the sensor flip a payload bit in the next n
// responses. The driver sees checksum failures.
func (s *Sensor) CorruptNext(n int) {
	s.mu.Lock()
	s.corruptNext = n
	s.mu.Unlock()
}

// Serve reads request frames from rw and writes responses until a
// read error. It returns the read error, io.EOF included.
func (s *Sensor) Serve(rw io.ReadWriter) error {
	parser := shdlc.NewParser(shdlc.MaxPayload)
	buf := make([]byte, 64)
	for {
		n, err := rw.Read(buf)
		for i := 0; i < n; i++ {
			frame, perr := parser.Parse(buf[i])
			if perr != nil {
				glog.V(2).Infof("sim: dropping bad request: %v", perr)
				parser.Reset()
				continue
			}
			if frame == nil {
				continue
			}
			s.respond(rw, frame)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Sensor) respond(w io.Writer, req *shdlc.Frame) {
	data, reply := s.handle(req)
	if !reply {
		return
	}
	s.mu.Lock()
	drop := s.dropNext > 0
	if drop {
		s.dropNext--
	}
	corrupt := !drop && s.corruptNext > 0
	if corrupt {
		s.corruptNext--
	}
	s.mu.Unlock()
	if drop {
		glog.V(2).Infof("sim: dropping response to cmd 0x%02X", req.Cmd)
		return
	}

	out, err := shdlc.EncodeFrame(sps30.Address, req.Cmd, data)
	if err != nil {
		glog.Errorf("sim: encode response: %v", err)
		return
	}
	if corrupt {
		// Flip a bit in the length byte. The frame no longer parses
		// cleanly, and none of the lengths used here turns into a
		// reserved byte that would need restuffing.
		out[3] ^= 0x01
	}
	if _, err := w.Write(out); err != nil {
		glog.V(1).Infof("sim: write response: %v", err)
	}
}

// handle runs one command against the device state. reply is false
// when the sensor stays silent, as it does for everything but a wake
// up request while sleeping.
func (s *Sensor) handle(req *shdlc.Frame) (data []byte, reply bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sleeping {
		if req.Cmd == sps30.CmdWakeUp {
			s.sleeping = false
		}
		return nil, false
	}

	switch req.Cmd {
	case sps30.CmdStartMeasurement:
		if len(req.Data) != 2 {
			return nil, false
		}
		s.measuring = true
		s.format = sps30.Format(req.Data[1])
		return nil, true
	case sps30.CmdStopMeasurement:
		s.measuring = false
		return nil, true
	case sps30.CmdReadMeasuredData:
		if !s.measuring {
			return nil, true
		}
		return s.sample(), true
	case sps30.CmdSleep:
		s.sleeping = true
		return nil, true
	case sps30.CmdWakeUp:
		return nil, true
	case sps30.CmdStartFanCleaning:
		return nil, true
	case sps30.CmdAutoCleaningInterval:
		if len(req.Data) == 5 {
			s.Interval = binary.BigEndian.Uint32(req.Data[1:])
			return nil, true
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, s.Interval)
		return out, true
	case sps30.CmdDeviceInformation:
		if len(req.Data) != 1 {
			return nil, false
		}
		if sps30.InfoKind(req.Data[0]) == sps30.InfoSerialNumber {
			return append([]byte(s.Serial), 0), true
		}
		return append([]byte(s.Product), 0), true
	case sps30.CmdReadVersion:
		return []byte{s.Firmware[0], s.Firmware[1], 0, s.Hardware, 0, 2, 0}, true
	case sps30.CmdReadDeviceStatus:
		out := make([]byte, 5)
		binary.BigEndian.PutUint32(out, s.Status)
		return out, true
	case sps30.CmdReset:
		s.measuring = false
		s.format = 0
		return nil, true
	}
	return nil, false
}

func (s *Sensor) sample() []byte {
	if s.format == sps30.FormatUint16 {
		out := make([]byte, 20)
		for i, v := range s.FixedValues {
			binary.BigEndian.PutUint16(out[2*i:], v)
		}
		return out
	}
	out := make([]byte, 40)
	for i, v := range s.Values {
		binary.BigEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}
