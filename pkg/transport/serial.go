// Package transport provides byte streams for the sensor protocol: a
// real serial port and an in-memory pipe for tests and simulation.
package transport

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/tarm/serial"
)

// DefaultBaud is the sensor's fixed UART speed.
const DefaultBaud = 115200

// SerialConfig describes the serial port to open.
type SerialConfig struct {
	// Port is the device path, e.g. /dev/ttyUSB0.
	Port string
	// Baud is the line speed; zero means DefaultBaud.
	Baud int
}

// OpenSerial opens the serial port with 8N1 framing. The caller owns
// the returned port and must close it.
func OpenSerial(cfg SerialConfig) (*serial.Port, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial port not specified")
	}
	baud := cfg.Baud
	if baud == 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name: cfg.Port,
		Baud: baud,
		Size: 8,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", cfg.Port, err)
	}
	glog.V(1).Infof("transport: opened %s at %d baud", cfg.Port, baud)
	return port, nil
}
