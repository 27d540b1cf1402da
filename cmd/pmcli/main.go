package main

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/airmon/sps30.go/pkg/cli/sh"
	"github.com/airmon/sps30.go/pkg/sim"
	"github.com/airmon/sps30.go/pkg/sps30"
	"github.com/airmon/sps30.go/pkg/transport"
)

//go-build: CGO_ENABLED=0

var (
	portName = "/dev/ttyUSB0"
	baud     = transport.DefaultBaud
	useSim   bool
)

func init() {
	flag.StringVar(&portName, "port", portName, "Serial port of the sensor.")
	flag.IntVar(&baud, "baud", baud, "Serial baud rate.")
	flag.BoolVar(&useSim, "sim", useSim, "Use a simulated sensor instead of hardware.")
}

func main() {
	flag.Parse()
	defer glog.Flush()

	var dev *sps30.Device
	if useSim {
		driverEnd, sensorEnd := transport.Pipe()
		go sim.NewSensor().Serve(sensorEnd)
		dev = sps30.New(driverEnd)
	} else {
		port, err := transport.OpenSerial(transport.SerialConfig{Port: portName, Baud: baud})
		if err != nil {
			log.Fatalln(err)
		}
		defer port.Close()
		dev = sps30.New(port)
	}

	sh.New(dev).Run(flag.Args()...)
}
