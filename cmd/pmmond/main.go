// Command pmmond samples a particulate matter sensor and publishes
// the readings over MQTT. It also listens for remote maintenance
// commands (fan cleaning, status clear, reset).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/airmon/sps30.go/pkg/mqtt"
	"github.com/airmon/sps30.go/pkg/sim"
	"github.com/airmon/sps30.go/pkg/sps30"
	"github.com/airmon/sps30.go/pkg/transport"
)

//go-build: CGO_ENABLED=0

var (
	configPath = ""
	mqttURL    = ""
)

func init() {
	if val := os.Getenv("PMMOND_CONFIG"); val != "" {
		configPath = val
	}
	flag.StringVar(&configPath, "config", configPath, "Path to YAML config.")
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL, overrides config.")
}

type sample struct {
	Time time.Time `json:"time"`
	sps30.Measurement
}

type fixedSample struct {
	Time time.Time `json:"time"`
	sps30.FixedMeasurement
}

type statusReport struct {
	Time               time.Time `json:"time"`
	FanFailure         bool      `json:"fan_failure"`
	LaserFailure       bool      `json:"laser_failure"`
	FanSpeedOutOfRange bool      `json:"fan_speed_range"`
	Fault              bool      `json:"fault"`
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := loadConfig(configPath)
	if err != nil {
		glog.Exitf("config: %v", err)
	}
	if mqttURL != "" {
		conf.MQTT.URL = mqttURL
	}

	var stream io.ReadWriter
	if conf.Sim {
		driverEnd, sensorEnd := transport.Pipe()
		go sim.NewSensor().Serve(sensorEnd)
		stream = driverEnd
	} else {
		port, err := transport.OpenSerial(transport.SerialConfig{
			Port: conf.Serial.Port,
			Baud: conf.Serial.Baud,
		})
		if err != nil {
			glog.Exit(err)
		}
		defer port.Close()
		stream = port
	}
	dev := sps30.New(stream)

	queue, err := newQueue(conf.MQTT.URL)
	if err != nil {
		glog.Exit(err)
	}
	if err := queue.Connect(); err != nil {
		glog.Exitf("mqtt connect: %v", err)
	}
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("received %v, shutting down", sig)
		cancel()
	}()

	run(ctx, conf, dev, queue)
}

// newQueue builds the queue, deriving a stable client ID from the
// machine when the URL does not carry one.
func newQueue(brokerURL string) (*mqtt.Queue, error) {
	opts, prefix, err := mqtt.ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	if opts.ClientID == "" {
		if id, err := machineid.ProtectedID("pmmond"); err == nil {
			opts.SetClientID("pmmond-" + id[:12])
		} else {
			glog.Warningf("machine id unavailable: %v", err)
		}
	}
	return mqtt.NewQueue(opts, prefix), nil
}

func run(ctx context.Context, conf Config, dev *sps30.Device, queue *mqtt.Queue) {
	format := sps30.FormatFloat
	if conf.Format == "uint16" {
		format = sps30.FormatUint16
	}

	// The sensor may still be asleep from a previous run.
	if err := dev.WakeUp(ctx); err != nil {
		glog.Warningf("wake up: %v", err)
	}
	if err := dev.StartMeasurement(ctx, format); err != nil {
		glog.Exitf("start measurement: %v", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dev.StopMeasurement(stopCtx); err != nil {
			glog.Warningf("stop measurement: %v", err)
		}
	}()

	if serial, err := dev.SerialNumber(ctx); err == nil {
		glog.Infof("sensor serial %s", serial)
	}

	queue.Sub("cmd", func(_ string, payload []byte) {
		go handleCommand(ctx, dev, queue, format, string(payload))
	})

	sampleTick := time.NewTicker(time.Duration(conf.SampleInterval))
	defer sampleTick.Stop()
	statusTick := time.NewTicker(time.Duration(conf.StatusInterval))
	defer statusTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sampleTick.C:
			publishSample(ctx, dev, queue, format)
		case <-statusTick.C:
			publishStatus(ctx, dev, queue)
		}
	}
}

func publishSample(ctx context.Context, dev *sps30.Device, queue *mqtt.Queue, format sps30.Format) {
	var payload interface{}
	if format == sps30.FormatUint16 {
		m, err := dev.ReadFixedMeasurement(ctx)
		if err != nil {
			glog.Errorf("read measurement: %v", err)
			return
		}
		payload = fixedSample{Time: time.Now().UTC(), FixedMeasurement: m}
	} else {
		m, err := dev.ReadMeasurement(ctx)
		if err != nil {
			glog.Errorf("read measurement: %v", err)
			return
		}
		payload = sample{Time: time.Now().UTC(), Measurement: m}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		glog.Errorf("encode sample: %v", err)
		return
	}
	queue.Pub("sample", out)
}

func publishStatus(ctx context.Context, dev *sps30.Device, queue *mqtt.Queue) {
	st, err := dev.ReadDeviceStatus(ctx, false)
	if err != nil {
		glog.Errorf("read status: %v", err)
		return
	}
	if st.Fault() {
		glog.Warningf("sensor fault: %s", st)
	}
	out, err := json.Marshal(statusReport{
		Time:               time.Now().UTC(),
		FanFailure:         st.FanFailure(),
		LaserFailure:       st.LaserFailure(),
		FanSpeedOutOfRange: st.FanSpeedOutOfRange(),
		Fault:              st.Fault(),
	})
	if err != nil {
		glog.Errorf("encode status: %v", err)
		return
	}
	queue.PubWith("status", out, 0, true)
}

func handleCommand(ctx context.Context, dev *sps30.Device, queue *mqtt.Queue, format sps30.Format, cmd string) {
	glog.Infof("command %q", cmd)
	var err error
	switch cmd {
	case "clean":
		err = dev.StartFanCleaning(ctx)
	case "clear-status":
		_, err = dev.ReadDeviceStatus(ctx, true)
	case "reset":
		// A reboot drops the sensor back to idle mode.
		if err = dev.Reset(ctx); err == nil {
			err = dev.StartMeasurement(ctx, format)
		}
	default:
		glog.Warningf("unknown command %q", cmd)
		return
	}
	if err != nil {
		glog.Errorf("command %q: %v", cmd, err)
		return
	}
	queue.Pub("cmd/ack", []byte(cmd))
}
