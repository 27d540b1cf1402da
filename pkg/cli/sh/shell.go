// Package sh provides the interactive sensor shell backing pmcli.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/airmon/sps30.go/pkg/sps30"
)

// Shell provides an ishell backed interactive shell around a sensor.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Device *sps30.Device
}

const shellKey = "$shell"

var (
	// flags

	evalOnly   bool
	outputJSON bool

	commands = []*ishell.Cmd{
		&StartCmd,
		&StopCmd,
		&MeasureCmd,
		&SleepCmd,
		&WakeCmd,
		&CleanCmd,
		&IntervalCmd,
		&InfoCmd,
		&VersionCmd,
		&StatusCmd,
		&ResetCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// New creates a new shell around dev.
func New(dev *sps30.Device) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:  ishell.New(),
		Device: dev,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("sps30 > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// Run runs the shell: interactively, or processing args once.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// cmdCtx bounds a single shell command. It is generous compared to
// the driver's per-exchange timeout so retries fit inside it.
func cmdCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func (s *Shell) print(c *ishell.Context, v interface{}, plain string) {
	if s.OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Println(plain)
}

func run(c *ishell.Context, fn func(ctx context.Context, s *Shell) error) {
	s := ShellFrom(c)
	ctx, cancel := cmdCtx()
	defer cancel()
	if err := fn(ctx, s); err != nil {
		c.Err(err)
	}
}

var (
	// StartCmd starts measurement mode.
	StartCmd = ishell.Cmd{
		Name:    "start",
		Aliases: []string{"s"},
		Help:    "[float|uint16]",
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				format := sps30.FormatFloat
				if len(c.Args) > 0 {
					switch c.Args[0] {
					case "float":
					case "uint16":
						format = sps30.FormatUint16
					default:
						return fmt.Errorf("unknown format %q", c.Args[0])
					}
				}
				if err := s.Device.StartMeasurement(ctx, format); err != nil {
					return err
				}
				c.Println("OK")
				return nil
			})
		},
	}

	// StopCmd stops measurement mode.
	StopCmd = ishell.Cmd{
		Name: "stop",
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				if err := s.Device.StopMeasurement(ctx); err != nil {
					return err
				}
				c.Println("OK")
				return nil
			})
		},
	}

	// MeasureCmd reads one sample in whichever format the measurement
	// was started with.
	MeasureCmd = ishell.Cmd{
		Name:    "measure",
		Aliases: []string{"m", "read"},
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				m, err := s.Device.ReadMeasurement(ctx)
				if err == sps30.ErrFormatMismatch {
					f, ferr := s.Device.ReadFixedMeasurement(ctx)
					if ferr != nil {
						return ferr
					}
					s.print(c, f, fmt.Sprintf("PM1.0 %d PM2.5 %d PM4.0 %d PM10 %d µg/m³",
						f.MassPM1_0, f.MassPM2_5, f.MassPM4_0, f.MassPM10))
					return nil
				}
				if err != nil {
					return err
				}
				s.print(c, m, fmt.Sprintf("PM1.0 %.2f PM2.5 %.2f PM4.0 %.2f PM10 %.2f µg/m³, typ. %.2f µm",
					m.MassPM1_0, m.MassPM2_5, m.MassPM4_0, m.MassPM10, m.TypicalParticleSize))
				return nil
			})
		},
	}

	// SleepCmd puts the sensor to sleep.
	SleepCmd = ishell.Cmd{
		Name: "sleep",
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				if err := s.Device.Sleep(ctx); err != nil {
					return err
				}
				c.Println("OK")
				return nil
			})
		},
	}

	// WakeCmd wakes the sensor up.
	WakeCmd = ishell.Cmd{
		Name:    "wake",
		Aliases: []string{"wakeup"},
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				if err := s.Device.WakeUp(ctx); err != nil {
					return err
				}
				c.Println("OK")
				return nil
			})
		},
	}

	// CleanCmd starts a manual fan cleaning cycle.
	CleanCmd = ishell.Cmd{
		Name: "clean",
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				if err := s.Device.StartFanCleaning(ctx); err != nil {
					return err
				}
				c.Println("OK")
				return nil
			})
		},
	}

	// IntervalCmd reads or writes the auto cleaning interval.
	IntervalCmd = ishell.Cmd{
		Name: "interval",
		Help: "[seconds]",
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				if len(c.Args) > 0 {
					secs, err := strconv.ParseUint(c.Args[0], 10, 32)
					if err != nil {
						return fmt.Errorf("bad interval %q: %v", c.Args[0], err)
					}
					if err := s.Device.SetAutoCleaningInterval(ctx, uint32(secs)); err != nil {
						return err
					}
					c.Println("OK")
					return nil
				}
				secs, err := s.Device.AutoCleaningInterval(ctx)
				if err != nil {
					return err
				}
				s.print(c, map[string]uint32{"interval": secs}, fmt.Sprintf("%d s", secs))
				return nil
			})
		},
	}

	// InfoCmd prints product type and serial number.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				ptype, err := s.Device.ProductType(ctx)
				if err != nil {
					return err
				}
				serial, err := s.Device.SerialNumber(ctx)
				if err != nil {
					return err
				}
				s.print(c, map[string]string{"product": ptype, "serial": serial},
					fmt.Sprintf("product %s, serial %s", ptype, serial))
				return nil
			})
		},
	}

	// VersionCmd prints firmware, hardware and protocol versions.
	VersionCmd = ishell.Cmd{
		Name:    "version",
		Aliases: []string{"v"},
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				v, err := s.Device.ReadVersion(ctx)
				if err != nil {
					return err
				}
				s.print(c, v, v.String())
				return nil
			})
		},
	}

	// StatusCmd reads the device status register.
	StatusCmd = ishell.Cmd{
		Name: "status",
		Help: "[clear]",
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				clear := len(c.Args) > 0 && c.Args[0] == "clear"
				st, err := s.Device.ReadDeviceStatus(ctx, clear)
				if err != nil {
					return err
				}
				s.print(c, map[string]interface{}{
					"fan_failure":     st.FanFailure(),
					"laser_failure":   st.LaserFailure(),
					"fan_speed_range": st.FanSpeedOutOfRange(),
					"fault":           st.Fault(),
				}, st.String())
				return nil
			})
		},
	}

	// ResetCmd reboots the sensor.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Func: func(c *ishell.Context) {
			run(c, func(ctx context.Context, s *Shell) error {
				if err := s.Device.Reset(ctx); err != nil {
					return err
				}
				c.Println("OK")
				return nil
			})
		},
	}
)
