package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// duration makes time.Duration parse from YAML strings like "30s".
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// Config is the daemon configuration, loaded from YAML.
type Config struct {
	Serial struct {
		Port string `yaml:"port"`
		Baud int    `yaml:"baud"`
	} `yaml:"serial"`
	// Sim replaces the serial port with a simulated sensor.
	Sim bool `yaml:"sim"`

	// Format is the measurement representation: "float" or "uint16".
	Format string `yaml:"format"`

	SampleInterval duration `yaml:"sample_interval"`
	StatusInterval duration `yaml:"status_interval"`

	MQTT struct {
		URL string `yaml:"url"`
	} `yaml:"mqtt"`
}

func defaultConfig() Config {
	var c Config
	c.Serial.Port = "/dev/ttyUSB0"
	c.Format = "float"
	c.SampleInterval = duration(10 * time.Second)
	c.StatusInterval = duration(5 * time.Minute)
	c.MQTT.URL = "mqtt://localhost:1883/airmon/"
	return c
}

func loadConfig(path string) (Config, error) {
	c := defaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %v", path, err)
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	if c.Format != "float" && c.Format != "uint16" {
		return fmt.Errorf("format must be float or uint16, got %q", c.Format)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("sample_interval must be positive")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive")
	}
	if !c.Sim && c.Serial.Port == "" {
		return fmt.Errorf("serial.port is required")
	}
	return nil
}
