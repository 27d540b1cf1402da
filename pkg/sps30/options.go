package sps30

import "time"

// TraceEvent describes one failed exchange attempt. Every retried
// failure is reported; nothing is dropped silently.
type TraceEvent struct {
	Cmd     byte
	Attempt int
	Err     error
}

// TraceFunc receives TraceEvents. Implementations must be fast and
// must not call back into the Device.
type TraceFunc func(TraceEvent)

// Config holds the Device tuning knobs.
type Config struct {
	// Timeout bounds the wait for a valid response frame per attempt.
	Timeout time.Duration

	// Attempts is the total number of times a request is sent before
	// the exchange fails with ExhaustedError.
	Attempts int

	// ResponseCap is the decode buffer capacity in bytes. Responses
	// declaring more payload fail with shdlc.OverflowError.
	ResponseCap int

	// Trace, if set, observes every failed attempt.
	Trace TraceFunc
}

func defaultConfig() Config {
	return Config{
		Timeout:     500 * time.Millisecond,
		Attempts:    3,
		ResponseCap: measurementFloatSize,
	}
}

// Option configures a Device.
type Option func(*Config)

// WithTimeout sets the per-attempt response timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Timeout = d
		}
	}
}

// WithAttempts sets the total number of send attempts per exchange.
func WithAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.Attempts = n
		}
	}
}

// WithResponseCapacity sets the decode buffer capacity. The default
// fits the largest SPS30 response (a floating point measurement).
func WithResponseCapacity(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.ResponseCap = n
		}
	}
}

// WithTrace installs a hook observing every failed exchange attempt.
func WithTrace(fn TraceFunc) Option {
	return func(c *Config) {
		c.Trace = fn
	}
}
