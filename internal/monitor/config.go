package monitor

import (
	"fmt"
	"time"
)

// Config holds the configuration for the connection monitor.
type Config struct {
	// Interval is how often the backend is probed after the first check.
	// Default: 30 seconds
	Interval time.Duration

	// Paths are the liveness paths tried in order on every check.
	// Default: /health, /status, /ping, /
	Paths []string

	// ShutdownTimeout bounds how long Stop waits for an in-flight check.
	// Default: 5 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Interval:        30 * time.Second,
		Paths:           []string{"/health", "/status", "/ping", "/"},
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks if the configuration is valid.
// Returns an error if any values are invalid.
func (c Config) Validate() error {
	if c.Interval < 1*time.Second {
		return fmt.Errorf("interval must be at least 1 second, got %v", c.Interval)
	}
	if len(c.Paths) == 0 {
		return fmt.Errorf("at least one liveness path is required")
	}
	for _, p := range c.Paths {
		if len(p) == 0 || p[0] != '/' {
			return fmt.Errorf("liveness path must start with '/', got %q", p)
		}
	}
	if c.ShutdownTimeout < 100*time.Millisecond {
		return fmt.Errorf("shutdown timeout must be at least 100ms, got %v", c.ShutdownTimeout)
	}
	return nil
}

// SamplerConfig holds the configuration for the probe statistics sampler.
type SamplerConfig struct {
	// Interval between probes while sampling is on. Default: 10 seconds
	Interval time.Duration

	// HistorySize is how many recent samples are kept. Default: 10
	HistorySize int

	// Paths are passed to the prober on every sample.
	Paths []string
}

// DefaultSamplerConfig returns a SamplerConfig with sensible default values.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Interval:    10 * time.Second,
		HistorySize: 10,
		Paths:       []string{"/health", "/status", "/ping", "/"},
	}
}

// Validate checks if the configuration is valid.
func (c SamplerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("sampler interval must be positive, got %v", c.Interval)
	}
	if c.HistorySize < 1 {
		return fmt.Errorf("history size must be at least 1, got %d", c.HistorySize)
	}
	return nil
}
