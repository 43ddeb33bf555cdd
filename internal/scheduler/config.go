// Package scheduler provides the cancellable repeating task that drives
// optimizer ticks.
package scheduler

import "time"

// DefaultTickInterval is the pause between the end of one tick and the
// start of the next.
const DefaultTickInterval = 100 * time.Millisecond

// Config defines the repeater configuration.
type Config struct {
	// TickInterval is the delay re-armed after each completed tick.
	TickInterval time.Duration `yaml:"tick_interval"`
}

// DefaultConfig returns the default repeater configuration.
func DefaultConfig() *Config {
	return &Config{
		TickInterval: DefaultTickInterval,
	}
}

// Interval returns the configured tick interval, falling back to the default.
func (c *Config) Interval() time.Duration {
	if c == nil || c.TickInterval <= 0 {
		return DefaultTickInterval
	}
	return c.TickInterval
}
