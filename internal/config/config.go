// Package config loads and saves the ordo YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"math/rand"
	"strings"
	"time"

	"github.com/fentz26/ordo/internal/scheduler"
	"github.com/fentz26/ordo/internal/solver"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Acceptance policy names.
const (
	AcceptanceGreedy    = "greedy"
	AcceptanceAnnealing = "annealing"
)

// LogConfig controls process logging.
type LogConfig struct {
	// Level is a zerolog level name (debug, info, warn, error).
	Level string `yaml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format"`
}

// SolverConfig tunes the optimizer.
type SolverConfig struct {
	scheduler.Config `yaml:",inline"`

	// SpanMS is the width of the window a goal's start is shifted within.
	SpanMS int64 `yaml:"span_ms"`

	// Acceptance selects the acceptance policy: "greedy" (default) or
	// "annealing".
	Acceptance string `yaml:"acceptance"`

	// InitialTemperature and Cooling only apply to "annealing".
	InitialTemperature float64 `yaml:"initial_temperature"`
	Cooling            float64 `yaml:"cooling"`

	// Seed fixes the random source when non-zero.
	Seed int64 `yaml:"seed"`
}

// Config is the top-level application configuration.
type Config struct {
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// Listen is the HTTP listen address of the daemon.
	Listen string `yaml:"listen"`

	Log    LogConfig    `yaml:"log"`
	Solver SolverConfig `yaml:"solver"`
}

// DefaultDir returns ~/.ordo, falling back to the working directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ordo"
	}
	return filepath.Join(home, ".ordo")
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DBPath: filepath.Join(DefaultDir(), "ordo.db"),
		Listen: "127.0.0.1:7466",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Solver: SolverConfig{
			Config:             scheduler.Config{TickInterval: scheduler.DefaultTickInterval},
			SpanMS:             10_000_000,
			Acceptance:         AcceptanceGreedy,
			InitialTemperature: 1e6,
			Cooling:            0.999,
		},
	}
}

// Normalize fills in missing values with defaults.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Solver.TickInterval <= 0 {
		c.Solver.TickInterval = def.Solver.TickInterval
	}
	if c.Solver.SpanMS <= 0 {
		c.Solver.SpanMS = def.Solver.SpanMS
	}
	c.Solver.Acceptance = strings.ToLower(strings.TrimSpace(c.Solver.Acceptance))
	if c.Solver.Acceptance == "" {
		c.Solver.Acceptance = def.Solver.Acceptance
	}
	if c.Solver.InitialTemperature <= 0 {
		c.Solver.InitialTemperature = def.Solver.InitialTemperature
	}
	if c.Solver.Cooling <= 0 || c.Solver.Cooling > 1 {
		c.Solver.Cooling = def.Solver.Cooling
	}
}

// Validate reports configuration values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Solver.Acceptance {
	case AcceptanceGreedy, AcceptanceAnnealing:
	default:
		return fmt.Errorf("unknown acceptance policy %q", c.Solver.Acceptance)
	}
	return nil
}

// Load loads configuration from the given YAML path. A missing file is
// created with the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".ordo-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// TickInterval is a convenience accessor for the solver cadence.
func (c *Config) TickInterval() time.Duration {
	return c.Solver.Interval()
}

// SessionOptions builds solver options from the solver settings.
func (c *SolverConfig) SessionOptions(logger zerolog.Logger) solver.Options {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))

	var accept solver.Acceptance = solver.Greedy{}
	if c.Acceptance == AcceptanceAnnealing {
		accept = solver.NewAnnealing(r, c.InitialTemperature, c.Cooling)
	}

	sched := c.Config
	return solver.Options{
		Rand:       r,
		Acceptance: accept,
		Span:       c.SpanMS,
		Scheduler:  &sched,
		Logger:     logger,
	}
}
