package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/ordo/internal/solver"
	"github.com/rs/zerolog"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Solver.Acceptance != AcceptanceGreedy {
		t.Errorf("Expected greedy default, got %q", cfg.Solver.Acceptance)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected 0600, got %o", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "listen: 127.0.0.1:9999\nsolver:\n  acceptance: Annealing\n  tick_interval: 250ms\n  seed: 7\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:9999" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.Solver.Acceptance != AcceptanceAnnealing {
		t.Errorf("Acceptance = %q", cfg.Solver.Acceptance)
	}
	if cfg.TickInterval() != 250*time.Millisecond {
		t.Errorf("TickInterval = %v", cfg.TickInterval())
	}
	if cfg.Solver.SpanMS != 10_000_000 || cfg.Log.Level != "info" || cfg.DBPath == "" {
		t.Errorf("Defaults not filled: %+v", cfg)
	}
}

func TestLoadRejectsUnknownAcceptance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("solver:\n  acceptance: tabu\n"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Expected error for unknown acceptance policy")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.DBPath = "/tmp/x.db"
	cfg.Solver.Cooling = 0.5

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.DBPath != "/tmp/x.db" || got.Solver.Cooling != 0.5 {
		t.Errorf("Round trip mismatch: %+v", got)
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := DefaultConfig()
	opts := cfg.Solver.SessionOptions(zerolog.Nop())
	if _, ok := opts.Acceptance.(solver.Greedy); !ok {
		t.Errorf("Expected Greedy, got %T", opts.Acceptance)
	}
	if opts.Span != cfg.Solver.SpanMS || opts.Scheduler.Interval() != cfg.TickInterval() {
		t.Errorf("Unexpected options: %+v", opts)
	}

	cfg.Solver.Acceptance = AcceptanceAnnealing
	cfg.Solver.Seed = 1
	opts = cfg.Solver.SessionOptions(zerolog.Nop())
	a, ok := opts.Acceptance.(*solver.Annealing)
	if !ok {
		t.Fatalf("Expected *Annealing, got %T", opts.Acceptance)
	}
	if a.Temperature() != cfg.Solver.InitialTemperature {
		t.Errorf("Temperature = %v", a.Temperature())
	}
}
