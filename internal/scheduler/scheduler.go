package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is one unit of work run by a Repeater.
type TickFunc func(ctx context.Context)

// Repeater runs a TickFunc on a fixed cadence. The next tick is armed only
// after the previous one returns, so ticks never overlap.
type Repeater struct {
	interval time.Duration
	tick     TickFunc
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	ticks   uint64

	// Control
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a stopped repeater.
func New(cfg *Config, tick TickFunc, logger zerolog.Logger) *Repeater {
	return &Repeater{
		interval: cfg.Interval(),
		tick:     tick,
		logger:   logger.With().Str("component", "repeater").Logger(),
	}
}

// Start begins the tick loop. Starting a running repeater is a no-op.
func (r *Repeater) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.running = true
	go r.loop(ctx, r.done)
	r.logger.Debug().Dur("interval", r.interval).Msg("repeater started")
}

// Stop cancels the loop and waits for an in-flight tick to return. Once
// Stop returns no further tick will start.
func (r *Repeater) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	done := r.done
	r.mu.Unlock()

	<-done
	r.logger.Debug().Uint64("ticks", r.Ticks()).Msg("repeater stopped")
}

// Running reports whether the loop is armed.
func (r *Repeater) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Ticks returns how many ticks have completed since creation.
func (r *Repeater) Ticks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks
}

func (r *Repeater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// A cancel racing with the timer must still win.
		if ctx.Err() != nil {
			return
		}
		r.tick(ctx)

		r.mu.Lock()
		r.ticks++
		r.mu.Unlock()

		timer.Reset(r.interval)
	}
}
