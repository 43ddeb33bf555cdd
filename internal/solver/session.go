// Package solver assigns start times to pending goals so that the summed
// integral of their utility curves grows, using a one-goal-at-a-time local
// search driven by a repeating tick.
package solver

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fentz26/ordo/internal/scheduler"
	"github.com/fentz26/ordo/internal/utility"
	"github.com/rs/zerolog"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoadFailed
	StateIdle
	StateIterating
	StatePaused
	StateCommitting
	StateCommitted
	StateCancelled
)

var stateNames = map[State]string{
	StateUnloaded:   "unloaded",
	StateLoading:    "loading",
	StateLoadFailed: "load_failed",
	StateIdle:       "idle",
	StateIterating:  "iterating",
	StatePaused:     "paused",
	StateCommitting: "committing",
	StateCommitted:  "committed",
	StateCancelled:  "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateCancelled
}

// Input is one goal as supplied by a Loader.
type Input struct {
	GoalID   string
	Duration int64
	Points   []utility.Point
	Start    int64
}

// Loader supplies the goals to optimize.
type Loader interface {
	LoadGoals(ctx context.Context) ([]Input, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) ([]Input, error)

// LoadGoals implements Loader.
func (f LoaderFunc) LoadGoals(ctx context.Context) ([]Input, error) { return f(ctx) }

// Sink records the final schedule of one goal.
type Sink interface {
	RecordSchedule(ctx context.Context, goalID string, start, end int64) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, goalID string, start, end int64) error

// RecordSchedule implements Sink.
func (f SinkFunc) RecordSchedule(ctx context.Context, goalID string, start, end int64) error {
	return f(ctx, goalID, start, end)
}

// CommitFailure is one goal whose schedule could not be recorded.
type CommitFailure struct {
	GoalID string
	Err    error
}

// CommitReport lists which goals were recorded and which failed.
type CommitReport struct {
	Committed []string
	Failed    []CommitFailure
}

// FailedIDs returns the ids of goals that failed to commit.
func (r CommitReport) FailedIDs() []string {
	ids := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		ids[i] = f.GoalID
	}
	return ids
}

// Snapshot is a read-only view of a session for rendering.
type Snapshot struct {
	State     State
	Iteration uint64
	Accepted  uint64
	// LastAccepted reports the outcome of the most recent tick.
	LastAccepted bool
	Value        float64
	Goals        Assignment
	LoadErr      error
}

// Observer is called after every tick with a fresh snapshot.
type Observer func(Snapshot)

// Options configures a Session. Zero values select the defaults.
type Options struct {
	Rand       Rand
	Acceptance Acceptance
	Span       int64
	Scheduler  *scheduler.Config
	Logger     zerolog.Logger
}

// Session owns one optimize run from load to commit or cancel.
type Session struct {
	loader Loader
	sink   Sink
	rand   Rand
	accept Acceptance
	span   int64
	logger zerolog.Logger

	repeater *scheduler.Repeater

	mu           sync.Mutex
	state        State
	current      Assignment
	value        float64
	iteration    uint64
	accepted     uint64
	lastAccepted bool
	loadErr      error
	observers    []Observer
}

// NewSession creates an unloaded session.
func NewSession(loader Loader, sink Sink, opts Options) *Session {
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Acceptance == nil {
		opts.Acceptance = Greedy{}
	}
	if opts.Span <= 0 {
		opts.Span = DefaultSpan
	}

	s := &Session{
		loader: loader,
		sink:   sink,
		rand:   opts.Rand,
		accept: opts.Acceptance,
		span:   opts.Span,
		logger: opts.Logger.With().Str("component", "solver").Logger(),
	}
	s.repeater = scheduler.New(opts.Scheduler, s.tick, opts.Logger)
	return s
}

// Observe registers fn to receive a snapshot after every tick.
func (s *Session) Observe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoadErr returns the cause of the last failed load.
func (s *Session) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:        s.state,
		Iteration:    s.iteration,
		Accepted:     s.accepted,
		LastAccepted: s.lastAccepted,
		Value:        s.value,
		Goals:        s.current.Clone(),
		LoadErr:      s.loadErr,
	}
}

// Load fetches the goals to optimize. On failure the session moves to
// StateLoadFailed and Load may be retried.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateUnloaded && s.state != StateLoadFailed {
		defer s.mu.Unlock()
		return s.invalid("load")
	}
	s.state = StateLoading
	s.mu.Unlock()

	goals, value, err := s.load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading {
		// cancelled while loading
		return s.invalid("load")
	}
	if err != nil {
		s.state = StateLoadFailed
		s.loadErr = err
		s.logger.Error().Err(err).Msg("load failed")
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	s.state = StateIdle
	s.loadErr = nil
	s.current = goals
	s.value = value
	s.logger.Info().Int("goals", len(goals)).Float64("value", value).Msg("goals loaded")
	return nil
}

func (s *Session) load(ctx context.Context) (Assignment, float64, error) {
	inputs, err := s.loader.LoadGoals(ctx)
	if err != nil {
		return nil, 0, err
	}

	goals := make(Assignment, 0, len(inputs))
	for _, in := range inputs {
		u, err := utility.New(in.Points)
		if err != nil {
			return nil, 0, fmt.Errorf("goal %s: %w", in.GoalID, err)
		}
		g, err := NewGoal(in.GoalID, in.Duration, u, in.Start)
		if err != nil {
			return nil, 0, err
		}
		goals = append(goals, g)
	}

	value, err := ExpectedValue(goals)
	if err != nil {
		return nil, 0, err
	}
	return goals, value, nil
}

// Start begins iterating from Idle or Paused.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle && s.state != StatePaused {
		return s.invalid("start")
	}
	s.state = StateIterating
	s.repeater.Start()
	s.logger.Info().Uint64("iteration", s.iteration).Msg("optimization started")
	return nil
}

// Stop pauses iteration. When Stop returns no further tick will run.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != StateIterating {
		defer s.mu.Unlock()
		return s.invalid("stop")
	}
	s.state = StatePaused
	s.mu.Unlock()

	s.repeater.Stop()
	snap := s.Snapshot()
	s.logger.Info().Uint64("iteration", snap.Iteration).Float64("value", snap.Value).Msg("optimization paused")
	return nil
}

// Step runs one tick by hand. It is allowed while Idle, Iterating or Paused
// and reports whether the candidate was accepted.
func (s *Session) Step() (bool, error) {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateIterating, StatePaused:
	default:
		defer s.mu.Unlock()
		return false, s.invalid("step")
	}
	accepted, err := s.stepLocked()
	snap, observers := s.snapshotLocked(), s.observers
	s.mu.Unlock()

	if err != nil {
		return false, err
	}
	notify(observers, snap)
	return accepted, nil
}

// tick is the repeater callback; it does nothing unless Iterating.
func (s *Session) tick(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIterating {
		s.mu.Unlock()
		return
	}
	_, err := s.stepLocked()
	snap, observers := s.snapshotLocked(), s.observers
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Msg("tick failed")
		return
	}
	notify(observers, snap)
}

// stepLocked evaluates one neighbor and replaces the assignment when the
// acceptance policy agrees. The candidate is either adopted whole or dropped.
func (s *Session) stepLocked() (bool, error) {
	candidate := Neighbor(s.current, s.rand, s.span)
	value, err := ExpectedValue(candidate)
	if err != nil {
		return false, err
	}

	accepted := s.accept.Accept(s.value, value)
	if accepted {
		s.current = candidate
		s.value = value
		s.accepted++
	}
	s.lastAccepted = accepted
	s.iteration++
	return accepted, nil
}

func notify(observers []Observer, snap Snapshot) {
	for _, fn := range observers {
		fn(snap)
	}
}

// Commit records every goal's final schedule through the sink, in
// assignment order. A failed goal does not stop the others and nothing
// already recorded is undone.
func (s *Session) Commit(ctx context.Context) (CommitReport, error) {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StatePaused {
		defer s.mu.Unlock()
		return CommitReport{}, s.invalid("commit")
	}
	s.state = StateCommitting
	goals := s.current.Clone()
	s.mu.Unlock()

	var report CommitReport
	for _, g := range goals {
		if err := s.sink.RecordSchedule(ctx, g.ID, g.Start, g.End()); err != nil {
			s.logger.Error().Err(err).Str("goal_id", g.ID).Msg("commit failed")
			report.Failed = append(report.Failed, CommitFailure{GoalID: g.ID, Err: err})
			continue
		}
		report.Committed = append(report.Committed, g.ID)
	}

	s.mu.Lock()
	s.state = StateCommitted
	s.mu.Unlock()

	s.logger.Info().
		Int("committed", len(report.Committed)).
		Int("failed", len(report.Failed)).
		Msg("optimization committed")
	return report, nil
}

// Cancel discards the assignment without persisting anything.
func (s *Session) Cancel() error {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateIterating, StatePaused, StateLoading, StateLoadFailed, StateUnloaded:
	default:
		defer s.mu.Unlock()
		return s.invalid("cancel")
	}
	s.state = StateCancelled
	s.current = nil
	s.value = 0
	s.mu.Unlock()

	s.repeater.Stop()
	s.logger.Info().Msg("optimization cancelled")
	return nil
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, op, s.state)
}
