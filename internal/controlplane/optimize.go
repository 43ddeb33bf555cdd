package controlplane

import (
	"context"
	"sync"

	"github.com/fentz26/ordo/internal/audit"
	"github.com/fentz26/ordo/internal/solver"
	"github.com/fentz26/ordo/internal/telemetry"
	"github.com/rs/zerolog"
)

// OptionsFunc returns fresh solver options for a new session.
type OptionsFunc func() solver.Options

// Optimizer holds the single optimize session served by the API.
type Optimizer struct {
	service *Service
	options OptionsFunc
	logger  zerolog.Logger

	mu      sync.Mutex
	session *solver.Session
}

// NewOptimizer creates an optimizer with no session.
func NewOptimizer(service *Service, options OptionsFunc, logger zerolog.Logger) *Optimizer {
	return &Optimizer{
		service: service,
		options: options,
		logger:  logger.With().Str("component", "optimizer").Logger(),
	}
}

// Open loads a new session. A session whose load failed is retried in
// place; any other live session yields ErrSessionActive.
func (o *Optimizer) Open(ctx context.Context) (solver.Snapshot, error) {
	o.mu.Lock()
	sess := o.session
	if sess != nil {
		switch sess.State() {
		case solver.StateLoadFailed:
		case solver.StateCommitted, solver.StateCancelled:
			sess = nil
		default:
			o.mu.Unlock()
			return solver.Snapshot{}, ErrSessionActive
		}
	}
	if sess == nil {
		sess = solver.NewSession(o.service, o.service, o.options())
		sess.Observe(telemetry.Observe)
		o.session = sess
	}
	o.mu.Unlock()

	err := sess.Load(ctx)
	return sess.Snapshot(), err
}

func (o *Optimizer) current() (*solver.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, ErrNoSession
	}
	return o.session, nil
}

// Snapshot returns the state of the current session.
func (o *Optimizer) Snapshot() (solver.Snapshot, error) {
	sess, err := o.current()
	if err != nil {
		return solver.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Start resumes iteration.
func (o *Optimizer) Start() (solver.Snapshot, error) {
	sess, err := o.current()
	if err != nil {
		return solver.Snapshot{}, err
	}
	if err := sess.Start(); err != nil {
		return solver.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Stop pauses iteration.
func (o *Optimizer) Stop() (solver.Snapshot, error) {
	sess, err := o.current()
	if err != nil {
		return solver.Snapshot{}, err
	}
	if err := sess.Stop(); err != nil {
		return solver.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// Commit records the current assignment.
func (o *Optimizer) Commit(ctx context.Context) (solver.CommitReport, error) {
	sess, err := o.current()
	if err != nil {
		return solver.CommitReport{}, err
	}
	snap := sess.Snapshot()
	report, err := sess.Commit(ctx)
	if err != nil {
		return report, err
	}

	telemetry.RecordCommit(report)
	outcome := audit.OutcomeSuccess
	if len(report.Failed) > 0 {
		outcome = audit.OutcomeFailure
	}
	o.service.pdr.Record("optimize.commit", map[string]any{
		"iteration": snap.Iteration,
		"value":     snap.Value,
		"committed": report.Committed,
		"failed":    report.FailedIDs(),
	}, outcome, "", "")
	return report, nil
}

// Cancel discards the current session.
func (o *Optimizer) Cancel() error {
	sess, err := o.current()
	if err != nil {
		return err
	}
	snap := sess.Snapshot()
	if err := sess.Cancel(); err != nil {
		return err
	}
	o.service.pdr.Record("optimize.cancel", map[string]any{"iteration": snap.Iteration}, audit.OutcomeSuccess, "", "")
	return nil
}

// Close cancels a live session so no repeater outlives the daemon.
func (o *Optimizer) Close() {
	sess, err := o.current()
	if err != nil || sess.State().Terminal() {
		return
	}
	if err := sess.Cancel(); err != nil {
		o.logger.Warn().Err(err).Msg("cancel on close failed")
	}
}
