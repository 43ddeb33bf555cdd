// Package controlplane provides the HTTP API and service layer for ordo.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fentz26/ordo/internal/audit"
	"github.com/fentz26/ordo/internal/models"
	"github.com/fentz26/ordo/internal/solver"
	"github.com/fentz26/ordo/internal/store"
	"github.com/fentz26/ordo/internal/utility"
	"github.com/rs/zerolog"
)

// Service provides the control plane business logic. It also feeds the
// optimizer: it is the solver's Loader and Sink.
type Service struct {
	store  *store.Store
	pdr    *audit.PDRWriter
	logger zerolog.Logger
}

var (
	_ solver.Loader = (*Service)(nil)
	_ solver.Sink   = (*Service)(nil)
)

// NewService creates a new control plane service.
func NewService(s *store.Store, pdr *audit.PDRWriter, logger zerolog.Logger) *Service {
	return &Service{
		store:  s,
		pdr:    pdr,
		logger: logger.With().Str("component", "controlplane").Logger(),
	}
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// --- Goal Operations ---

// NewGoalParams describes a goal to create. Start, when set, schedules the
// goal immediately.
type NewGoalParams struct {
	Name       string    `json:"name"`
	Duration   int64     `json:"duration_estimate"`
	StartTimes []int64   `json:"start_times"`
	Utils      []float64 `json:"utils"`
	Start      *int64    `json:"start_time,omitempty"`
}

// NewGoal validates and stores a goal with its utility function.
func (s *Service) NewGoal(ctx context.Context, p NewGoalParams) (*models.Goal, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if p.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	if _, err := utility.FromSeries(p.StartTimes, p.Utils); err != nil {
		return nil, fmt.Errorf("%w: utility function: %w", ErrInvalidInput, err)
	}

	tuf, err := s.store.CreateTimeUtilityFunction(ctx, p.StartTimes, p.Utils)
	if err != nil {
		return nil, err
	}
	goal, err := s.store.CreateGoal(ctx, name, p.Duration, tuf.ID)
	if err != nil {
		return nil, err
	}
	s.pdr.Record("goal.create", p, audit.OutcomeSuccess, goal.ID, "")

	if p.Start != nil {
		if _, err := s.ScheduleGoal(ctx, goal.ID, *p.Start, *p.Start+p.Duration); err != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("goal_id", goal.ID).Str("name", name).Msg("goal created")
	return goal, nil
}

// GetGoal retrieves a goal by ID.
func (s *Service) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	goal, err := s.store.GetGoal(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrGoalNotFound
	}
	return goal, err
}

// GetUtilityFunction returns the utility curve of a goal.
func (s *Service) GetUtilityFunction(ctx context.Context, goal *models.Goal) (*models.TimeUtilityFunction, error) {
	return s.store.GetTimeUtilityFunction(ctx, goal.UtilityFunctionID)
}

// ListGoals returns goals, optionally filtered by status.
func (s *Service) ListGoals(ctx context.Context, status string) ([]models.Goal, error) {
	st := models.GoalStatus(status)
	if status != "" && !st.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.store.ListGoals(ctx, st)
}

// UpdateStatus changes a goal's status.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) error {
	st := models.GoalStatus(status)
	if !st.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	if err := s.store.UpdateGoalStatus(ctx, id, st); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrGoalNotFound
		}
		return err
	}
	s.pdr.Record("goal.status", map[string]string{"goal_id": id, "status": status}, audit.OutcomeSuccess, id, "")
	return nil
}

// ScheduleGoal records a new active event for a goal.
func (s *Service) ScheduleGoal(ctx context.Context, id string, start, end int64) (*models.GoalEvent, error) {
	if end < start {
		return nil, fmt.Errorf("%w: end before start", ErrInvalidInput)
	}
	if _, err := s.GetGoal(ctx, id); err != nil {
		return nil, err
	}

	inputs := map[string]any{"goal_id": id, "start_time": start, "end_time": end}
	event, err := s.store.CreateGoalEvent(ctx, id, start, end, true)
	if err != nil {
		s.pdr.Record("goal.schedule", inputs, audit.OutcomeFailure, id, err.Error())
		return nil, err
	}
	s.pdr.Record("goal.schedule", inputs, audit.OutcomeSuccess, id, "")
	return event, nil
}

// CurrentEvent returns the goal's current schedule, or nil when it has none.
func (s *Service) CurrentEvent(ctx context.Context, id string) (*models.GoalEvent, error) {
	return s.store.LatestGoalEvent(ctx, id)
}

// ListEvents returns the schedule history of a goal.
func (s *Service) ListEvents(ctx context.Context, id string) ([]models.GoalEvent, error) {
	if _, err := s.GetGoal(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListGoalEvents(ctx, id)
}

// ListAudit returns audit records, optionally for one goal.
func (s *Service) ListAudit(ctx context.Context, goalID string) ([]models.PDREntry, error) {
	return s.store.ListPDR(ctx, goalID)
}

// --- Optimizer wiring ---

// LoadGoals implements solver.Loader: every pending goal that has a current
// schedule, in creation order. A goal without a duration estimate keeps the
// length of its current event.
func (s *Service) LoadGoals(ctx context.Context) ([]solver.Input, error) {
	scheduled, err := s.store.ListScheduledPending(ctx)
	if err != nil {
		return nil, err
	}

	inputs := make([]solver.Input, 0, len(scheduled))
	for _, sg := range scheduled {
		if len(sg.StartTimes) != len(sg.Utils) {
			return nil, fmt.Errorf("goal %s: %w", sg.Goal.ID, utility.ErrLengthMismatch)
		}
		points := make([]utility.Point, len(sg.StartTimes))
		for i := range sg.StartTimes {
			points[i] = utility.Point{Time: sg.StartTimes[i], Utility: sg.Utils[i]}
		}

		duration := sg.Goal.DurationEstimate
		if duration <= 0 {
			duration = sg.EndTime - sg.StartTime
		}
		inputs = append(inputs, solver.Input{
			GoalID:   sg.Goal.ID,
			Duration: duration,
			Points:   points,
			Start:    sg.StartTime,
		})
	}
	return inputs, nil
}

// RecordSchedule implements solver.Sink.
func (s *Service) RecordSchedule(ctx context.Context, goalID string, start, end int64) error {
	_, err := s.ScheduleGoal(ctx, goalID, start, end)
	return err
}
