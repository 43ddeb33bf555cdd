// Package store provides SQLite-backed persistence for ordo.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/ordo/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Store provides access to the ordo SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS time_utility_functions (
		id TEXT PRIMARY KEY,
		start_times TEXT NOT NULL,
		utils TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		duration_estimate INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		utility_function_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (utility_function_id) REFERENCES time_utility_functions(id)
	);

	CREATE TABLE IF NOT EXISTS goal_events (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (goal_id) REFERENCES goals(id)
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		goal_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
	CREATE INDEX IF NOT EXISTS idx_goal_events_goal_id ON goal_events(goal_id);
	CREATE INDEX IF NOT EXISTS idx_pdr_goal_id ON pdr(goal_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Time Utility Function Operations ---

// CreateTimeUtilityFunction stores a utility curve.
func (s *Store) CreateTimeUtilityFunction(ctx context.Context, startTimes []int64, utils []float64) (*models.TimeUtilityFunction, error) {
	if len(startTimes) != len(utils) {
		return nil, fmt.Errorf("start times and utils differ in length: %d != %d", len(startTimes), len(utils))
	}
	tuf := &models.TimeUtilityFunction{
		ID:         uuid.New().String(),
		StartTimes: startTimes,
		Utils:      utils,
		CreatedAt:  time.Now().UTC(),
	}

	timesJSON, err := json.Marshal(startTimes)
	if err != nil {
		return nil, fmt.Errorf("encode start times: %w", err)
	}
	utilsJSON, err := json.Marshal(utils)
	if err != nil {
		return nil, fmt.Errorf("encode utils: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO time_utility_functions (id, start_times, utils, created_at) VALUES (?, ?, ?, ?)`,
		tuf.ID, string(timesJSON), string(utilsJSON), tuf.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert time utility function: %w", err)
	}
	return tuf, nil
}

// GetTimeUtilityFunction retrieves a utility curve by ID.
func (s *Store) GetTimeUtilityFunction(ctx context.Context, id string) (*models.TimeUtilityFunction, error) {
	tuf := &models.TimeUtilityFunction{}
	var timesJSON, utilsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_times, utils, created_at FROM time_utility_functions WHERE id = ?`,
		id,
	).Scan(&tuf.ID, &timesJSON, &utilsJSON, &tuf.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("time utility function %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query time utility function: %w", err)
	}
	if err := decodeSeries(timesJSON, utilsJSON, &tuf.StartTimes, &tuf.Utils); err != nil {
		return nil, err
	}
	return tuf, nil
}

func decodeSeries(timesJSON, utilsJSON string, times *[]int64, utils *[]float64) error {
	if err := json.Unmarshal([]byte(timesJSON), times); err != nil {
		return fmt.Errorf("decode start times: %w", err)
	}
	if err := json.Unmarshal([]byte(utilsJSON), utils); err != nil {
		return fmt.Errorf("decode utils: %w", err)
	}
	return nil
}

// --- Goal Operations ---

// CreateGoal inserts a new pending goal.
func (s *Store) CreateGoal(ctx context.Context, name string, durationEstimate int64, utilityFunctionID string) (*models.Goal, error) {
	now := time.Now().UTC()
	goal := &models.Goal{
		ID:                uuid.New().String(),
		Name:              name,
		DurationEstimate:  durationEstimate,
		Status:            models.GoalStatusPending,
		UtilityFunctionID: utilityFunctionID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goals (id, name, duration_estimate, status, utility_function_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		goal.ID, goal.Name, goal.DurationEstimate, goal.Status, goal.UtilityFunctionID, goal.CreatedAt, goal.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	return goal, nil
}

const goalColumns = `id, name, duration_estimate, status, utility_function_id, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(row scanner) (*models.Goal, error) {
	goal := &models.Goal{}
	err := row.Scan(&goal.ID, &goal.Name, &goal.DurationEstimate, &goal.Status, &goal.UtilityFunctionID, &goal.CreatedAt, &goal.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// GetGoal retrieves a goal by ID.
func (s *Store) GetGoal(ctx context.Context, id string) (*models.Goal, error) {
	goal, err := scanGoal(s.db.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query goal: %w", err)
	}
	return goal, nil
}

// ListGoals returns goals in creation order, optionally filtered by status.
func (s *Store) ListGoals(ctx context.Context, status models.GoalStatus) ([]models.Goal, error) {
	query := `SELECT ` + goalColumns + ` FROM goals`
	var args []any

	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query goals: %w", err)
	}
	defer rows.Close()

	var goals []models.Goal
	for rows.Next() {
		goal, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *goal)
	}
	return goals, rows.Err()
}

// UpdateGoalStatus updates the status of a goal.
func (s *Store) UpdateGoalStatus(ctx context.Context, id string, status models.GoalStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE goals SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update goal status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("goal %s: %w", id, ErrNotFound)
	}
	return nil
}

// --- Goal Event Operations ---

// CreateGoalEvent records a new schedule for a goal.
func (s *Store) CreateGoalEvent(ctx context.Context, goalID string, startTime, endTime int64, active bool) (*models.GoalEvent, error) {
	event := &models.GoalEvent{
		ID:        uuid.New().String(),
		GoalID:    goalID,
		StartTime: startTime,
		EndTime:   endTime,
		Active:    active,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO goal_events (id, goal_id, start_time, end_time, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.GoalID, event.StartTime, event.EndTime, event.Active, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal event: %w", err)
	}
	return event, nil
}

const eventColumns = `id, goal_id, start_time, end_time, active, created_at`

func scanEvent(row scanner) (*models.GoalEvent, error) {
	event := &models.GoalEvent{}
	if err := row.Scan(&event.ID, &event.GoalID, &event.StartTime, &event.EndTime, &event.Active, &event.CreatedAt); err != nil {
		return nil, err
	}
	return event, nil
}

// LatestGoalEvent returns the goal's most recent active event, or nil when
// it has never been scheduled.
func (s *Store) LatestGoalEvent(ctx context.Context, goalID string) (*models.GoalEvent, error) {
	event, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM goal_events WHERE goal_id = ? AND active = 1 ORDER BY rowid DESC LIMIT 1`,
		goalID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest goal event: %w", err)
	}
	return event, nil
}

// ListGoalEvents returns every event of a goal, oldest first.
func (s *Store) ListGoalEvents(ctx context.Context, goalID string) ([]models.GoalEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM goal_events WHERE goal_id = ? ORDER BY rowid`,
		goalID,
	)
	if err != nil {
		return nil, fmt.Errorf("query goal events: %w", err)
	}
	defer rows.Close()

	var events []models.GoalEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal event: %w", err)
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// ScheduledGoal is a pending goal joined with its utility curve and its
// current schedule.
type ScheduledGoal struct {
	Goal       models.Goal
	StartTimes []int64
	Utils      []float64
	StartTime  int64
	EndTime    int64
}

// ListScheduledPending returns every pending goal that has an active event,
// in goal creation order.
func (s *Store) ListScheduledPending(ctx context.Context) ([]ScheduledGoal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.duration_estimate, g.status, g.utility_function_id, g.created_at, g.updated_at,
		       f.start_times, f.utils, e.start_time, e.end_time
		FROM goals g
		JOIN time_utility_functions f ON f.id = g.utility_function_id
		JOIN goal_events e ON e.rowid = (
			SELECT rowid FROM goal_events
			WHERE goal_id = g.id AND active = 1
			ORDER BY rowid DESC LIMIT 1
		)
		WHERE g.status = ?
		ORDER BY g.rowid`,
		models.GoalStatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query scheduled goals: %w", err)
	}
	defer rows.Close()

	var out []ScheduledGoal
	for rows.Next() {
		var sg ScheduledGoal
		var timesJSON, utilsJSON string
		g := &sg.Goal
		if err := rows.Scan(&g.ID, &g.Name, &g.DurationEstimate, &g.Status, &g.UtilityFunctionID, &g.CreatedAt, &g.UpdatedAt,
			&timesJSON, &utilsJSON, &sg.StartTime, &sg.EndTime); err != nil {
			return nil, fmt.Errorf("scan scheduled goal: %w", err)
		}
		if err := decodeSeries(timesJSON, utilsJSON, &sg.StartTimes, &sg.Utils); err != nil {
			return nil, fmt.Errorf("goal %s: %w", g.ID, err)
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, goalID, details string) (*models.PDREntry, error) {
	now := time.Now().UTC()
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		GoalID:     goalID,
		Details:    details,
		Timestamp:  now,
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, goal_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.GoalID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns audit records, newest first, optionally for one goal.
func (s *Store) ListPDR(ctx context.Context, goalID string) ([]models.PDREntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, goal_id, details, timestamp FROM pdr`
	var args []any
	if goalID != "" {
		query += ` WHERE goal_id = ?`
		args = append(args, goalID)
	}
	query += ` ORDER BY rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var gid, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &gid, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.GoalID = gid.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
