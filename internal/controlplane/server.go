package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fentz26/ordo/internal/models"
	"github.com/fentz26/ordo/internal/solver"
	"github.com/fentz26/ordo/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Version is reported by the health endpoint.
var Version = "dev"

// Server provides the HTTP API for ordo.
type Server struct {
	service   *Service
	optimizer *Optimizer
	addr      string
	logger    zerolog.Logger
	router    chi.Router
	server    *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, optimizer *Optimizer, addr string, logger zerolog.Logger) *Server {
	s := &Server{
		service:   service,
		optimizer: optimizer,
		addr:      addr,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.MetricsMiddleware)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/goals", func(r chi.Router) {
		r.Post("/", s.createGoal)
		r.Get("/", s.listGoals)
		r.Route("/{goalID}", func(r chi.Router) {
			r.Get("/", s.getGoal)
			r.Post("/status", s.updateStatus)
			r.Get("/events", s.listEvents)
			r.Post("/events", s.scheduleGoal)
			r.Get("/audit", s.listAudit)
		})
	})

	r.Route("/optimize", func(r chi.Router) {
		r.Post("/", s.openOptimize)
		r.Get("/", s.getOptimize)
		r.Post("/start", s.startOptimize)
		r.Post("/stop", s.stopOptimize)
		r.Post("/commit", s.commitOptimize)
		r.Post("/cancel", s.cancelOptimize)
	})
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("starting ordo daemon")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and any live optimize session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.optimizer.Close()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps service errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrGoalNotFound), errors.Is(err, ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrSessionActive), errors.Is(err, solver.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, solver.ErrLoadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

// --- Health ---

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		OK:      true,
		DB:      "ok",
		Version: Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := s.service.Ping(r.Context()); err != nil {
		resp.OK = false
		resp.DB = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// --- Goal Handlers ---

func (s *Server) createGoal(w http.ResponseWriter, r *http.Request) {
	var req NewGoalParams
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	goal, err := s.service.NewGoal(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) listGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := s.service.ListGoals(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if goals == nil {
		goals = []models.Goal{}
	}
	writeJSON(w, http.StatusOK, goals)
}

// GoalDetail is a goal with its utility curve and current schedule.
type GoalDetail struct {
	models.Goal
	UtilityFunction *models.TimeUtilityFunction `json:"utility_function"`
	Current         *models.GoalEvent           `json:"current_event,omitempty"`
}

func (s *Server) getGoal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	goal, err := s.service.GetGoal(ctx, chi.URLParam(r, "goalID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	tuf, err := s.service.GetUtilityFunction(ctx, goal)
	if err != nil {
		s.fail(w, err)
		return
	}
	event, err := s.service.CurrentEvent(ctx, goal.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, GoalDetail{Goal: *goal, UtilityFunction: tuf, Current: event})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	id := chi.URLParam(r, "goalID")
	if err := s.service.UpdateStatus(r.Context(), id, req.Status); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": req.Status})
}

type scheduleRequest struct {
	StartTime int64  `json:"start_time"`
	EndTime   *int64 `json:"end_time,omitempty"`
}

func (s *Server) scheduleGoal(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx := r.Context()
	goal, err := s.service.GetGoal(ctx, chi.URLParam(r, "goalID"))
	if err != nil {
		s.fail(w, err)
		return
	}

	end := req.StartTime + goal.DurationEstimate
	if req.EndTime != nil {
		end = *req.EndTime
	}
	event, err := s.service.ScheduleGoal(ctx, goal.ID, req.StartTime, end)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.ListEvents(r.Context(), chi.URLParam(r, "goalID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if events == nil {
		events = []models.GoalEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListAudit(r.Context(), chi.URLParam(r, "goalID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Optimize Handlers ---

// ScheduledGoal is one goal of an optimize snapshot.
type ScheduledGoal struct {
	GoalID   string  `json:"goal_id"`
	Start    int64   `json:"start_time"`
	End      int64   `json:"end_time"`
	Duration int64   `json:"duration"`
	Value    float64 `json:"value"`
}

// SnapshotResponse is the JSON form of a solver snapshot.
type SnapshotResponse struct {
	State        string          `json:"state"`
	Iteration    uint64          `json:"iteration"`
	Accepted     uint64          `json:"accepted"`
	LastAccepted bool            `json:"last_accepted"`
	Value        float64         `json:"value"`
	Goals        []ScheduledGoal `json:"goals"`
	LoadError    string          `json:"load_error,omitempty"`
}

// NewSnapshotResponse converts a snapshot for the wire.
func NewSnapshotResponse(snap solver.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		State:        snap.State.String(),
		Iteration:    snap.Iteration,
		Accepted:     snap.Accepted,
		LastAccepted: snap.LastAccepted,
		Value:        snap.Value,
		Goals:        make([]ScheduledGoal, 0, len(snap.Goals)),
	}
	if snap.LoadErr != nil {
		resp.LoadError = snap.LoadErr.Error()
	}
	for _, g := range snap.Goals {
		// Value only fails on a reversed window, which Goal rules out.
		v, _ := g.Value()
		resp.Goals = append(resp.Goals, ScheduledGoal{
			GoalID:   g.ID,
			Start:    g.Start,
			End:      g.End(),
			Duration: g.Duration,
			Value:    v,
		})
	}
	return resp
}

// CommitFailure is one goal that could not be recorded.
type CommitFailure struct {
	GoalID string `json:"goal_id"`
	Error  string `json:"error"`
}

// CommitResponse is the JSON form of a commit report.
type CommitResponse struct {
	Committed []string        `json:"committed"`
	Failed    []CommitFailure `json:"failed"`
}

// NewCommitResponse converts a commit report for the wire.
func NewCommitResponse(report solver.CommitReport) CommitResponse {
	resp := CommitResponse{
		Committed: append([]string{}, report.Committed...),
		Failed:    make([]CommitFailure, 0, len(report.Failed)),
	}
	for _, f := range report.Failed {
		resp.Failed = append(resp.Failed, CommitFailure{GoalID: f.GoalID, Error: f.Err.Error()})
	}
	return resp
}

func (s *Server) openOptimize(w http.ResponseWriter, r *http.Request) {
	snap, err := s.optimizer.Open(r.Context())
	if err != nil {
		if errors.Is(err, solver.ErrLoadFailed) {
			// the session stays open so a second POST retries the load
			writeJSON(w, http.StatusBadGateway, NewSnapshotResponse(snap))
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, NewSnapshotResponse(snap))
}

func (s *Server) getOptimize(w http.ResponseWriter, r *http.Request) {
	snap, err := s.optimizer.Snapshot()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSnapshotResponse(snap))
}

func (s *Server) startOptimize(w http.ResponseWriter, r *http.Request) {
	snap, err := s.optimizer.Start()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSnapshotResponse(snap))
}

func (s *Server) stopOptimize(w http.ResponseWriter, r *http.Request) {
	snap, err := s.optimizer.Stop()
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSnapshotResponse(snap))
}

func (s *Server) commitOptimize(w http.ResponseWriter, r *http.Request) {
	report, err := s.optimizer.Commit(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewCommitResponse(report))
}

func (s *Server) cancelOptimize(w http.ResponseWriter, r *http.Request) {
	if err := s.optimizer.Cancel(); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": solver.StateCancelled.String()})
}
