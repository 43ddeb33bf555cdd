package controlplane

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/ordo/internal/audit"
	"github.com/fentz26/ordo/internal/models"
	"github.com/fentz26/ordo/internal/scheduler"
	"github.com/fentz26/ordo/internal/solver"
	"github.com/fentz26/ordo/internal/store"
	"github.com/rs/zerolog"
)

func newTestServer(t *testing.T) (*Server, *store.Store, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	st, err := store.New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	logger := zerolog.Nop()
	service := NewService(st, audit.NewPDRWriter(st), logger)
	optimizer := NewOptimizer(service, func() solver.Options {
		return solver.Options{
			Rand:      rand.New(rand.NewSource(1)),
			Scheduler: &scheduler.Config{TickInterval: time.Millisecond},
			Logger:    logger,
		}
	}, logger)
	server := NewServer(service, optimizer, "127.0.0.1:0", logger)

	cleanup := func() {
		optimizer.Close()
		st.Close()
	}
	return server, st, cleanup
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestHealthEndpoint_OK(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	w := do(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var health HealthResponse
	decode(t, w, &health)
	if !health.OK {
		t.Error("Expected health.OK to be true")
	}
	if health.DB != "ok" {
		t.Errorf("Expected DB status 'ok', got '%s'", health.DB)
	}
	if health.Version == "" || health.Time == "" {
		t.Error("Expected version and time to be set")
	}
}

func TestHealthEndpoint_MethodNotAllowed(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	w := do(t, s, http.MethodPost, "/health", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestHealthEndpoint_DBError(t *testing.T) {
	s, st, cleanup := newTestServer(t)
	defer cleanup()

	// Close the store to simulate DB error
	st.Close()

	w := do(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}

	var health HealthResponse
	decode(t, w, &health)
	if health.OK {
		t.Error("Expected health.OK to be false when DB is down")
	}
	if health.DB == "ok" {
		t.Error("Expected DB status to indicate error")
	}
}

func TestGoalEndpoints(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	start := int64(1_700_000_000_000)
	w := do(t, s, http.MethodPost, "/goals", NewGoalParams{
		Name:       "Write report",
		Duration:   30 * 60 * 1000,
		StartTimes: []int64{start, start + 3600*1000},
		Utils:      []float64{10, 0},
		Start:      &start,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var goal models.Goal
	decode(t, w, &goal)

	w = do(t, s, http.MethodGet, "/goals", nil)
	var goals []models.Goal
	decode(t, w, &goals)
	if len(goals) != 1 || goals[0].ID != goal.ID {
		t.Errorf("Unexpected goal list: %+v", goals)
	}

	w = do(t, s, http.MethodGet, "/goals/"+goal.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var detail GoalDetail
	decode(t, w, &detail)
	if detail.Current == nil || detail.Current.StartTime != start || detail.Current.EndTime != start+30*60*1000 {
		t.Errorf("Unexpected current event: %+v", detail.Current)
	}
	if detail.UtilityFunction == nil || len(detail.UtilityFunction.Utils) != 2 {
		t.Errorf("Unexpected utility function: %+v", detail.UtilityFunction)
	}

	// reschedule; end defaults to start + duration
	w = do(t, s, http.MethodPost, "/goals/"+goal.ID+"/events", map[string]int64{"start_time": start + 1000})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	w = do(t, s, http.MethodGet, "/goals/"+goal.ID+"/events", nil)
	var events []models.GoalEvent
	decode(t, w, &events)
	if len(events) != 2 || events[1].EndTime != start+1000+30*60*1000 {
		t.Errorf("Unexpected events: %+v", events)
	}

	w = do(t, s, http.MethodPost, "/goals/"+goal.ID+"/status", map[string]string{"status": "succeeded"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	w = do(t, s, http.MethodGet, "/goals?status=pending", nil)
	decode(t, w, &goals)
	if len(goals) != 0 {
		t.Errorf("Expected no pending goals, got %+v", goals)
	}

	w = do(t, s, http.MethodGet, "/goals/"+goal.ID+"/audit", nil)
	var entries []models.PDREntry
	decode(t, w, &entries)
	if len(entries) < 3 {
		t.Errorf("Expected audit trail for create/schedule/status, got %d", len(entries))
	}
}

func TestGoalEndpointErrors(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing name", http.MethodPost, "/goals", NewGoalParams{Duration: 1, StartTimes: []int64{1}, Utils: []float64{1}}, http.StatusBadRequest},
		{"bad curve", http.MethodPost, "/goals", NewGoalParams{Name: "x", Duration: 1, StartTimes: []int64{1, 1}, Utils: []float64{1, 2}}, http.StatusBadRequest},
		{"mismatched curve", http.MethodPost, "/goals", NewGoalParams{Name: "x", Duration: 1, StartTimes: []int64{1}}, http.StatusBadRequest},
		{"unknown goal", http.MethodGet, "/goals/nope", nil, http.StatusNotFound},
		{"unknown status filter", http.MethodGet, "/goals?status=done", nil, http.StatusBadRequest},
		{"bad status", http.MethodPost, "/goals/nope/status", map[string]string{"status": "later"}, http.StatusBadRequest},
		{"schedule unknown", http.MethodPost, "/goals/nope/events", map[string]int64{"start_time": 1}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestOptimizeLifecycle(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	if w := do(t, s, http.MethodGet, "/optimize", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without session, got %d", w.Code)
	}

	base := int64(1_700_000_000_000)
	for i := 0; i < 3; i++ {
		start := base - 2*3600*1000 + int64(i)*3600*1000
		w := do(t, s, http.MethodPost, "/goals", NewGoalParams{
			Name:       "deadline",
			Duration:   30 * 60 * 1000,
			StartTimes: []int64{base, base + 1},
			Utils:      []float64{0, 100},
			Start:      &start,
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("Create goal failed: %d", w.Code)
		}
	}

	w := do(t, s, http.MethodPost, "/optimize", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var snap SnapshotResponse
	decode(t, w, &snap)
	if snap.State != "idle" || len(snap.Goals) != 3 {
		t.Fatalf("Unexpected snapshot: %+v", snap)
	}

	if w := do(t, s, http.MethodPost, "/optimize", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second session, got %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/optimize/stop", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 stopping an idle session, got %d", w.Code)
	}

	if w := do(t, s, http.MethodPost, "/optimize/start", nil); w.Code != http.StatusOK {
		t.Fatalf("Start failed: %d", w.Code)
	}
	time.Sleep(20 * time.Millisecond)
	w = do(t, s, http.MethodPost, "/optimize/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Stop failed: %d", w.Code)
	}
	decode(t, w, &snap)
	if snap.State != "paused" {
		t.Errorf("Expected paused, got %s", snap.State)
	}

	w = do(t, s, http.MethodPost, "/optimize/commit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Commit failed: %d", w.Code)
	}
	var report CommitResponse
	decode(t, w, &report)
	if len(report.Committed) != 3 || len(report.Failed) != 0 {
		t.Errorf("Unexpected commit report: %+v", report)
	}

	// committed goals each gained an event matching the final snapshot
	for i, g := range snap.Goals {
		w := do(t, s, http.MethodGet, "/goals/"+g.GoalID, nil)
		var detail GoalDetail
		decode(t, w, &detail)
		if detail.Current == nil || detail.Current.StartTime != g.Start || detail.Current.EndTime != g.End {
			t.Errorf("Goal %d current event %+v, want %d-%d", i, detail.Current, g.Start, g.End)
		}
	}

	// a finished session can be replaced
	if w := do(t, s, http.MethodPost, "/optimize", nil); w.Code != http.StatusCreated {
		t.Errorf("Expected new session after commit, got %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/optimize/cancel", nil); w.Code != http.StatusOK {
		t.Errorf("Cancel failed: %d", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/optimize/cancel", nil); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 cancelling twice, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, cleanup := newTestServer(t)
	defer cleanup()

	do(t, s, http.MethodGet, "/health", nil)
	w := do(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("ordo_api_requests_total")) {
		t.Error("Expected API request counter in metrics output")
	}
}
