package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AaronLay10/StagePlayer/internal/engine"
	"github.com/AaronLay10/StagePlayer/internal/render"
	"github.com/AaronLay10/StagePlayer/internal/storage/postgres"
)

type mockController struct {
	mu         sync.Mutex
	flags      int
	keys       []string
	broadcasts []string
	posted     []func()
	stops      int
	stats      engine.Stats
}

func (m *mockController) GreenFlag() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags++
}

func (m *mockController) PressKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
}

func (m *mockController) Broadcast(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts = append(m.broadcasts, name)
}

func (m *mockController) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, fn)
}

func (m *mockController) StopAllSounds() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *mockController) Stats() engine.Stats { return m.stats }

func withController(t *testing.T, c Controller) {
	t.Helper()
	prev := controller
	controller = c
	t.Cleanup(func() { controller = prev })
}

func withReadiness(t *testing.T, project, mqtt, mqttOpt, pg, pgOpt bool) {
	t.Helper()
	SetProjectReady(project)
	SetMQTTState(mqtt, mqttOpt)
	SetPostgresState(pg, pgOpt)
	t.Cleanup(func() {
		SetProjectReady(false)
		SetMQTTState(false, false)
		SetPostgresState(false, false)
	})
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "player" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name                  string
		project, mqtt, mqttOp bool
		pg, pgOpt             bool
		wantCode              int
		wantReady             bool
	}{
		{"all ready", true, true, false, true, false, http.StatusOK, true},
		{"project not running", false, true, false, true, false, http.StatusServiceUnavailable, false},
		{"optional mqtt down", true, false, true, true, false, http.StatusOK, true},
		{"required mqtt down", true, false, false, true, false, http.StatusServiceUnavailable, false},
		{"optional postgres down", true, true, false, false, true, http.StatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withReadiness(t, tt.project, tt.mqtt, tt.mqttOp, tt.pg, tt.pgOpt)

			w := httptest.NewRecorder()
			readyHandler(w, httptest.NewRequest("GET", "/ready", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("expected ready=%v, got %v", tt.wantReady, resp.Ready)
			}
			if !resp.Ready && resp.NotReadyMsg == "" {
				t.Error("expected a reason when not ready")
			}
		})
	}
}

func TestReadyEndpointReportsEveryReason(t *testing.T) {
	withReadiness(t, false, false, false, true, false)

	w := httptest.NewRecorder()
	readyHandler(w, httptest.NewRequest("GET", "/ready", nil))

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp.NotReadyMsg, "project") || !strings.Contains(resp.NotReadyMsg, "mqtt") {
		t.Errorf("expected both reasons, got %q", resp.NotReadyMsg)
	}
	if resp.Checks["postgres"].Status != "ok" {
		t.Errorf("expected postgres ok, got %q", resp.Checks["postgres"].Status)
	}
}

func TestActionsWithoutProject(t *testing.T) {
	withController(t, nil)

	w := httptest.NewRecorder()
	greenFlagHandler(w, httptest.NewRequest("POST", "/green-flag", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a project, got %d", w.Code)
	}
}

func TestGreenFlagEndpoint(t *testing.T) {
	c := &mockController{}
	withController(t, c)

	w := httptest.NewRecorder()
	greenFlagHandler(w, httptest.NewRequest("GET", "/green-flag", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	greenFlagHandler(w, httptest.NewRequest("POST", "/green-flag", nil))
	if w.Code != http.StatusOK || c.flags != 1 {
		t.Errorf("expected one green flag, code=%d flags=%d", w.Code, c.flags)
	}
}

func TestKeyAndBroadcastEndpoints(t *testing.T) {
	c := &mockController{}
	withController(t, c)

	tests := []struct {
		name     string
		handler  http.HandlerFunc
		body     string
		wantCode int
	}{
		{"key", keyHandler, `{"key":"space"}`, http.StatusOK},
		{"key trimmed", keyHandler, `{"key":" a "}`, http.StatusOK},
		{"key missing", keyHandler, `{}`, http.StatusBadRequest},
		{"key bad json", keyHandler, `{`, http.StatusBadRequest},
		{"broadcast", broadcastHandler, `{"name":"go"}`, http.StatusOK},
		{"broadcast missing", broadcastHandler, `{"name":"  "}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest("POST", "/", strings.NewReader(tt.body)))
			if w.Code != tt.wantCode {
				t.Errorf("expected %d, got %d", tt.wantCode, w.Code)
			}
			var resp ActionResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.OK != (tt.wantCode == http.StatusOK) {
				t.Errorf("unexpected ok=%v", resp.OK)
			}
		})
	}

	if len(c.keys) != 2 || c.keys[0] != "space" || c.keys[1] != "a" {
		t.Errorf("unexpected keys %v", c.keys)
	}
	if len(c.broadcasts) != 1 || c.broadcasts[0] != "go" {
		t.Errorf("unexpected broadcasts %v", c.broadcasts)
	}
}

func TestStopSoundsRunsOnProjectLoop(t *testing.T) {
	c := &mockController{}
	withController(t, c)

	w := httptest.NewRecorder()
	stopSoundsHandler(w, httptest.NewRequest("POST", "/sounds/stop", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if c.stops != 0 {
		t.Fatal("sounds must be stopped on the project loop, not the HTTP goroutine")
	}
	if len(c.posted) != 1 {
		t.Fatalf("expected one posted call, got %d", len(c.posted))
	}
	c.posted[0]()
	if c.stops != 1 {
		t.Errorf("expected stop after running posted work, got %d", c.stops)
	}
}

func TestStageEndpoint(t *testing.T) {
	prev := stageSource
	t.Cleanup(func() { stageSource = prev })

	SetStageSource(nil)
	w := httptest.NewRecorder()
	stageHandler(w, httptest.NewRequest("GET", "/stage", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a stage, got %d", w.Code)
	}

	snap := render.NewSnapshotter()
	cat := engine.NewSprite("cat")
	cat.GoTo(3, 4)
	snap.Update(engine.NewStage(""), []*engine.Sprite{cat})
	SetStageSource(snap)

	w = httptest.NewRecorder()
	stageHandler(w, httptest.NewRequest("GET", "/stage", nil))
	var f render.Frame
	if err := json.NewDecoder(w.Body).Decode(&f); err != nil {
		t.Fatalf("failed to decode frame: %v", err)
	}
	if f.Seq != 1 || len(f.Sprites) != 1 || f.Sprites[0].X != 3 {
		t.Errorf("unexpected frame %+v", f)
	}
}

func TestMuxProtectsInputButNotProbes(t *testing.T) {
	withAuth(t, newAuthConfig("admin", "secret", "", ""))
	withController(t, &mockController{})
	mux := NewMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health should be open, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("POST", "/green-flag", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("/green-flag should require auth, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	InitMetrics()
	SetProjectName("demo")
	withReadiness(t, true, true, false, false, true)
	withController(t, &mockController{stats: engine.Stats{Running: 2, Sounds: 1, Frames: 30, Fires: 4}})

	w := httptest.NewRecorder()
	metricsHandler(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()

	for _, want := range []string{
		`stageplayer_project_running{project="demo"`,
		"stageplayer_scripts_running{",
		"stageplayer_frames_total{",
		"# TYPE stageplayer_trigger_fires_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if !strings.Contains(body, "} 30\n") {
		t.Error("expected frames value 30")
	}
}

type mockHistory struct {
	limit  int
	prefix string
	rows   []postgres.EventRow
	err    error
}

func (m *mockHistory) Query(_ context.Context, limit int, prefix string) ([]postgres.EventRow, error) {
	m.limit, m.prefix = limit, prefix
	return m.rows, m.err
}

func TestHistoryEndpoint(t *testing.T) {
	prev := history
	t.Cleanup(func() { history = prev })

	SetEventHistory(nil)
	w := httptest.NewRecorder()
	historyHandler(w, httptest.NewRequest("GET", "/events/history", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without persistence, got %d", w.Code)
	}

	h := &mockHistory{rows: []postgres.EventRow{{EventID: 7, Event: "trigger.fired", ProjectID: "demo"}}}
	SetEventHistory(h)

	w = httptest.NewRecorder()
	historyHandler(w, httptest.NewRequest("GET", "/events/history?limit=5&prefix=trigger.", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if h.limit != 5 || h.prefix != "trigger." {
		t.Errorf("query got limit=%d prefix=%q", h.limit, h.prefix)
	}
	var rows []postgres.EventRow
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode rows: %v", err)
	}
	if len(rows) != 1 || rows[0].EventID != 7 {
		t.Errorf("unexpected rows %+v", rows)
	}

	w = httptest.NewRecorder()
	historyHandler(w, httptest.NewRequest("GET", "/events/history?limit=zero", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}

	h.err = errors.New("db down")
	w = httptest.NewRecorder()
	historyHandler(w, httptest.NewRequest("GET", "/events/history", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on query failure, got %d", w.Code)
	}
}
