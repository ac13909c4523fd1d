package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AaronLay10/StagePlayer/internal/engine"
	"github.com/AaronLay10/StagePlayer/internal/events"
	"github.com/AaronLay10/StagePlayer/internal/render"
	"github.com/AaronLay10/StagePlayer/internal/storage/postgres"
)

// Controller is the slice of the running project the API drives.
// Every method must be safe to call from an HTTP goroutine.
type Controller interface {
	GreenFlag()
	PressKey(key string)
	Broadcast(name string)
	Post(fn func())
	StopAllSounds()
	Stats() engine.Stats
}

// StageSource provides the most recently rendered frame.
type StageSource interface {
	Latest() render.Frame
}

// EventHistory reads persisted events.
type EventHistory interface {
	Query(ctx context.Context, limit int, prefix string) ([]postgres.EventRow, error)
}

var (
	controller  Controller
	stageSource StageSource
	history     EventHistory
)

// SetController sets the project the input endpoints drive.
func SetController(c Controller) {
	controller = c
}

// SetStageSource sets where /stage reads frames from.
func SetStageSource(s StageSource) {
	stageSource = s
}

// SetEventHistory enables /events/history.
func SetEventHistory(h EventHistory) {
	history = h
}

// readiness tracks dependency state for /ready and /metrics.
var readiness = &readinessState{}

type readinessState struct {
	mu                sync.RWMutex
	projectRunning    bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}

// SetProjectReady records whether the project loop is running.
func SetProjectReady(ready bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.projectRunning = ready
}

// SetMQTTState records MQTT connectivity. An optional dependency never
// makes the player unready.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
}

// SetPostgresState records Postgres connectivity.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	defer readiness.mu.Unlock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "player",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// CheckStatus is the state of one dependency.
type CheckStatus struct {
	Status   string `json:"status"`
	Optional bool   `json:"optional,omitempty"`
}

type ReadinessResponse struct {
	Ready       bool                   `json:"ready"`
	Checks      map[string]CheckStatus `json:"checks"`
	NotReadyMsg string                 `json:"message,omitempty"`
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	projectRunning := readiness.projectRunning
	mqttConnected, mqttOptional := readiness.mqttConnected, readiness.mqttOptional
	pgConnected, pgOptional := readiness.postgresConnected, readiness.postgresOptional
	readiness.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]CheckStatus)}
	var reasons []string

	check := func(name string, ok, optional bool, downStatus string) {
		status := "ok"
		if !ok {
			status = downStatus
			if !optional {
				resp.Ready = false
				reasons = append(reasons, name+" "+downStatus)
			}
		}
		resp.Checks[name] = CheckStatus{Status: status, Optional: optional}
	}
	check("project", projectRunning, false, "not_running")
	check("mqtt", mqttConnected, mqttOptional, "unavailable")
	check("postgres", pgConnected, pgOptional, "unavailable")

	resp.NotReadyMsg = strings.Join(reasons, "; ")

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events.Snapshot())
}

// historyHandler serves persisted events, newest first.
// Query parameters: limit (default 200) and prefix.
func historyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if history == nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ActionResponse{OK: false, Error: "event persistence disabled"})
		return
	}

	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(ActionResponse{OK: false, Error: "invalid limit"})
			return
		}
		limit = n
	}

	rows, err := history.Query(r.Context(), limit, r.URL.Query().Get("prefix"))
	if err != nil {
		log.Printf("event history query failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ActionResponse{OK: false, Error: "query failed"})
		return
	}
	if rows == nil {
		rows = []postgres.EventRow{}
	}
	_ = json.NewEncoder(w).Encode(rows)
}

func stageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if stageSource == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(ActionResponse{OK: false, Error: "no stage"})
		return
	}
	_ = json.NewEncoder(w).Encode(stageSource.Latest())
}

type ActionResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type KeyRequest struct {
	Key string `json:"key"`
}

type BroadcastRequest struct {
	Name string `json:"name"`
}

func writeAction(w http.ResponseWriter, code int, errMsg string) {
	if code != http.StatusOK {
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(ActionResponse{OK: false, Error: errMsg})
		return
	}
	_ = json.NewEncoder(w).Encode(ActionResponse{OK: true})
}

// actionHandler checks method and controller before running fn.
func actionHandler(fn func(w http.ResponseWriter, r *http.Request, c Controller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method != http.MethodPost {
			writeAction(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		c := controller
		if c == nil {
			writeAction(w, http.StatusServiceUnavailable, "project not running")
			return
		}
		fn(w, r, c)
	}
}

var greenFlagHandler = actionHandler(func(w http.ResponseWriter, r *http.Request, c Controller) {
	c.GreenFlag()
	writeAction(w, http.StatusOK, "")
})

var keyHandler = actionHandler(func(w http.ResponseWriter, r *http.Request, c Controller) {
	var req KeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAction(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		writeAction(w, http.StatusBadRequest, "key required")
		return
	}
	c.PressKey(key)
	writeAction(w, http.StatusOK, "")
})

var broadcastHandler = actionHandler(func(w http.ResponseWriter, r *http.Request, c Controller) {
	var req BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAction(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeAction(w, http.StatusBadRequest, "name required")
		return
	}
	c.Broadcast(name)
	writeAction(w, http.StatusOK, "")
})

var stopSoundsHandler = actionHandler(func(w http.ResponseWriter, r *http.Request, c Controller) {
	c.Post(c.StopAllSounds)
	writeAction(w, http.StatusOK, "")
})

// NewMux builds the router. Probes and metrics are never behind auth.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/metrics", metricsHandler)

	mux.HandleFunc("/events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("/events/history", RequireAnyRole(historyHandler))
	mux.HandleFunc("/stage", RequireAnyRole(stageHandler))
	mux.HandleFunc("/ws/events", RequireAnyRole(wsEventsHandler))
	mux.HandleFunc("/ui", RequireAnyRole(uiHandler))

	mux.HandleFunc("/green-flag", RequireAnyRole(greenFlagHandler))
	mux.HandleFunc("/input/key", RequireAnyRole(keyHandler))
	mux.HandleFunc("/broadcast", RequireAnyRole(broadcastHandler))
	mux.HandleFunc("/sounds/stop", RequireAdmin(stopSoundsHandler))
	return mux
}

// ListenAndServe serves the API on port until ctx is cancelled. TLS is
// used when InitTLS found a certificate pair.
func ListenAndServe(ctx context.Context, port int) error {
	tlsCfg, err := LoadTLSConfig()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewMux(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			log.Printf("API listening on %s (TLS)\n", srv.Addr)
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		log.Printf("API listening on %s\n", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		events.CloseAllSubscribers()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
