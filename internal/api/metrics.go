package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/AaronLay10/StagePlayer/internal/events"
	"github.com/AaronLay10/StagePlayer/internal/version"
)

var metricsState = &MetricsState{}

// MetricsState holds process-level values for the /metrics endpoint.
type MetricsState struct {
	mu          sync.RWMutex
	startTime   time.Time
	projectName string
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
}

// SetProjectName sets the project label on every metric.
func SetProjectName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.projectName = name
}

func GetProjectName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.projectName
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metricsState.mu.RLock()
	startTime := metricsState.startTime
	projectName := metricsState.projectName
	metricsState.mu.RUnlock()

	readiness.mu.RLock()
	projectRunning := readiness.projectRunning
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	labels := fmt.Sprintf(`project="%s",instance="%s",version="%s"`, projectName, hostname, version.Version)

	writeMetric("stageplayer_uptime_seconds", "gauge",
		"Number of seconds since the player started", time.Since(startTime).Seconds(), labels)
	writeMetric("stageplayer_project_running", "gauge",
		"Whether the project loop is running (1) or not (0)", boolGauge(projectRunning), labels)
	writeMetric("stageplayer_events_total", "counter",
		"Total number of events emitted since startup", events.TotalCount(), labels)
	writeMetric("stageplayer_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("stageplayer_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected), labels)
	writeMetric("stageplayer_ws_clients", "gauge",
		"Number of active WebSocket client connections", events.SubscriberCount(), labels)

	if c := controller; c != nil {
		stats := c.Stats()
		writeMetric("stageplayer_scripts_running", "gauge",
			"Number of script instances in the running set", stats.Running, labels)
		writeMetric("stageplayer_sounds_playing", "gauge",
			"Number of sounds in the playback registry", stats.Sounds, labels)
		writeMetric("stageplayer_frames_total", "counter",
			"Total number of frames stepped", stats.Frames, labels)
		writeMetric("stageplayer_trigger_fires_total", "counter",
			"Total number of trigger dispatches", stats.Fires, labels)
	}
}
