package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mthorley/hydronet/internal/events"
	"github.com/mthorley/hydronet/internal/version"
)

// Metrics state
var (
	metricsState = &MetricsState{}
)

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu                      sync.RWMutex
	startTime               time.Time
	scenarioName            string
	runLastCompletedTimeSec int64 // Unix timestamp, -1 if no run has completed
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.runLastCompletedTimeSec = -1
}

// SetScenarioName sets the scenario name for metrics labels.
func SetScenarioName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.scenarioName = name
}

// GetScenarioName returns the current scenario name.
func GetScenarioName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.scenarioName
}

// SetRunLastCompleted sets the timestamp of the last completed run.
func SetRunLastCompleted(ts time.Time) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.runLastCompletedTimeSec = ts.Unix()
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Gather metrics
	metricsState.mu.RLock()
	startTime := metricsState.startTime
	scenarioName := metricsState.scenarioName
	runLastCompleted := metricsState.runLastCompletedTimeSec
	metricsState.mu.RUnlock()

	uptime := time.Since(startTime).Seconds()
	eventsTotal := events.TotalCount()
	runsTotal := store.Len()

	readiness.mu.RLock()
	simulatorReady := readiness.simulatorReady
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	wsClients := events.SubscriberCount()

	simulatorReadyVal := 0
	if simulatorReady {
		simulatorReadyVal = 1
	}

	mqttConnectedVal := 0
	if mqttConnected {
		mqttConnectedVal = 1
	}

	postgresConnectedVal := 0
	if postgresConnected {
		postgresConnectedVal = 1
	}

	// Get hostname for instance label
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	// Build Prometheus text format response
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper to write metric with optional labels
	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	// Common labels
	labels := fmt.Sprintf(`scenario="%s",instance="%s",version="%s"`, scenarioName, hostname, version.Version)

	// Uptime
	writeMetric("hydronet_uptime_seconds", "gauge",
		"Number of seconds since the service started", uptime, labels)

	// Simulator ready
	writeMetric("hydronet_simulator_ready", "gauge",
		"Whether a scenario is loaded and ordered (1) or not (0)", simulatorReadyVal, labels)

	// Runs total
	writeMetric("hydronet_runs_total", "counter",
		"Total number of runs known to this process", runsTotal, labels)

	// Events total
	writeMetric("hydronet_events_total", "counter",
		"Total number of events emitted since startup", eventsTotal, labels)

	// MQTT connected
	writeMetric("hydronet_mqtt_connected", "gauge",
		"Whether the MQTT broker is connected (1) or not (0)", mqttConnectedVal, labels)

	// Postgres connected
	writeMetric("hydronet_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", postgresConnectedVal, labels)

	// WebSocket clients
	writeMetric("hydronet_ws_clients", "gauge",
		"Number of active WebSocket client connections", wsClients, labels)

	// Last completed run timestamp
	writeMetric("hydronet_run_last_completed_timestamp", "gauge",
		"Unix timestamp of the last completed run (-1 if none)", runLastCompleted, labels)
}
