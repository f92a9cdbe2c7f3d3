// Package api serves the inspection and operator surface of a running
// simulator: run summaries and logs, the event stream (snapshot, history
// and live WebSocket), Prometheus metrics, and the operator release
// target endpoint.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mthorley/hydronet/internal/events"
)

// NodeValidator checks if a node exists in the loaded network.
type NodeValidator interface {
	HasNode(name string) bool
}

var nodeValidator NodeValidator

// SetNodeValidator sets the validator used by the target endpoint.
// *sim.System satisfies the interface.
func SetNodeValidator(v NodeValidator) {
	nodeValidator = v
}

// TargetSetter receives operator release targets. *mqtt.TargetFeed
// satisfies the interface.
type TargetSetter interface {
	Set(node string, target float64)
}

var targetFeed TargetSetter

// SetTargetFeed sets the sink for operator release targets.
func SetTargetFeed(t TargetSetter) {
	targetFeed = t
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
		Service:   "api",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// readiness tracks dependency state for the /ready endpoint. Optional
// dependencies report as unavailable without failing the probe.
var readiness = struct {
	mu                sync.RWMutex
	simulatorReady    bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}{}

// SetSimulatorReady marks the simulator as loaded and ordered.
func SetSimulatorReady(ready bool) {
	readiness.mu.Lock()
	readiness.simulatorReady = ready
	readiness.mu.Unlock()
}

// SetMQTTState records broker connectivity for readiness and metrics.
func SetMQTTState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = optional
	readiness.mu.Unlock()
}

// SetPostgresState records database connectivity for readiness and metrics.
func SetPostgresState(connected, optional bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = optional
	readiness.mu.Unlock()
}

// CheckStatus is one dependency's entry in the readiness response.
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
	simulatorReady := readiness.simulatorReady
	mqttConnected := readiness.mqttConnected
	mqttOptional := readiness.mqttOptional
	postgresConnected := readiness.postgresConnected
	postgresOptional := readiness.postgresOptional
	readiness.mu.RUnlock()

	resp := ReadinessResponse{
		Ready:  true,
		Checks: make(map[string]CheckStatus),
	}
	var reasons []string

	if simulatorReady {
		resp.Checks["simulator"] = CheckStatus{Status: "ok"}
	} else {
		resp.Checks["simulator"] = CheckStatus{Status: "not_ready"}
		resp.Ready = false
		reasons = append(reasons, "simulator not ready")
	}

	resp.Checks["mqtt"] = dependencyCheck(mqttConnected, mqttOptional)
	if !mqttConnected && !mqttOptional {
		resp.Ready = false
		reasons = append(reasons, "mqtt not connected")
	}

	resp.Checks["postgres"] = dependencyCheck(postgresConnected, postgresOptional)
	if !postgresConnected && !postgresOptional {
		resp.Ready = false
		reasons = append(reasons, "postgres not connected")
	}

	resp.NotReadyMsg = strings.Join(reasons, "; ")

	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func dependencyCheck(connected, optional bool) CheckStatus {
	switch {
	case connected:
		return CheckStatus{Status: "ok", Optional: optional}
	case optional:
		return CheckStatus{Status: "unavailable", Optional: true}
	default:
		return CheckStatus{Status: "not_ready"}
	}
}

// eventsHandler serves the in-memory ring buffer snapshot.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events.Snapshot())
}

// eventsHistoryHandler serves persisted events from Postgres, newest
// first. The ring buffer only holds the most recent 256.
func eventsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	client := events.GetPostgresClient()
	if client == nil {
		http.Error(w, "event history requires postgres", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := client.QueryEvents(limit)
	if err != nil {
		log.Printf("event history query failed: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

type TargetRequest struct {
	Node   string   `json:"node"`
	Target *float64 `json:"target"`
}

type OperatorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// targetsHandler accepts an operator release target for one node. The
// target lands in the same feed MQTT targets arrive on, so the next
// step of an active reservoir chases it.
func targetsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(OperatorResponse{OK: false, Error: "method not allowed"})
		return
	}

	var req TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(OperatorResponse{OK: false, Error: "invalid JSON"})
		return
	}

	if req.Node == "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(OperatorResponse{OK: false, Error: "node required"})
		return
	}
	if req.Target == nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(OperatorResponse{OK: false, Error: "target required"})
		return
	}

	if nodeValidator == nil || !nodeValidator.HasNode(req.Node) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(OperatorResponse{OK: false, Error: "node not found"})
		return
	}

	if targetFeed == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(OperatorResponse{OK: false, Error: "target feed not configured"})
		return
	}

	targetFeed.Set(req.Node, *req.Target)

	_ = json.NewEncoder(w).Encode(OperatorResponse{OK: true})
}

// ListenAndServe starts the API server on the given port.
// It blocks until the server exits.
func ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/metrics", metricsHandler)
	mux.HandleFunc("/events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("/events/history", RequireAnyRole(eventsHistoryHandler))
	mux.HandleFunc("/runs", RequireAnyRole(runsHandler))
	mux.HandleFunc("/runs/", RequireAnyRole(runDetailHandler))
	mux.HandleFunc("/targets", RequireAnyRole(targetsHandler))
	mux.HandleFunc("/ws/events", wsEventsHandler)

	addr := fmt.Sprintf(":%d", port)

	if tlsCfg := LoadTLSConfig(); tlsCfg != nil {
		srv := &http.Server{Addr: addr, Handler: mux, TLSConfig: tlsCfg}
		log.Printf("API listening on %s (TLS)\n", addr)
		return srv.ListenAndServeTLS("", "")
	}

	log.Printf("API listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}

// Start starts the API server in a goroutine.
// Errors are logged but do not stop the caller.
func Start(port int) {
	go func() {
		if err := ListenAndServe(port); err != nil {
			log.Printf("api server error: %v", err)
		}
	}()
}
