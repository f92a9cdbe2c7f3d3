package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mthorley/hydronet/internal/sim"
)

// clearTLSEnvServer prevents TLS initialization from trying to load nonexistent certs.
func clearTLSEnvServer(t *testing.T) {
	t.Setenv("HYDRONET_TLS_CERT", "")
	t.Setenv("HYDRONET_TLS_KEY", "")
	t.Setenv("HYDRONET_TLS_CERT_FILE", "")
	t.Setenv("HYDRONET_TLS_KEY_FILE", "")
}

func TestHealthEndpoint(t *testing.T) {
	clearTLSEnvServer(t)
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

	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", resp.Status)
	}
}

func TestReadyEndpoint_AllReady(t *testing.T) {
	clearTLSEnvServer(t)
	// Reset state
	readiness.mu.Lock()
	readiness.simulatorReady = true
	readiness.mqttConnected = true
	readiness.mqttOptional = false
	readiness.postgresConnected = true
	readiness.postgresOptional = false
	readiness.mu.Unlock()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !resp.Ready {
		t.Error("expected ready=true")
	}
	if resp.Checks["simulator"].Status != "ok" {
		t.Errorf("expected simulator status 'ok', got '%s'", resp.Checks["simulator"].Status)
	}
	if resp.Checks["mqtt"].Status != "ok" {
		t.Errorf("expected mqtt status 'ok', got '%s'", resp.Checks["mqtt"].Status)
	}
	if resp.Checks["postgres"].Status != "ok" {
		t.Errorf("expected postgres status 'ok', got '%s'", resp.Checks["postgres"].Status)
	}
}

func TestReadyEndpoint_SimulatorNotReady(t *testing.T) {
	clearTLSEnvServer(t)
	// Reset state
	readiness.mu.Lock()
	readiness.simulatorReady = false
	readiness.mqttConnected = true
	readiness.mqttOptional = false
	readiness.postgresConnected = true
	readiness.postgresOptional = false
	readiness.mu.Unlock()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Ready {
		t.Error("expected ready=false")
	}
	if resp.Checks["simulator"].Status != "not_ready" {
		t.Errorf("expected simulator status 'not_ready', got '%s'", resp.Checks["simulator"].Status)
	}
	if resp.NotReadyMsg == "" {
		t.Error("expected non-empty message")
	}
}

func TestReadyEndpoint_OptionalMQTTUnavailable(t *testing.T) {
	clearTLSEnvServer(t)
	// Reset state - MQTT unavailable but marked as optional
	readiness.mu.Lock()
	readiness.simulatorReady = true
	readiness.mqttConnected = false
	readiness.mqttOptional = true
	readiness.postgresConnected = true
	readiness.postgresOptional = false
	readiness.mu.Unlock()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 (optional dependency), got %d", w.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !resp.Ready {
		t.Error("expected ready=true with optional MQTT unavailable")
	}
	if resp.Checks["mqtt"].Status != "unavailable" {
		t.Errorf("expected mqtt status 'unavailable', got '%s'", resp.Checks["mqtt"].Status)
	}
	if !resp.Checks["mqtt"].Optional {
		t.Error("expected mqtt optional=true")
	}
}

func TestReadyEndpoint_RequiredMQTTNotConnected(t *testing.T) {
	clearTLSEnvServer(t)
	// Reset state - MQTT not connected and NOT optional
	readiness.mu.Lock()
	readiness.simulatorReady = true
	readiness.mqttConnected = false
	readiness.mqttOptional = false
	readiness.postgresConnected = true
	readiness.postgresOptional = false
	readiness.mu.Unlock()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Ready {
		t.Error("expected ready=false")
	}
	if resp.Checks["mqtt"].Status != "not_ready" {
		t.Errorf("expected mqtt status 'not_ready', got '%s'", resp.Checks["mqtt"].Status)
	}
}

func TestReadyEndpoint_OptionalPostgresUnavailable(t *testing.T) {
	clearTLSEnvServer(t)
	// Reset state - Postgres unavailable but marked as optional
	readiness.mu.Lock()
	readiness.simulatorReady = true
	readiness.mqttConnected = true
	readiness.mqttOptional = false
	readiness.postgresConnected = false
	readiness.postgresOptional = true
	readiness.mu.Unlock()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 (optional dependency), got %d", w.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if !resp.Ready {
		t.Error("expected ready=true with optional Postgres unavailable")
	}
	if resp.Checks["postgres"].Status != "unavailable" {
		t.Errorf("expected postgres status 'unavailable', got '%s'", resp.Checks["postgres"].Status)
	}
	if !resp.Checks["postgres"].Optional {
		t.Error("expected postgres optional=true")
	}
}

func TestReadyEndpoint_MultipleDependenciesNotReady(t *testing.T) {
	clearTLSEnvServer(t)
	// Reset state - multiple issues
	readiness.mu.Lock()
	readiness.simulatorReady = false
	readiness.mqttConnected = false
	readiness.mqttOptional = false
	readiness.postgresConnected = true
	readiness.postgresOptional = false
	readiness.mu.Unlock()

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var resp ReadinessResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Ready {
		t.Error("expected ready=false")
	}
	// Should contain both reasons
	if resp.NotReadyMsg == "" {
		t.Error("expected non-empty message with multiple reasons")
	}
	if !strings.Contains(resp.NotReadyMsg, ";") {
		t.Errorf("expected joined reasons, got %q", resp.NotReadyMsg)
	}
}

func TestSetReadinessState(t *testing.T) {
	clearTLSEnvServer(t)
	// Test SetSimulatorReady
	SetSimulatorReady(true)
	readiness.mu.RLock()
	if !readiness.simulatorReady {
		t.Error("SetSimulatorReady(true) didn't set state")
	}
	readiness.mu.RUnlock()

	SetSimulatorReady(false)
	readiness.mu.RLock()
	if readiness.simulatorReady {
		t.Error("SetSimulatorReady(false) didn't clear state")
	}
	readiness.mu.RUnlock()

	// Test SetMQTTState
	SetMQTTState(true, false)
	readiness.mu.RLock()
	if !readiness.mqttConnected || readiness.mqttOptional {
		t.Error("SetMQTTState(true, false) didn't set state correctly")
	}
	readiness.mu.RUnlock()

	SetMQTTState(false, true)
	readiness.mu.RLock()
	if readiness.mqttConnected || !readiness.mqttOptional {
		t.Error("SetMQTTState(false, true) didn't set state correctly")
	}
	readiness.mu.RUnlock()

	// Test SetPostgresState
	SetPostgresState(true, false)
	readiness.mu.RLock()
	if !readiness.postgresConnected || readiness.postgresOptional {
		t.Error("SetPostgresState(true, false) didn't set state correctly")
	}
	readiness.mu.RUnlock()

	SetPostgresState(false, true)
	readiness.mu.RLock()
	if readiness.postgresConnected || !readiness.postgresOptional {
		t.Error("SetPostgresState(false, true) didn't set state correctly")
	}
	readiness.mu.RUnlock()
}

// feedRecorder captures targets handed to the feed.
type feedRecorder struct {
	node   string
	target float64
	calls  int
}

func (f *feedRecorder) Set(node string, target float64) {
	f.node = node
	f.target = target
	f.calls++
}

// testNetwork builds a one-reservoir system for node validation.
func testNetwork(t *testing.T) *sim.System {
	t.Helper()
	creek, err := sim.NewInflow("creek", []float64{1, 1})
	if err != nil {
		t.Fatalf("NewInflow: %v", err)
	}
	dam := sim.NewStorage("dam", []string{"creek"}, nil)
	sys, err := sim.New([]sim.Node{creek, dam})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sys
}

func TestTargetEndpoint(t *testing.T) {
	clearTLSEnvServer(t)
	resetAuth()
	auth = &authConfig{enabled: false}

	feed := &feedRecorder{}
	SetTargetFeed(feed)
	defer SetTargetFeed(nil)
	SetNodeValidator(testNetwork(t))
	defer SetNodeValidator(nil)

	req := httptest.NewRequest("POST", "/targets", strings.NewReader(`{"node":"dam","target":2.5}`))
	w := httptest.NewRecorder()

	targetsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if feed.calls != 1 {
		t.Fatalf("expected 1 feed call, got %d", feed.calls)
	}
	if feed.node != "dam" || feed.target != 2.5 {
		t.Errorf("feed got (%q, %v), want (\"dam\", 2.5)", feed.node, feed.target)
	}
}

func TestTargetEndpointRejectsUnknownNode(t *testing.T) {
	clearTLSEnvServer(t)
	resetAuth()
	auth = &authConfig{enabled: false}

	feed := &feedRecorder{}
	SetTargetFeed(feed)
	defer SetTargetFeed(nil)
	SetNodeValidator(testNetwork(t))
	defer SetNodeValidator(nil)

	req := httptest.NewRequest("POST", "/targets", strings.NewReader(`{"node":"nile","target":1}`))
	w := httptest.NewRecorder()

	targetsHandler(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if feed.calls != 0 {
		t.Errorf("feed should not be called for unknown node, got %d calls", feed.calls)
	}
}

func TestTargetEndpointValidation(t *testing.T) {
	clearTLSEnvServer(t)
	resetAuth()
	auth = &authConfig{enabled: false}

	feed := &feedRecorder{}
	SetTargetFeed(feed)
	defer SetTargetFeed(nil)
	SetNodeValidator(testNetwork(t))
	defer SetNodeValidator(nil)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid JSON", `{`, http.StatusBadRequest},
		{"missing node", `{"target":1}`, http.StatusBadRequest},
		{"missing target", `{"node":"dam"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/targets", strings.NewReader(tc.body))
			w := httptest.NewRecorder()

			targetsHandler(w, req)

			if w.Code != tc.code {
				t.Errorf("expected status %d, got %d", tc.code, w.Code)
			}

			var resp OperatorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.OK {
				t.Error("expected ok=false")
			}
			if resp.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestTargetEndpointMethodNotAllowed(t *testing.T) {
	clearTLSEnvServer(t)
	resetAuth()
	auth = &authConfig{enabled: false}

	req := httptest.NewRequest("GET", "/targets", nil)
	w := httptest.NewRecorder()

	targetsHandler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}
