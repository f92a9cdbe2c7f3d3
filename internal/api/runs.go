package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mthorley/hydronet/internal/events"
	"github.com/mthorley/hydronet/internal/sim"
)

// Run is one simulation run known to the store. Results is nil for
// runs restored from Postgres after a restart; their logs are served
// from the database instead.
type Run struct {
	ID         string
	Scenario   string
	State      string
	Steps      int
	Failure    string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    *sim.Results
}

// RunStore is the process-wide registry of runs the API serves. Runs
// are registered when they start and updated once when they finish;
// accessors return value snapshots.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[string]Run
	order []string
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]Run)}
}

// store is the registry the HTTP handlers serve from.
var store = NewRunStore()

// Runs returns the package-level run store.
func Runs() *RunStore {
	return store
}

// Start registers a run in the running state.
func (s *RunStore) Start(id, scenario string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists {
		s.order = append(s.order, id)
	}
	s.runs[id] = Run{
		ID:        id,
		Scenario:  scenario,
		State:     string(sim.StateRunning),
		StartedAt: time.Now().UTC(),
	}
}

// Finish records a run's outcome and its in-memory logs.
func (s *RunStore) Finish(id string, state sim.State, steps int, failure string, results *sim.Results) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return
	}
	run.State = string(state)
	run.Steps = steps
	run.Failure = failure
	run.FinishedAt = time.Now().UTC()
	run.Results = results
	s.runs[id] = run
}

// Restore inserts a run summary reconstructed from Postgres. Existing
// entries win, so live runs are never overwritten by stale rows.
func (s *RunStore) Restore(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return
	}
	s.order = append(s.order, run.ID)
	s.runs[run.ID] = run
}

// Get returns a snapshot of one run.
func (s *RunStore) Get(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// List returns snapshots of all runs, newest first.
func (s *RunStore) List() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out
}

// Len returns the number of runs registered.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs)
}

// RunnerFunc starts a fresh run of the loaded scenario and returns its
// run ID. Set by the entrypoint that owns the scenario.
type RunnerFunc func() (string, error)

var runner RunnerFunc

// SetRunner sets the function the POST /runs endpoint invokes.
func SetRunner(fn RunnerFunc) {
	runner = fn
}

type RunSummary struct {
	RunID      string `json:"run_id"`
	Scenario   string `json:"scenario"`
	State      string `json:"state"`
	Steps      int    `json:"steps"`
	Failure    string `json:"failure,omitempty"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
}

type RunDetail struct {
	RunSummary
	Nodes []string `json:"nodes,omitempty"`
}

type RunResponse struct {
	OK    bool   `json:"ok"`
	RunID string `json:"run_id,omitempty"`
	Error string `json:"error,omitempty"`
}

type LogResponse struct {
	RunID   string      `json:"run_id"`
	Node    string      `json:"node"`
	Headers []string    `json:"headers"`
	Rows    [][]float64 `json:"rows"`
}

func summarize(run Run) RunSummary {
	s := RunSummary{
		RunID:     run.ID,
		Scenario:  run.Scenario,
		State:     run.State,
		Steps:     run.Steps,
		Failure:   run.Failure,
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339Nano),
	}
	if !run.FinishedAt.IsZero() {
		s.FinishedAt = run.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	return s
}

// runsHandler serves GET /runs (list) and POST /runs (start a run).
func runsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		listRunsHandler(w, r)
	case http.MethodPost:
		startRunHandler(w, r)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(OperatorResponse{OK: false, Error: "method not allowed"})
	}
}

func listRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs := store.List()
	out := make([]RunSummary, len(runs))
	for i, run := range runs {
		out[i] = summarize(run)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

// startRunHandler re-runs the loaded scenario. Admin only; the route
// wrapper has already authenticated, this narrows the role.
func startRunHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if role := authenticate(r); role != RoleAdmin {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(RunResponse{OK: false, Error: "admin role required"})
		return
	}

	if runner == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(RunResponse{OK: false, Error: "no scenario loaded"})
		return
	}

	runID, err := runner()
	if err != nil {
		SendAlert(AlertRunFailed, SeverityCritical, err.Error(), map[string]interface{}{
			"run_id": runID,
		})
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(RunResponse{OK: false, RunID: runID, Error: err.Error()})
		return
	}

	_ = json.NewEncoder(w).Encode(RunResponse{OK: true, RunID: runID})
}

// runDetailHandler routes GET /runs/{id} and GET /runs/{id}/nodes/{node}/log.
func runDetailHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/runs/"), "/"), "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		serveRun(w, parts[0])
	case len(parts) == 4 && parts[1] == "nodes" && parts[3] == "log":
		serveLog(w, parts[0], parts[2])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func serveRun(w http.ResponseWriter, id string) {
	run, ok := store.Get(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	detail := RunDetail{RunSummary: summarize(run)}
	if run.Results != nil {
		detail.Nodes = run.Results.Names()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(detail)
}

func serveLog(w http.ResponseWriter, id, node string) {
	run, ok := store.Get(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	if run.Results != nil {
		l := run.Results.Log(node)
		if l == nil {
			http.Error(w, "node not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(LogResponse{
			RunID:   id,
			Node:    node,
			Headers: l.Headers(),
			Rows:    l.Rows(),
		})
		return
	}

	serveLogFromPostgres(w, id, node)
}

// serveLogFromPostgres rebuilds a restored run's log from step_records.
// Header order is lost in JSONB, so fields come back sorted.
func serveLogFromPostgres(w http.ResponseWriter, id, node string) {
	client := events.GetPostgresClient()
	if client == nil {
		http.Error(w, "log not retained", http.StatusNotFound)
		return
	}

	records, err := client.QueryRecords(id, node, 0)
	if err != nil {
		log.Printf("record query failed: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if len(records) == 0 {
		http.Error(w, "no log for node", http.StatusNotFound)
		return
	}

	headers := make([]string, 0, len(records[0].Record))
	for h := range records[0].Record {
		headers = append(headers, h)
	}
	sort.Strings(headers)

	rows := make([][]float64, len(records))
	for i, rec := range records {
		row := make([]float64, len(headers))
		for j, h := range headers {
			row[j] = rec.Record[h]
		}
		rows[i] = row
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(LogResponse{
		RunID:   id,
		Node:    node,
		Headers: headers,
		Rows:    rows,
	})
}
