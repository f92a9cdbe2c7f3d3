package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// RunRow summarizes one simulation run.
type RunRow struct {
	RunID      string     `json:"run_id"`
	Scenario   string     `json:"scenario"`
	State      string     `json:"state"`
	Steps      int        `json:"steps"`
	Failure    *string    `json:"failure,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// StepRow is one node's record for one step of a run.
type StepRow struct {
	RunID  string             `json:"run_id"`
	Node   string             `json:"node"`
	Step   int                `json:"step"`
	Record map[string]float64 `json:"record"`
}

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Scenario  string                 `json:"scenario"`
	RunID     *string                `json:"run_id,omitempty"`
}

// Client manages the Postgres connection for run, step-record and
// event storage. One client serves one scenario; CreateRun scopes the
// step records that follow.
type Client struct {
	db       *sql.DB
	scenario string

	mu          sync.Mutex
	runID       string
	errorLogged bool
}

// New creates a Postgres client from the PG* environment variables.
// The caller decides whether a connection failure is fatal.
func New(scenario string) (*Client, error) {
	host := getEnv("PGHOST", "127.0.0.1")
	port := getEnv("PGPORT", "5432")
	user := getEnv("PGUSER", "hydronet")
	dbname := getEnv("PGDATABASE", "hydronet")
	password := os.Getenv("PGPASSWORD")

	var connStr string
	if password != "" {
		connStr = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			host, port, user, password, dbname)
	} else {
		connStr = fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
			host, port, user, dbname)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{
		db:       db,
		scenario: scenario,
	}

	if err := client.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return client, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func (c *Client) createTables() error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id      TEXT PRIMARY KEY,
			scenario    TEXT NOT NULL,
			state       TEXT NOT NULL,
			steps       INTEGER NOT NULL DEFAULT 0,
			failure     TEXT,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_runs_scenario ON runs(scenario);
		CREATE TABLE IF NOT EXISTS step_records (
			record_id BIGSERIAL PRIMARY KEY,
			run_id    TEXT NOT NULL,
			node      TEXT NOT NULL,
			step      INTEGER NOT NULL,
			record    JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_step_records_run ON step_records(run_id, node, step);
		CREATE TABLE IF NOT EXISTS events (
			event_id BIGSERIAL PRIMARY KEY,
			ts       TIMESTAMPTZ NOT NULL,
			level    TEXT NOT NULL,
			event    TEXT NOT NULL,
			msg      TEXT,
			fields   JSONB,
			scenario TEXT NOT NULL,
			run_id   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_events_scenario ON events(scenario);
	`
	_, err := c.db.Exec(query)
	return err
}

// CreateRun registers a run in the running state and scopes subsequent
// Record calls to it.
func (c *Client) CreateRun(runID string, steps int) error {
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()

	query := `
		INSERT INTO runs (run_id, scenario, state, steps, started_at)
		VALUES ($1, $2, 'running', $3, $4)
	`
	_, err := c.db.Exec(query, runID, c.scenario, steps, time.Now().UTC())
	return err
}

// FinishRun records a run's terminal state. failure is stored only
// when non-empty.
func (c *Client) FinishRun(runID, state string, steps int, failure string) error {
	var failurePtr *string
	if failure != "" {
		failurePtr = &failure
	}

	query := `
		UPDATE runs
		SET state = $2, steps = $3, failure = $4, finished_at = $5
		WHERE run_id = $1
	`
	_, err := c.db.Exec(query, runID, state, steps, failurePtr, time.Now().UTC())
	return err
}

// Record inserts one node's step record, keyed by the run given to
// CreateRun. Headers and values pair up into a JSONB object. This is
// the step-recorder contract the simulation fans records out through.
func (c *Client) Record(step int, node string, headers []string, values []float64) error {
	c.mu.Lock()
	runID := c.runID
	c.mu.Unlock()
	if runID == "" {
		return fmt.Errorf("no run in progress")
	}

	record := make(map[string]float64, len(values))
	for i, v := range values {
		if i < len(headers) {
			record[headers[i]] = v
		}
	}
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	query := `
		INSERT INTO step_records (run_id, node, step, record)
		VALUES ($1, $2, $3, $4)
	`
	_, err = c.db.Exec(query, runID, node, step, recordJSON)
	return err
}

// AppendEvent inserts an event into the database.
func (c *Client) AppendEvent(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var runPtr *string
	if runID != "" {
		runPtr = &runID
	}

	query := `
		INSERT INTO events (ts, level, event, msg, fields, scenario, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, c.scenario, runPtr)
	return err
}

// QueryRuns returns the scenario's most recent runs, newest first.
func (c *Client) QueryRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT run_id, scenario, state, steps, failure, started_at, finished_at
		FROM runs
		WHERE scenario = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.scenario, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRow
	for rows.Next() {
		var r RunRow
		var failure sql.NullString
		var finished sql.NullTime

		if err := rows.Scan(&r.RunID, &r.Scenario, &r.State, &r.Steps, &failure, &r.StartedAt, &finished); err != nil {
			return nil, err
		}

		if failure.Valid {
			r.Failure = &failure.String
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		runs = append(runs, r)
	}

	return runs, rows.Err()
}

// QueryRecords returns one node's step records for a run in step order.
func (c *Client) QueryRecords(runID, node string, limit int) ([]StepRow, error) {
	if limit <= 0 {
		limit = 1000
	}
	if limit > 100000 {
		limit = 100000
	}

	query := `
		SELECT run_id, node, step, record
		FROM step_records
		WHERE run_id = $1 AND node = $2
		ORDER BY step ASC
		LIMIT $3
	`
	rows, err := c.db.Query(query, runID, node, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []StepRow
	for rows.Next() {
		var s StepRow
		var recordJSON []byte

		if err := rows.Scan(&s.RunID, &s.Node, &s.Step, &recordJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(recordJSON, &s.Record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		records = append(records, s)
	}

	return records, rows.Err()
}

// QueryEvents returns the last N events for the scenario, newest first.
func (c *Client) QueryEvents(limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, scenario, run_id
		FROM events
		WHERE scenario = $1
		ORDER BY ts DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, c.scenario, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, runID sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.Scenario, &runID); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if runID.Valid {
			e.RunID = &runID.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// MarkErrorLogged marks that an append error has been logged (to avoid
// spam).
func (c *Client) MarkErrorLogged() {
	c.mu.Lock()
	c.errorLogged = true
	c.mu.Unlock()
}

// HasLoggedError returns true if an append error has been logged.
func (c *Client) HasLoggedError() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errorLogged
}
