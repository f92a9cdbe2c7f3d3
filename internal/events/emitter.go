package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mthorley/hydronet/internal/storage/postgres"
)

var buffer = NewRingBuffer(256)

var (
	pgClient *postgres.Client
	pgMu     sync.RWMutex

	runMu sync.RWMutex
	runID string
)

// SetPostgresClient sets the Postgres client for event persistence.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	pgMu.Unlock()
}

// GetPostgresClient returns the current Postgres client (for API queries).
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

// SetRun tags all subsequent events with the given run ID.
func SetRun(id string) {
	runMu.Lock()
	runID = id
	runMu.Unlock()
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Run       string                 `json:"run,omitempty"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	runMu.RLock()
	run := runID
	runMu.RUnlock()

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Run:       run,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	broadcast(e)

	// Persist to Postgres (non-blocking, error-resistant)
	pgMu.RLock()
	client := pgClient
	pgMu.RUnlock()

	if client != nil {
		if err := client.AppendEvent(ts, level, name, msg, fields, run); err != nil {
			// Log the failure once to avoid spam. The system.error goes
			// straight to the ring buffer, NOT through Emit, so a
			// persistently failing database cannot recurse.
			if !client.HasLoggedError() {
				client.MarkErrorLogged()
				buffer.Add(Event{
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					Level:     "error",
					Name:      "system.error",
					Message:   "postgres append failed",
					Fields: map[string]interface{}{
						"error": err.Error(),
					},
				})
			}
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return buffer.Total()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
