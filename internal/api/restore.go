package api

import (
	"fmt"

	"github.com/mthorley/hydronet/internal/storage/postgres"
)

// RestoreRuns seeds the run store with summaries of past runs from
// Postgres, so /runs survives a restart. Logs of restored runs are
// served from step_records on demand. Returns the number restored.
func RestoreRuns(client *postgres.Client) (int, error) {
	rows, err := client.QueryRuns(200)
	if err != nil {
		return 0, fmt.Errorf("failed to query past runs: %w", err)
	}

	// QueryRuns returns newest first; insert oldest first so the
	// store's order matches insertion time.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		run := Run{
			ID:        row.RunID,
			Scenario:  row.Scenario,
			State:     row.State,
			Steps:     row.Steps,
			StartedAt: row.StartedAt,
		}
		if row.Failure != nil {
			run.Failure = *row.Failure
		}
		if row.FinishedAt != nil {
			run.FinishedAt = *row.FinishedAt
		}
		store.Restore(run)
	}

	return len(rows), nil
}
