package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/orchestrator"
)

// replaceOutcomes stores the task outcomes of a run, dropping any previous ones.
func replaceOutcomes(ctx context.Context, tx *sql.Tx, runID string, outcomes []orchestrator.TaskOutcome) error {
	// Delete existing outcomes for this run
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_outcomes WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete old task outcomes: %w", err)
	}

	for i, o := range outcomes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_outcomes (run_id, position, task_id, agent, description, status, optional, attempts, result, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, i, o.TaskID, o.Agent, o.Description, o.Status, o.Optional, o.Attempts,
			orchestrator.RenderResult(o.Result), o.Error, o.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to insert outcome of task %s: %w", o.TaskID, err)
		}
	}
	return nil
}

// loadOutcomes returns the task outcomes of a run in graph order.
func (s *SQLiteStore) loadOutcomes(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, agent, description, status, optional, attempts, result, error, duration_ms
		FROM task_outcomes
		WHERE run_id = ?
		ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task outcomes: %w", err)
	}
	defer rows.Close()

	tasks := []TaskRecord{}
	for rows.Next() {
		var t TaskRecord
		var description, result, errStr sql.NullString
		var durationMs int64
		if err := rows.Scan(&t.TaskID, &t.Agent, &description, &t.Status, &t.Optional, &t.Attempts, &result, &errStr, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan task outcome: %w", err)
		}
		t.Description = description.String
		t.Result = result.String
		t.Error = errStr.String
		t.Duration = time.Duration(durationMs) * time.Millisecond
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task outcomes: %w", err)
	}

	return tasks, nil
}
