package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		query TEXT NOT NULL,
		graph_id TEXT,
		success INTEGER NOT NULL,
		error TEXT,
		result TEXT,
		failed_required TEXT,
		phases TEXT,
		conflict_count INTEGER,
		data_quality_score REAL,
		conflict_report TEXT,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS task_outcomes (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		task_id TEXT NOT NULL,
		agent TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		optional INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		result TEXT,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_outcomes_run_id ON task_outcomes(run_id, position);

	CREATE TABLE IF NOT EXISTS agent_sessions (
		agent TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		thread_id TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
