package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/orchestrator"
)

// RecordRun stores a finished scenario and its task outcomes.
// Recording the same run again replaces it.
func (s *SQLiteStore) RecordRun(ctx context.Context, res orchestrator.ScenarioResult) error {
	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	failed, err := encodeJSON(res.FailedRequired)
	if err != nil {
		return err
	}
	phases, err := encodeJSON(res.Phases)
	if err != nil {
		return err
	}

	var conflictCount sql.NullInt64
	var quality sql.NullFloat64
	var report sql.NullString
	if r := res.ConflictReport; r != nil {
		conflictCount = sql.NullInt64{Int64: int64(r.ConflictCount), Valid: true}
		quality = sql.NullFloat64{Float64: r.DataQualityScore, Valid: true}
		encoded, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode conflict report: %w", err)
		}
		report = sql.NullString{String: string(encoded), Valid: true}
	}

	// Upsert run (insert or update on conflict)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, query, graph_id, success, error, result, failed_required, phases,
			conflict_count, data_quality_score, conflict_report, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scenario = excluded.scenario,
			query = excluded.query,
			graph_id = excluded.graph_id,
			success = excluded.success,
			error = excluded.error,
			result = excluded.result,
			failed_required = excluded.failed_required,
			phases = excluded.phases,
			conflict_count = excluded.conflict_count,
			data_quality_score = excluded.data_quality_score,
			conflict_report = excluded.conflict_report,
			started_at = excluded.started_at,
			duration_ms = excluded.duration_ms
	`, res.RunID, string(res.ScenarioType), res.Query, res.GraphID, res.Success, res.Error, res.Result, failed, phases,
		conflictCount, quality, report, res.StartedAt.UTC(), res.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	if err := replaceOutcomes(ctx, tx, res.RunID, res.Tasks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const runColumns = `id, scenario, query, graph_id, success, error, result, failed_required, phases,
	conflict_count, data_quality_score, conflict_report, started_at, duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		rec                     RunRecord
		graphID, errStr, result sql.NullString
		failed, phases, report  sql.NullString
		conflictCount           sql.NullInt64
		quality                 sql.NullFloat64
		durationMs              int64
		startedAt               time.Time
	)
	err := row.Scan(&rec.RunID, &rec.Scenario, &rec.Query, &graphID, &rec.Success, &errStr, &result, &failed, &phases,
		&conflictCount, &quality, &report, &startedAt, &durationMs)
	if err != nil {
		return nil, err
	}

	rec.GraphID = graphID.String
	rec.Error = errStr.String
	rec.Result = result.String
	rec.StartedAt = startedAt
	rec.Duration = time.Duration(durationMs) * time.Millisecond

	if err := decodeJSON(failed, &rec.FailedRequired); err != nil {
		return nil, err
	}
	if err := decodeJSON(phases, &rec.Phases); err != nil {
		return nil, err
	}
	if conflictCount.Valid {
		n := int(conflictCount.Int64)
		rec.ConflictCount = &n
	}
	if quality.Valid {
		q := quality.Float64
		rec.DataQualityScore = &q
	}
	if report.Valid {
		var r conflict.Report
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("failed to decode conflict report: %w", err)
		}
		rec.ConflictReport = &r
	}
	return &rec, nil
}

// GetRun retrieves a run by ID, including its task outcomes.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	rec, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	rec.Tasks, err = s.loadOutcomes(ctx, runID)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRuns returns the most recent runs first, without task outcomes.
// A limit of zero or less returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func encodeJSON(v any) (sql.NullString, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func decodeJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return fmt.Errorf("failed to decode %T: %w", v, err)
	}
	return nil
}
