// Package persistence keeps an audit trail of finished scenario runs in
// SQLite. Graphs are never resumed from it.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/orchestrator"
)

// ErrRunNotFound is returned by GetRun for unknown run IDs.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is a stored scenario run.
type RunRecord struct {
	RunID            string           `json:"run_id"`
	Scenario         string           `json:"scenario"`
	Query            string           `json:"query"`
	GraphID          string           `json:"graph_id,omitempty"`
	Success          bool             `json:"success"`
	Error            string           `json:"error,omitempty"`
	Result           string           `json:"result,omitempty"`
	FailedRequired   []string         `json:"failed_required,omitempty"`
	Phases           []string         `json:"phases,omitempty"`
	ConflictCount    *int             `json:"conflict_count,omitempty"`
	DataQualityScore *float64         `json:"data_quality_score,omitempty"`
	ConflictReport   *conflict.Report `json:"conflict_report,omitempty"`
	StartedAt        time.Time        `json:"started_at"`
	Duration         time.Duration    `json:"duration"`
	Tasks            []TaskRecord     `json:"tasks,omitempty"`
}

// TaskRecord is a stored task outcome. Results are kept as rendered text.
type TaskRecord struct {
	TaskID      string        `json:"task_id"`
	Agent       string        `json:"agent"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status"`
	Optional    bool          `json:"optional"`
	Attempts    int           `json:"attempts"`
	Result      string        `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// AgentSession is a remote agent created by a run and not yet cleaned up.
type AgentSession struct {
	Agent     string    `json:"agent"`
	AgentID   string    `json:"agent_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the run history interface.
type Store interface {
	orchestrator.Recorder

	// Run history
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Remote agents awaiting cleanup
	SaveAgentSession(ctx context.Context, s AgentSession) error
	DeleteAgentSession(ctx context.Context, agent string) error
	ListAgentSessions(ctx context.Context) ([]AgentSession, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	// Create parent directories
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Note: modernc.org/sqlite doesn't support _foreign_keys in connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Each store gets its own named database shared by its connections.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:history-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite).
	// A single connection keeps the pragma and the in-memory database alive.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
