package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveAgentSession records a remote agent so it can be found again if the
// process dies before cleanup. Uses ON CONFLICT to upsert.
func (s *SQLiteStore) SaveAgentSession(ctx context.Context, session AgentSession) error {
	// Create 5-second timeout context
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions (agent, agent_id, thread_id)
		VALUES (?, ?, ?)
		ON CONFLICT(agent) DO UPDATE SET
			agent_id = excluded.agent_id,
			thread_id = excluded.thread_id,
			created_at = CURRENT_TIMESTAMP
	`, session.Agent, session.AgentID, session.ThreadID)
	if err != nil {
		return fmt.Errorf("failed to save agent session: %w", err)
	}
	return nil
}

// DeleteAgentSession forgets a cleaned up agent. Unknown agents are ignored.
func (s *SQLiteStore) DeleteAgentSession(ctx context.Context, agent string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM agent_sessions WHERE agent = ?`, agent); err != nil {
		return fmt.Errorf("failed to delete agent session: %w", err)
	}
	return nil
}

// ListAgentSessions returns remote agents that were never cleaned up, by agent name.
func (s *SQLiteStore) ListAgentSessions(ctx context.Context) ([]AgentSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent, agent_id, thread_id, created_at
		FROM agent_sessions
		ORDER BY agent
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent sessions: %w", err)
	}
	defer rows.Close()

	sessions := []AgentSession{}
	for rows.Next() {
		var session AgentSession
		var threadID sql.NullString
		if err := rows.Scan(&session.Agent, &session.AgentID, &threadID, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent session: %w", err)
		}
		session.ThreadID = threadID.String
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent sessions: %w", err)
	}

	return sessions, nil
}
