package scheduler

import (
	"context"
	"sync"
)

// AgentLockManager serializes calls to the same agent.
// Uses a keyed lock pattern: each agent name gets its own single-slot channel,
// so different agents run concurrently while calls to one agent queue up.
type AgentLockManager struct {
	mu    sync.Mutex               // Guards the locks map itself
	locks map[string]chan struct{} // Per-agent slots
}

// NewAgentLockManager creates a new AgentLockManager.
func NewAgentLockManager() *AgentLockManager {
	return &AgentLockManager{
		locks: make(map[string]chan struct{}),
	}
}

func (m *AgentLockManager) slot(agent string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch, exists := m.locks[agent]
	if !exists {
		ch = make(chan struct{}, 1)
		m.locks[agent] = ch
	}
	return ch
}

// Lock blocks until the agent is free or ctx is done.
func (m *AgentLockManager) Lock(ctx context.Context, agent string) error {
	select {
	case m.slot(agent) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the agent. Unlocking an agent that is not held is a no-op.
func (m *AgentLockManager) Unlock(agent string) {
	select {
	case <-m.slot(agent):
	default:
	}
}
