package store

import (
	"context"
	"sync"

	"github.com/xkilldash9x/bbox-cli/api/schemas"
)

// Memory keeps snapshots in process. Sessions do not survive a restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]schemas.Row
}

var _ schemas.SnapshotStore = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]schemas.Row)}
}

// Put stores a copy of rows under sessionID.
func (m *Memory) Put(ctx context.Context, sessionID string, rows []schemas.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; ok {
		return ErrSessionExists
	}
	m.sessions[sessionID] = append([]schemas.Row{}, rows...)
	return nil
}

// Get returns a copy of the rows stored under sessionID.
func (m *Memory) Get(ctx context.Context, sessionID string) ([]schemas.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return append([]schemas.Row{}, rows...), nil
}

// Close implements schemas.SnapshotStore.
func (m *Memory) Close() error { return nil }
