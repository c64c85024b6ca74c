// Package history keeps a record of finished games so past results
// survive restarts. A Redis store is used when REDIS_URL is set,
// otherwise an in-memory store keeps the current process's games.
package history

import (
	"context"
	"sync"
	"time"
)

// Entry summarizes one finished game.
type Entry struct {
	GameID       string    `json:"game_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Result       string    `json:"result"`
	Method       string    `json:"method"`
	MoveCount    int       `json:"move_count"`
	Strategies   []string  `json:"strategies,omitempty"`
	FinalFEN     string    `json:"final_fen,omitempty"`
	LogPath      string    `json:"log_path,omitempty"`
	SnapshotPath string    `json:"snapshot_path,omitempty"`
}

// Store persists finished-game entries. Get returns (nil, nil) when the
// entry does not exist.
type Store interface {
	Save(ctx context.Context, e Entry) error
	Get(ctx context.Context, gameID string) (*Entry, error)
	Recent(ctx context.Context, n int) ([]Entry, error)
}

// MemoryStore keeps entries for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]Entry
	ordered []string // most recent first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Entry)}
}

func (m *MemoryStore) Save(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[e.GameID]; !exists {
		m.ordered = append([]string{e.GameID}, m.ordered...)
	}
	m.byID[e.GameID] = e
	return nil
}

func (m *MemoryStore) Get(_ context.Context, gameID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byID[gameID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) Recent(_ context.Context, n int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n > len(m.ordered) {
		n = len(m.ordered)
	}
	out := make([]Entry, 0, n)
	for _, id := range m.ordered[:n] {
		out = append(out, m.byID[id])
	}
	return out, nil
}
