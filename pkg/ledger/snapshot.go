package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

// Snapshot is the persisted form of a ledger.
type Snapshot struct {
	LedgerID       string          `json:"ledger_id"`
	Direct         contracts.Cents `json:"direct_cents"`
	Integration    contracts.Cents `json:"integration_cents"`
	Combined       contracts.Cents `json:"combined_cents"`
	ShutdownActive bool            `json:"shutdown_active"`
	ShutdownReason string          `json:"shutdown_reason,omitempty"`
	ShutdownAt     time.Time       `json:"shutdown_at,omitempty"`
	Version        uint64          `json:"version"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Snapshot captures the current state under the lock.
func (l *Ledger) Snapshot(ledgerID string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		LedgerID:       ledgerID,
		Direct:         l.direct,
		Integration:    l.integration,
		Combined:       l.combined,
		ShutdownActive: l.shutdownActive,
		ShutdownReason: l.shutdownReason,
		ShutdownAt:     l.shutdownAt,
		Version:        l.version,
		UpdatedAt:      l.clock(),
	}
}

// Store persists ledger snapshots.
type Store interface {
	// Load returns the latest snapshot, or nil with no error when none exists.
	Load(ctx context.Context, ledgerID string) (*Snapshot, error)
	// Save upserts the snapshot.
	Save(ctx context.Context, s Snapshot) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (m *MemoryStore) Load(_ context.Context, ledgerID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[ledgerID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.LedgerID] = s
	return nil
}

// Open loads the persisted snapshot for ledgerID, if any, and builds a
// Ledger from it.
func Open(ctx context.Context, store Store, ledgerID string, cfg Config, opts ...Option) (*Ledger, error) {
	snap, err := store.Load(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		opts = append(opts, WithSnapshot(snap))
	}
	return New(cfg, opts...)
}
