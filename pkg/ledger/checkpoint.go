package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Checkpointer periodically persists a ledger's snapshot. It runs beside
// the ledger and never holds the ledger lock while doing I/O.
type Checkpointer struct {
	ledger   *Ledger
	store    Store
	ledgerID string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	lastSaved uint64
	saved     bool
}

func NewCheckpointer(l *Ledger, store Store, ledgerID string, interval time.Duration) *Checkpointer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Checkpointer{
		ledger:   l,
		store:    store,
		ledgerID: ledgerID,
		interval: interval,
		logger:   slog.Default().With("component", "ledger.checkpointer", "ledger_id", ledgerID),
	}
}

// Flush saves the current snapshot if it is newer than the last save.
// Concurrent flushes are serialized and the snapshot is taken inside that
// critical section, so persisted versions never go backwards.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.ledger.Snapshot(c.ledgerID)
	if c.saved && snap.Version <= c.lastSaved {
		return nil
	}
	if err := c.store.Save(ctx, snap); err != nil {
		return err
	}
	c.lastSaved = snap.Version
	c.saved = true
	return nil
}

// Run flushes every interval until ctx is cancelled, then flushes once more
// with a short detached deadline.
func (c *Checkpointer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := c.Flush(final); err != nil {
				c.logger.Error("final checkpoint failed", "error", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := c.Flush(ctx); err != nil {
				c.logger.WarnContext(ctx, "checkpoint failed", "error", err)
			}
		}
	}
}
