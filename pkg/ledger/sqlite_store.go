package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single-file SQLite database, for
// single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return NewSQLiteStore(db)
}

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS ledger_checkpoints (
		ledger_id TEXT PRIMARY KEY,
		direct_cents INTEGER NOT NULL,
		integration_cents INTEGER NOT NULL,
		combined_cents INTEGER NOT NULL,
		shutdown_active BOOLEAN NOT NULL,
		shutdown_reason TEXT NOT NULL DEFAULT '',
		shutdown_at DATETIME,
		version INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("migrate ledger_checkpoints: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, ledgerID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT ledger_id, direct_cents, integration_cents, combined_cents, shutdown_active, shutdown_reason, shutdown_at, version, updated_at FROM ledger_checkpoints WHERE ledger_id = ?",
		ledgerID)
	return scanSnapshot(row)
}

func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	query := `
	INSERT INTO ledger_checkpoints (ledger_id, direct_cents, integration_cents, combined_cents, shutdown_active, shutdown_reason, shutdown_at, version, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(ledger_id) DO UPDATE SET
		direct_cents = excluded.direct_cents,
		integration_cents = excluded.integration_cents,
		combined_cents = excluded.combined_cents,
		shutdown_active = excluded.shutdown_active,
		shutdown_reason = excluded.shutdown_reason,
		shutdown_at = excluded.shutdown_at,
		version = excluded.version,
		updated_at = excluded.updated_at
	WHERE ledger_checkpoints.version <= excluded.version`
	if _, err := s.db.ExecContext(ctx, query, snapshotArgs(snap)...); err != nil {
		return fmt.Errorf("failed to persist ledger checkpoint: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
