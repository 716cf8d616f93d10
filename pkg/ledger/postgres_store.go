package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
//
//	CREATE TABLE ledger_checkpoints (
//	    ledger_id         TEXT PRIMARY KEY,
//	    direct_cents      BIGINT NOT NULL,
//	    integration_cents BIGINT NOT NULL,
//	    combined_cents    BIGINT NOT NULL,
//	    shutdown_active   BOOLEAN NOT NULL,
//	    shutdown_reason   TEXT NOT NULL DEFAULT '',
//	    shutdown_at       TIMESTAMPTZ,
//	    version           BIGINT NOT NULL,
//	    updated_at        TIMESTAMPTZ NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context, ledgerID string) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT ledger_id, direct_cents, integration_cents, combined_cents, shutdown_active, shutdown_reason, shutdown_at, version, updated_at FROM ledger_checkpoints WHERE ledger_id = $1",
		ledgerID)
	return scanSnapshot(row)
}

func (s *PostgresStore) Save(ctx context.Context, snap Snapshot) error {
	query := `
		INSERT INTO ledger_checkpoints (ledger_id, direct_cents, integration_cents, combined_cents, shutdown_active, shutdown_reason, shutdown_at, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ledger_id) DO UPDATE SET
			direct_cents = EXCLUDED.direct_cents,
			integration_cents = EXCLUDED.integration_cents,
			combined_cents = EXCLUDED.combined_cents,
			shutdown_active = EXCLUDED.shutdown_active,
			shutdown_reason = EXCLUDED.shutdown_reason,
			shutdown_at = EXCLUDED.shutdown_at,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE ledger_checkpoints.version <= EXCLUDED.version
	`
	_, err := s.db.ExecContext(ctx, query, snapshotArgs(snap)...)
	if err != nil {
		return fmt.Errorf("failed to persist ledger checkpoint: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		snap                               Snapshot
		direct, integration, combined, ver int64
		shutdownAt                         sql.NullTime
	)
	err := row.Scan(&snap.LedgerID, &direct, &integration, &combined, &snap.ShutdownActive,
		&snap.ShutdownReason, &shutdownAt, &ver, &snap.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger checkpoint: %w", err)
	}
	snap.Direct, snap.Integration, snap.Combined = contracts.Cents(direct), contracts.Cents(integration), contracts.Cents(combined)
	snap.Version = uint64(ver)
	if shutdownAt.Valid {
		snap.ShutdownAt = shutdownAt.Time
	}
	return &snap, nil
}

func snapshotArgs(snap Snapshot) []any {
	var shutdownAt sql.NullTime
	if !snap.ShutdownAt.IsZero() {
		shutdownAt = sql.NullTime{Time: snap.ShutdownAt, Valid: true}
	}
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return []any{
		snap.LedgerID,
		int64(snap.Direct),
		int64(snap.Integration),
		int64(snap.Combined),
		snap.ShutdownActive,
		snap.ShutdownReason,
		shutdownAt,
		int64(snap.Version),
		updated,
	}
}
