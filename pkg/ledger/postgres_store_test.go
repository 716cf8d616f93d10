package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matbakh-app/matbakh-visibility-boost-sub012/pkg/contracts"
)

const selectCheckpoint = "SELECT ledger_id, direct_cents, integration_cents, combined_cents, shutdown_active, shutdown_reason, shutdown_at, version, updated_at FROM ledger_checkpoints WHERE ledger_id = $1"

var checkpointColumns = []string{"ledger_id", "direct_cents", "integration_cents", "combined_cents", "shutdown_active", "shutdown_reason", "shutdown_at", "version", "updated_at"}

func TestPostgresStore_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(selectCheckpoint)).
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows(checkpointColumns).
			AddRow("main", int64(40), int64(15), int64(55), true, "critical spend", now, int64(9), now))

	snap, err := store.Load(ctx, "main")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, contracts.Cents(40), snap.Direct)
	assert.Equal(t, contracts.Cents(55), snap.Combined)
	assert.True(t, snap.ShutdownActive)
	assert.Equal(t, now, snap.ShutdownAt)
	assert.Equal(t, uint64(9), snap.Version)

	mock.ExpectQuery(regexp.QuoteMeta(selectCheckpoint)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(checkpointColumns))

	snap, err = store.Load(ctx, "missing")
	assert.NoError(t, err)
	assert.Nil(t, snap)

	mock.ExpectQuery(regexp.QuoteMeta(selectCheckpoint)).
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	_, err = store.Load(ctx, "broken")
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_checkpoints")).
		WithArgs("main", int64(10), int64(5), int64(15), false, "", sqlmock.AnyArg(), int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Save(ctx, Snapshot{LedgerID: "main", Direct: 10, Integration: 5, Combined: 15, Version: 3})
	assert.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_checkpoints")).
		WillReturnError(errors.New("disk full"))

	err = store.Save(ctx, Snapshot{LedgerID: "main"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to persist ledger checkpoint")

	assert.NoError(t, mock.ExpectationsWereMet())
}
