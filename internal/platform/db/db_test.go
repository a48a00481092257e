package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB は testutil.NewDB と同じ構成。testutil は db を import するのでここでは使えない
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(conn, SQLite))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn := newTestDB(t)

	require.NoError(t, Migrate(conn, SQLite))

	version, dirty, err := SchemaVersion(conn, SQLite)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestIsDuplicateKeyOnSQLite(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const q = `INSERT INTO profiles (id, username, created_at, updated_at) VALUES (?, ?, ?, ?)`
	_, err := conn.ExecContext(ctx, q, "sub-1", "alice", now, now)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, q, "sub-2", "alice", now, now)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))
	assert.False(t, IsForeignKey(err))
}

func TestIsForeignKeyOnSQLite(t *testing.T) {
	conn := newTestDB(t)
	now := time.Now().UTC()

	_, err := conn.ExecContext(context.Background(),
		`INSERT INTO items (id, owner_id, title, description, item_condition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"01HZZZZZZZZZZZZZZZZZZZZZZZ", "nobody", "Drill", "", "good", now, now)
	require.Error(t, err)
	assert.True(t, IsForeignKey(err))
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO profiles (id, username, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			"sub-1", "alice", now, now); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n))
	assert.Zero(t, n)
}

func TestLockClause(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", MySQL.LockClause())
	assert.Empty(t, SQLite.LockClause())
}

func TestRunInTxRetriesDeadlock(t *testing.T) {
	conn := newTestDB(t)
	calls := 0
	err := RunInTx(context.Background(), conn, nil, func(ctx context.Context, tx DBTX) error {
		calls++
		if calls < 2 {
			return &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunInTxGivesUpAfterAttempts(t *testing.T) {
	conn := newTestDB(t)
	calls := 0
	err := RunInTx(context.Background(), conn, nil, func(ctx context.Context, tx DBTX) error {
		calls++
		return &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
	})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, txAttempts, calls)
}

func TestRunInTxDoesNotRetryOtherErrors(t *testing.T) {
	conn := newTestDB(t)
	calls := 0
	err := RunInTx(context.Background(), conn, nil, func(ctx context.Context, tx DBTX) error {
		calls++
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunInTxRollsBackOnPanic(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	assert.Panics(t, func() {
		_ = RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
			_, _ = tx.ExecContext(ctx,
				`INSERT INTO profiles (id, username, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				"sub-2", "bob", now, now)
			panic("boom")
		})
	})

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n))
	assert.Zero(t, n)
}
