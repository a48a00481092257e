package testutil

import (
	"database/sql"
	"testing"

	"lendledger-backend/internal/platform/db"
)

// NewDB creates a fresh in-memory SQLite mirror with the schema applied.
// It holds a single connection, so concurrent callers queue on it the way
// separate engine instances queue on a shared store's write lock.
func NewDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := db.Migrate(conn, db.SQLite); err != nil {
		conn.Close()
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}
