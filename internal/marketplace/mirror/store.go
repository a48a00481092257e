package mirror

import (
	"context"
	"database/sql"
	"errors"

	"lendledger-backend/internal/platform/db"
)

// ErrStale is returned when a compare-and-set update matched no row because
// the row moved on since it was read.
var ErrStale = errors.New("mirror: row changed concurrently")

// Store は mirror テーブル群へのアクセスをまとめる。
// 各メソッドは db.DBTX を受け取り、呼び出し側のトランザクションに参加する。
type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewStore(conn *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: conn, dialect: dialect}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() db.Dialect { return s.dialect }

// InTx runs fn inside a single transaction on the mirror database.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	return db.RunInTx(ctx, s.db, &sql.TxOptions{}, fn)
}

func (s *Store) lock() string { return s.dialect.LockClause() }

func expectOne(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff != 1 {
		return ErrStale
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}
