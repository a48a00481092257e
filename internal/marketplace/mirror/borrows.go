package mirror

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/db"
)

const requestColumns = `id, item_id, borrower_id, status, start_date, end_date, created_at, updated_at`

func scanRequest(r rowScanner) (*BorrowRequest, error) {
	var br BorrowRequest
	if err := r.Scan(&br.ID, &br.ItemID, &br.BorrowerID, &br.Status, &br.StartDate, &br.EndDate, &br.CreatedAt, &br.UpdatedAt); err != nil {
		return nil, err
	}
	return &br, nil
}

func (s *Store) getRequest(ctx context.Context, q db.DBTX, id string, lock bool) (*BorrowRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM borrow_requests WHERE id = ?`
	if lock {
		query += s.lock()
	}
	br, err := scanRequest(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("borrow request not found")
	}
	return br, err
}

func (s *Store) GetRequest(ctx context.Context, q db.DBTX, id string) (*BorrowRequest, error) {
	return s.getRequest(ctx, q, id, false)
}

func (s *Store) LockRequest(ctx context.Context, q db.DBTX, id string) (*BorrowRequest, error) {
	return s.getRequest(ctx, q, id, true)
}

// ActiveRequestForItem returns the non-terminal request holding the item, or nil.
func (s *Store) ActiveRequestForItem(ctx context.Context, q db.DBTX, itemID string) (*BorrowRequest, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM borrow_requests WHERE active_item_id = ?`, itemID)
	br, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return br, err
}

// InsertRequest claims the item's active slot when the status is non-terminal.
// A second claimant fails on the unique active_item_id column.
func (s *Store) InsertRequest(ctx context.Context, q db.DBTX, br *BorrowRequest) error {
	const stmt = `
		INSERT INTO borrow_requests (id, item_id, borrower_id, status, start_date, end_date, active_item_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	var active sql.NullString
	if br.Status.NonTerminal() {
		active = sql.NullString{String: br.ItemID, Valid: true}
	}
	_, err := q.ExecContext(ctx, stmt,
		br.ID, br.ItemID, br.BorrowerID, br.Status, br.StartDate, br.EndDate, active, br.CreatedAt, br.UpdatedAt)
	return err
}

// TransitionRequest moves a request from one status to another only if it is
// still in from. ErrStale means another writer got there first.
func (s *Store) TransitionRequest(ctx context.Context, q db.DBTX, id string, from, to RequestStatus, now time.Time) error {
	const stmt = `
		UPDATE borrow_requests SET
			status = ?,
			active_item_id = CASE WHEN ? THEN item_id ELSE NULL END,
			updated_at = ?
		WHERE id = ? AND status = ?`
	res, err := q.ExecContext(ctx, stmt, to, to.NonTerminal(), now, id, from)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) ListRequests(ctx context.Context, q db.DBTX, f RequestFilter, p Page) ([]*BorrowRequest, error) {
	p = p.Normalize()
	var (
		where []string
		args  []any
	)
	if f.ItemID != nil {
		where = append(where, "item_id = ?")
		args = append(args, *f.ItemID)
	}
	if f.BorrowerID != nil {
		where = append(where, "borrower_id = ?")
		args = append(args, *f.BorrowerID)
	}
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}

	query := `SELECT ` + requestColumns + ` FROM borrow_requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, p.Limit, p.Offset)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BorrowRequest
	for rows.Next() {
		br, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, br)
	}
	return out, rows.Err()
}
