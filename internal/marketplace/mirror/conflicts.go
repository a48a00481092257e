package mirror

import (
	"context"
	"database/sql"
	"errors"

	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/db"
)

const conflictColumns = `id, borrow_request_id, reporter_id, description, status, resolution, outcome,
	resolver_id, created_at, updated_at, resolved_at`

func scanConflict(r rowScanner) (*Conflict, error) {
	var c Conflict
	err := r.Scan(&c.ID, &c.BorrowRequestID, &c.ReporterID, &c.Description, &c.Status, &c.Resolution,
		&c.Outcome, &c.ResolverID, &c.CreatedAt, &c.UpdatedAt, &c.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) getConflict(ctx context.Context, q db.DBTX, id string, lock bool) (*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE id = ?`
	if lock {
		query += s.lock()
	}
	c, err := scanConflict(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("conflict not found")
	}
	return c, err
}

func (s *Store) GetConflict(ctx context.Context, q db.DBTX, id string) (*Conflict, error) {
	return s.getConflict(ctx, q, id, false)
}

func (s *Store) LockConflict(ctx context.Context, q db.DBTX, id string) (*Conflict, error) {
	return s.getConflict(ctx, q, id, true)
}

// InsertConflict stores an open conflict. open_request_id is unique, so a
// second open conflict on the same request fails with a duplicate key.
func (s *Store) InsertConflict(ctx context.Context, q db.DBTX, c *Conflict) error {
	const stmt = `
		INSERT INTO conflicts (id, borrow_request_id, reporter_id, description, status, open_request_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, stmt,
		c.ID, c.BorrowRequestID, c.ReporterID, c.Description, ConflictOpen, c.BorrowRequestID, c.CreatedAt, c.UpdatedAt)
	return err
}

// ResolveConflict closes an open conflict and releases its open slot.
func (s *Store) ResolveConflict(ctx context.Context, q db.DBTX, c *Conflict) error {
	const stmt = `
		UPDATE conflicts SET
			status = ?, resolution = ?, outcome = ?, resolver_id = ?,
			open_request_id = NULL, resolved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`
	res, err := q.ExecContext(ctx, stmt,
		ConflictResolved, c.Resolution, c.Outcome, c.ResolverID, c.ResolvedAt, c.UpdatedAt, c.ID, ConflictOpen)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// OpenConflictForRequest returns the open conflict on a request, or nil.
func (s *Store) OpenConflictForRequest(ctx context.Context, q db.DBTX, requestID string) (*Conflict, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE open_request_id = ?`, requestID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// LatestConflictForRequest returns the most recently raised conflict, or nil.
func (s *Store) LatestConflictForRequest(ctx context.Context, q db.DBTX, requestID string) (*Conflict, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE borrow_request_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		requestID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *Store) ListConflictsForRequest(ctx context.Context, q db.DBTX, requestID string) ([]*Conflict, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM conflicts WHERE borrow_request_id = ? ORDER BY created_at, id`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
