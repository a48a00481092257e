package mirror

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/db"
)

const profileColumns = `id, wallet_address, email, username, created_at, updated_at`

func scanProfile(r rowScanner) (*Profile, error) {
	var p Profile
	if err := r.Scan(&p.ID, &p.WalletAddress, &p.Email, &p.Username, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProfile(ctx context.Context, q db.DBTX, id string) (*Profile, error) {
	row := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("profile not found")
	}
	return p, err
}

func (s *Store) ProfileByUsername(ctx context.Context, q db.DBTX, username string) (*Profile, error) {
	row := q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = ?`, username)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("profile not found")
	}
	return p, err
}

// InsertProfile returns the raw driver error on a key clash so callers can
// tell an id race from a username clash.
func (s *Store) InsertProfile(ctx context.Context, q db.DBTX, p *Profile) error {
	const stmt = `
		INSERT INTO profiles (id, wallet_address, email, username, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, stmt, p.ID, p.WalletAddress, p.Email, p.Username, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) UpdateProfileWallet(ctx context.Context, q db.DBTX, id string, wallet sql.NullString, now time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE profiles SET wallet_address = ?, updated_at = ? WHERE id = ?`, wallet, now, id)
	if err != nil {
		return err
	}
	if err := expectOne(res); err != nil {
		return apierr.NotFound("profile not found")
	}
	return nil
}
