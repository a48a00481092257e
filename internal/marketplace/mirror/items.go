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

const itemColumns = `id, owner_id, title, description, image_url, item_condition, available,
	contract_item_id, chain_fee, chain_deposit, chain_available, chain_min_reputation,
	chain_nonce, chain_metadata_hash, chain_synced_at, sync_flag, drift_observed_at,
	created_at, updated_at`

func scanItem(r rowScanner) (*Item, error) {
	var it Item
	err := r.Scan(
		&it.ID, &it.OwnerID, &it.Title, &it.Description, &it.ImageURL, &it.Condition, &it.Available,
		&it.ContractItemID, &it.Chain.Fee, &it.Chain.Deposit, &it.Chain.Available, &it.Chain.MinReputation,
		&it.Chain.Nonce, &it.Chain.MetadataHash, &it.Chain.SyncedAt, &it.SyncFlag, &it.DriftObservedAt,
		&it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) getItem(ctx context.Context, q db.DBTX, id string, lock bool) (*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE id = ?`
	if lock {
		query += s.lock()
	}
	it, err := scanItem(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("item not found")
	}
	return it, err
}

func (s *Store) GetItem(ctx context.Context, q db.DBTX, id string) (*Item, error) {
	return s.getItem(ctx, q, id, false)
}

// LockItem reads the item row and holds it for the rest of the transaction.
func (s *Store) LockItem(ctx context.Context, q db.DBTX, id string) (*Item, error) {
	return s.getItem(ctx, q, id, true)
}

// ItemByContractID returns the item currently linked to a registry id, or nil.
func (s *Store) ItemByContractID(ctx context.Context, q db.DBTX, contractItemID string) (*Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE contract_item_id = ?`, contractItemID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

func (s *Store) InsertItem(ctx context.Context, q db.DBTX, it *Item) error {
	const stmt = `
		INSERT INTO items (id, owner_id, title, description, image_url, item_condition, available,
			sync_flag, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if it.SyncFlag == "" {
		it.SyncFlag = SyncFlagNone
	}
	_, err := q.ExecContext(ctx, stmt,
		it.ID, it.OwnerID, it.Title, it.Description, it.ImageURL, it.Condition, it.Available,
		it.SyncFlag, it.CreatedAt, it.UpdatedAt,
	)
	if db.IsForeignKey(err) {
		return apierr.NotFound("owner profile not found")
	}
	return err
}

// UpdateItemDetails writes the owner-editable columns only.
func (s *Store) UpdateItemDetails(ctx context.Context, q db.DBTX, it *Item) error {
	const stmt = `
		UPDATE items SET title = ?, description = ?, image_url = ?, item_condition = ?, updated_at = ?
		WHERE id = ?`
	res, err := q.ExecContext(ctx, stmt, it.Title, it.Description, it.ImageURL, it.Condition, it.UpdatedAt, it.ID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) SetItemAvailable(ctx context.Context, q db.DBTX, id string, available bool, now time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE items SET available = ?, updated_at = ? WHERE id = ?`, available, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetContractLink stores (or clears, when contractItemID is invalid) the registry link.
// A fresh link also drops any orphaned_link flag and stale projection.
func (s *Store) SetContractLink(ctx context.Context, q db.DBTX, id string, contractItemID sql.NullString, now time.Time) error {
	const stmt = `
		UPDATE items SET
			contract_item_id = ?,
			chain_fee = NULL, chain_deposit = NULL, chain_available = NULL, chain_min_reputation = NULL,
			chain_nonce = NULL, chain_metadata_hash = NULL, chain_synced_at = NULL,
			drift_observed_at = NULL,
			sync_flag = CASE WHEN ? AND sync_flag = 'orphaned_link' THEN 'none' ELSE sync_flag END,
			updated_at = ?
		WHERE id = ?`
	res, err := q.ExecContext(ctx, stmt, contractItemID, contractItemID.Valid, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// MarkOrphaned clears the link of an item whose registry entry vanished.
func (s *Store) MarkOrphaned(ctx context.Context, q db.DBTX, id string, now time.Time) error {
	const stmt = `
		UPDATE items SET contract_item_id = NULL, sync_flag = 'orphaned_link', updated_at = ?
		WHERE id = ?`
	res, err := q.ExecContext(ctx, stmt, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) UpdateChainProjection(ctx context.Context, q db.DBTX, id string, p ChainProjection, now time.Time) error {
	const stmt = `
		UPDATE items SET
			chain_fee = ?, chain_deposit = ?, chain_available = ?, chain_min_reputation = ?,
			chain_nonce = ?, chain_metadata_hash = ?, chain_synced_at = ?, updated_at = ?
		WHERE id = ?`
	res, err := q.ExecContext(ctx, stmt,
		p.Fee, p.Deposit, p.Available, p.MinReputation, p.Nonce, p.MetadataHash, p.SyncedAt, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) SetSyncState(ctx context.Context, q db.DBTX, id string, flag SyncFlag, observedAt sql.NullTime, now time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE items SET sync_flag = ?, drift_observed_at = ?, updated_at = ? WHERE id = ?`,
		flag, observedAt, now, id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (s *Store) ListItems(ctx context.Context, q db.DBTX, f ItemFilter, p Page) ([]*Item, error) {
	p = p.Normalize()
	var (
		where []string
		args  []any
	)
	if f.OwnerID != nil {
		where = append(where, "owner_id = ?")
		args = append(args, *f.OwnerID)
	}
	if f.Available != nil {
		where = append(where, "available = ?")
		args = append(args, *f.Available)
	}
	if f.SyncFlag != nil {
		where = append(where, "sync_flag = ?")
		args = append(args, *f.SyncFlag)
	}
	if f.Linked != nil {
		if *f.Linked {
			where = append(where, "contract_item_id IS NOT NULL")
		} else {
			where = append(where, "contract_item_id IS NULL")
		}
	}

	query := `SELECT ` + itemColumns + ` FROM items`
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

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// LinkedItem is one row of the sweeper snapshot.
type LinkedItem struct {
	ItemID         string
	ContractItemID string
}

// LinkedItems reads every linked item without taking locks.
func (s *Store) LinkedItems(ctx context.Context, q db.DBTX) ([]LinkedItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, contract_item_id FROM items WHERE contract_item_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LinkedItem
	for rows.Next() {
		var li LinkedItem
		if err := rows.Scan(&li.ItemID, &li.ContractItemID); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}
