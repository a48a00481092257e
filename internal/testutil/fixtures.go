package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/db"
)

var seedTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// NewStore returns a mirror store over a fresh in-memory database.
func NewStore(t *testing.T) *mirror.Store {
	t.Helper()
	return mirror.NewStore(NewDB(t), db.SQLite)
}

// SeedProfile inserts a profile whose username equals its id.
func SeedProfile(t *testing.T, s *mirror.Store, id, wallet string) *mirror.Profile {
	t.Helper()
	p := &mirror.Profile{
		ID:        id,
		Username:  id,
		CreatedAt: seedTime,
		UpdatedAt: seedTime,
	}
	if wallet != "" {
		p.WalletAddress = sql.NullString{String: wallet, Valid: true}
	}
	if err := s.InsertProfile(context.Background(), s.DB(), p); err != nil {
		t.Fatalf("seed profile %s: %v", id, err)
	}
	return p
}

// SeedItem inserts an available, unlinked item owned by ownerID.
func SeedItem(t *testing.T, s *mirror.Store, id, ownerID string) *mirror.Item {
	t.Helper()
	it := &mirror.Item{
		ID:          id,
		OwnerID:     ownerID,
		Title:       "item " + id,
		Description: "seeded",
		Condition:   mirror.ConditionGood,
		Available:   true,
		SyncFlag:    mirror.SyncFlagNone,
		CreatedAt:   seedTime,
		UpdatedAt:   seedTime,
	}
	if err := s.InsertItem(context.Background(), s.DB(), it); err != nil {
		t.Fatalf("seed item %s: %v", id, err)
	}
	return it
}

// SeedLink sets contract_item_id directly, bypassing the linker.
func SeedLink(t *testing.T, s *mirror.Store, itemID, contractItemID string) {
	t.Helper()
	link := sql.NullString{String: contractItemID, Valid: true}
	if err := s.SetContractLink(context.Background(), s.DB(), itemID, link, seedTime); err != nil {
		t.Fatalf("seed link %s: %v", itemID, err)
	}
}

// MustItem reloads an item or fails the test.
func MustItem(t *testing.T, s *mirror.Store, id string) *mirror.Item {
	t.Helper()
	it, err := s.GetItem(context.Background(), s.DB(), id)
	if err != nil {
		t.Fatalf("get item %s: %v", id, err)
	}
	return it
}

// MustRequest reloads a borrow request or fails the test.
func MustRequest(t *testing.T, s *mirror.Store, id string) *mirror.BorrowRequest {
	t.Helper()
	br, err := s.GetRequest(context.Background(), s.DB(), id)
	if err != nil {
		t.Fatalf("get request %s: %v", id, err)
	}
	return br
}
