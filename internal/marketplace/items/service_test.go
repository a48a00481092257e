package items

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
	"lendledger-backend/internal/platform/logging"
	"lendledger-backend/internal/testutil"
)

func setup(t *testing.T) (*Service, *mirror.Store) {
	t.Helper()
	store := testutil.NewStore(t)
	testutil.SeedProfile(t, store, "alice", "")
	testutil.SeedProfile(t, store, "bob", "")
	return NewService(store, testutil.FixedClock(), testutil.NewStubIDGen(), logging.Discard()), store
}

var (
	alice = auth.Session{Subject: "alice"}
	bob   = auth.Session{Subject: "bob"}
)

func TestCreateValidates(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, alice, CreateItemRequest{Title: " ", Condition: "good"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = svc.Create(ctx, alice, CreateItemRequest{Title: "Drill", Condition: "broken"})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	bad := "ftp://example.com/x.png"
	_, err = svc.Create(ctx, alice, CreateItemRequest{Title: "Drill", Condition: "good", ImageURL: &bad})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = svc.Create(ctx, auth.Session{Subject: "nobody"}, CreateItemRequest{Title: "Drill", Condition: "good"})
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestCreateAndGet(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	img := "https://img.example.com/drill.png"

	res, err := svc.Create(ctx, alice, CreateItemRequest{Title: " Drill ", Description: "cordless", ImageURL: &img, Condition: "like_new"})
	require.NoError(t, err)
	assert.Equal(t, "id-0001", res.ID)
	assert.Equal(t, "alice", res.OwnerID)
	assert.Equal(t, "Drill", res.Title)
	assert.True(t, res.Available)
	assert.Equal(t, "none", res.SyncFlag)
	assert.Nil(t, res.Chain)

	got, err := svc.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Title, got.Title)
	require.NotNil(t, got.ImageURL)
	assert.Equal(t, img, *got.ImageURL)
}

func TestUpdateOwnerOnly(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	testutil.SeedItem(t, store, "i1", "alice")

	title := "Ladder"
	_, err := svc.Update(ctx, bob, "i1", UpdateItemRequest{Title: &title})
	assert.Equal(t, apierr.CodeNotOwner, apierr.CodeOf(err))

	cond := "fair"
	res, err := svc.Update(ctx, alice, "i1", UpdateItemRequest{Title: &title, Condition: &cond})
	require.NoError(t, err)
	assert.Equal(t, "Ladder", res.Title)
	assert.Equal(t, "fair", res.Condition)

	_, err = svc.Update(ctx, alice, "missing", UpdateItemRequest{})
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestSetAvailabilityBlockedByActiveRequest(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	testutil.SeedItem(t, store, "i1", "alice")

	res, err := svc.SetAvailability(ctx, alice, "i1", false)
	require.NoError(t, err)
	assert.False(t, res.Available)

	_, err = svc.SetAvailability(ctx, bob, "i1", true)
	assert.Equal(t, apierr.CodeNotOwner, apierr.CodeOf(err))

	_, err = svc.SetAvailability(ctx, alice, "i1", true)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertRequest(ctx, store.DB(), &mirror.BorrowRequest{
		ID: "r1", ItemID: "i1", BorrowerID: "bob", Status: mirror.StatusPending,
		StartDate: now, EndDate: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))
	_, err = svc.SetAvailability(ctx, alice, "i1", false)
	assert.Equal(t, apierr.CodeItemUnavailable, apierr.CodeOf(err))
	assert.True(t, testutil.MustItem(t, store, "i1").Available)
}

func TestClearSyncFlag(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	testutil.SeedItem(t, store, "i1", "alice")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetSyncState(ctx, store.DB(), "i1", mirror.SyncFlagDrift, sql.NullTime{Time: now, Valid: true}, now))

	_, err := svc.ClearSyncFlag(ctx, bob, "i1")
	assert.Equal(t, apierr.CodeNotOwner, apierr.CodeOf(err))

	res, err := svc.ClearSyncFlag(ctx, alice, "i1")
	require.NoError(t, err)
	assert.Equal(t, "none", res.SyncFlag)
	assert.Nil(t, res.DriftObservedAt)

	// no-op の2回目も成功する
	_, err = svc.ClearSyncFlag(ctx, alice, "i1")
	require.NoError(t, err)
}

func TestListRejectsUnknownFlag(t *testing.T) {
	svc, store := setup(t)
	testutil.SeedItem(t, store, "i1", "alice")

	flag := mirror.SyncFlag("weird")
	_, err := svc.List(context.Background(), mirror.ItemFilter{SyncFlag: &flag}, mirror.Page{})
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	res, err := svc.List(context.Background(), mirror.ItemFilter{}, mirror.Page{})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.Equal(t, 50, res.Limit)
}
