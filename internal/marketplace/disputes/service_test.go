package disputes

import (
	"context"
	"sync"
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

var (
	owner    = auth.Session{Subject: "alice"}
	borrower = auth.Session{Subject: "bob"}
	stranger = auth.Session{Subject: "mallory"}
)

// setup は alice の i1 を bob が借りている (approved) 状態を作る
func setup(t *testing.T) (*Service, *mirror.Store) {
	t.Helper()
	store := testutil.NewStore(t)
	ctx := context.Background()
	for _, id := range []string{"alice", "bob", "mallory"} {
		testutil.SeedProfile(t, store, id, "")
	}
	testutil.SeedItem(t, store, "i1", "alice")

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertRequest(ctx, store.DB(), &mirror.BorrowRequest{
		ID: "r1", ItemID: "i1", BorrowerID: "bob", Status: mirror.StatusApproved,
		StartDate: now, EndDate: now.Add(48 * time.Hour), CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, store.SetItemAvailable(ctx, store.DB(), "i1", false, now))

	return NewService(store, testutil.FixedClock(), testutil.NewStubIDGen(), logging.Discard()), store
}

func TestOpenValidation(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	_, err := svc.Open(ctx, borrower, "r1", "  ")
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	_, err = svc.Open(ctx, stranger, "r1", "broken")
	assert.Equal(t, apierr.CodeNotParticipant, apierr.CodeOf(err))

	_, err = svc.Open(ctx, borrower, "missing", "broken")
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	assert.Equal(t, mirror.StatusApproved, testutil.MustRequest(t, store, "r1").Status)
}

func TestOpenRequiresApproved(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	testutil.SeedItem(t, store, "i2", "alice")
	require.NoError(t, store.InsertRequest(ctx, store.DB(), &mirror.BorrowRequest{
		ID: "r2", ItemID: "i2", BorrowerID: "bob", Status: mirror.StatusPending,
		StartDate: now, EndDate: now.Add(time.Hour), CreatedAt: now, UpdatedAt: now,
	}))

	_, err := svc.Open(ctx, borrower, "r2", "never handed over")
	assert.Equal(t, apierr.CodeInvalidTransition, apierr.CodeOf(err))
}

func TestDuplicateOpenConflict(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	c, err := svc.Open(ctx, borrower, "r1", "item arrived scratched")
	require.NoError(t, err)
	assert.Equal(t, "open", c.Status)
	assert.Equal(t, mirror.StatusConflict, testutil.MustRequest(t, store, "r1").Status)

	_, err = svc.Open(ctx, owner, "r1", "returned late")
	assert.Equal(t, apierr.CodeDuplicateOpenConflict, apierr.CodeOf(err))

	list, err := svc.ListByRequest(ctx, owner, "r1")
	require.NoError(t, err)
	assert.Len(t, list.Conflicts, 1)
}

func TestConcurrentOpen(t *testing.T) {
	svc, _ := setup(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, sess := range []auth.Session{owner, borrower} {
		wg.Add(1)
		go func(i int, sess auth.Session) {
			defer wg.Done()
			_, errs[i] = svc.Open(context.Background(), sess, "r1", "dispute")
		}(i, sess)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if apierr.CodeOf(err) == apierr.CodeDuplicateOpenConflict {
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)
}

func TestResolveComplete(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	c, err := svc.Open(ctx, borrower, "r1", "scratched")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, stranger, c.ID, "n/a", mirror.OutcomeComplete)
	assert.Equal(t, apierr.CodeNotParticipant, apierr.CodeOf(err))

	_, err = svc.Resolve(ctx, owner, c.ID, "n/a", mirror.Outcome("split"))
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	res, err := svc.Resolve(ctx, owner, c.ID, "cosmetic only", mirror.OutcomeComplete)
	require.NoError(t, err)
	assert.Equal(t, "resolved", res.Status)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, "complete", *res.Outcome)
	require.NotNil(t, res.ResolverID)
	assert.Equal(t, "alice", *res.ResolverID)

	assert.Equal(t, mirror.StatusReturned, testutil.MustRequest(t, store, "r1").Status)
	assert.True(t, testutil.MustItem(t, store, "i1").Available)

	_, err = svc.Resolve(ctx, owner, c.ID, "again", mirror.OutcomeForfeit)
	assert.Equal(t, apierr.CodeAlreadyResolved, apierr.CodeOf(err))
}

func TestResolveForfeit(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()
	c, err := svc.Open(ctx, owner, "r1", "never returned")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, borrower, c.ID, "lost it", mirror.OutcomeForfeit)
	require.NoError(t, err)

	assert.Equal(t, mirror.StatusForfeited, testutil.MustRequest(t, store, "r1").Status)
	assert.True(t, testutil.MustItem(t, store, "i1").Available)

	// 枠が空いたので同じアイテムに新しい申請を入れられる
	active, err := store.ActiveRequestForItem(ctx, store.DB(), "i1")
	require.NoError(t, err)
	assert.Nil(t, active)

	// 解決済みの後に再起票はできない (request は終端)
	_, err = svc.Open(ctx, owner, "r1", "again")
	assert.Equal(t, apierr.CodeInvalidTransition, apierr.CodeOf(err))
}

func TestGetConflict(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	c, err := svc.Open(ctx, borrower, "r1", "scratched")
	require.NoError(t, err)

	for _, sess := range []auth.Session{owner, borrower} {
		got, err := svc.Get(ctx, sess, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "scratched", got.Description)
		assert.Equal(t, "bob", got.ReporterID)
	}

	_, err = svc.Get(ctx, owner, "nope")
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	_, err = svc.ListByRequest(ctx, owner, "nope")
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
}

func TestConflictReadsAreParticipantOnly(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	c, err := svc.Open(ctx, borrower, "r1", "private damage details")
	require.NoError(t, err)

	_, err = svc.Get(ctx, stranger, c.ID)
	assert.Equal(t, apierr.CodeNotParticipant, apierr.CodeOf(err))

	_, err = svc.ListByRequest(ctx, stranger, "r1")
	assert.Equal(t, apierr.CodeNotParticipant, apierr.CodeOf(err))

	_, err = svc.Get(ctx, auth.Session{}, c.ID)
	assert.Equal(t, apierr.CodeNotParticipant, apierr.CodeOf(err))

	list, err := svc.ListByRequest(ctx, borrower, "r1")
	require.NoError(t, err)
	assert.Len(t, list.Conflicts, 1)
}
