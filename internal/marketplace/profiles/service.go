package profiles

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
	"lendledger-backend/internal/platform/db"
)

const maxUsernameAttempts = 5

type Service struct {
	store *mirror.Store
	clock mirror.Clock
	id    mirror.IDGen
	log   *slog.Logger
}

func NewService(store *mirror.Store, clock mirror.Clock, id mirror.IDGen, log *slog.Logger) *Service {
	return &Service{store: store, clock: clock, id: id, log: log}
}

// Ensure returns the caller's profile, creating it on first sight.
// Two concurrent first requests from the same subject both end up with the
// winner's row.
func (s *Service) Ensure(ctx context.Context, sess auth.Session) (*mirror.Profile, error) {
	if !sess.Valid() || sess.IsSystem() {
		return nil, apierr.Invalid("session has no subject")
	}
	p, err := s.store.GetProfile(ctx, s.store.DB(), sess.Subject)
	if err == nil {
		return p, nil
	}
	if apierr.CodeOf(err) != apierr.CodeNotFound {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	now := s.clock.Now()
	p = &mirror.Profile{
		ID:        sess.Subject,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if e := strings.TrimSpace(sess.Email); e != "" {
		p.Email = sql.NullString{String: e, Valid: true}
	}
	if common.IsHexAddress(sess.Wallet) {
		p.WalletAddress = sql.NullString{String: common.HexToAddress(sess.Wallet).Hex(), Valid: true}
	}

	base := usernameFromEmail(sess.Email)
	if base == "" {
		base = fallbackUsername(s.id.NewULID(now))
	}
	p.Username = base

	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		err := s.store.InsertProfile(ctx, s.store.DB(), p)
		if err == nil {
			s.log.Info("profile created", "profile_id", p.ID, "username", p.Username)
			return p, nil
		}
		if !db.IsDuplicateKey(err) {
			return nil, fmt.Errorf("insert profile: %w", err)
		}
		// 同じ subject の並行リクエストが先に作った場合はそれを返す
		if existing, gerr := s.store.GetProfile(ctx, s.store.DB(), p.ID); gerr == nil {
			return existing, nil
		}
		p.Username = withSuffix(base, s.id.NewULID(now))
	}
	return nil, apierr.Internal("could not allocate a unique username")
}

func (s *Service) Get(ctx context.Context, id string) (ProfileResponse, error) {
	if strings.TrimSpace(id) == "" {
		return ProfileResponse{}, apierr.Invalid("id required")
	}
	p, err := s.store.GetProfile(ctx, s.store.DB(), id)
	if err != nil {
		return ProfileResponse{}, err
	}
	return toResponse(p), nil
}

// UpdateWallet sets or, with an empty address, clears the caller's wallet.
func (s *Service) UpdateWallet(ctx context.Context, sess auth.Session, in UpdateWalletRequest) (ProfileResponse, error) {
	if !sess.Valid() {
		return ProfileResponse{}, apierr.Invalid("session has no subject")
	}
	var wallet sql.NullString
	if w := strings.TrimSpace(in.WalletAddress); w != "" {
		if !common.IsHexAddress(w) || !strings.HasPrefix(w, "0x") {
			return ProfileResponse{}, apierr.Invalid("wallet_address must be a 0x-prefixed 20-byte hex address")
		}
		wallet = sql.NullString{String: common.HexToAddress(w).Hex(), Valid: true}
	}
	if err := s.store.UpdateProfileWallet(ctx, s.store.DB(), sess.Subject, wallet, s.clock.Now()); err != nil {
		return ProfileResponse{}, err
	}
	return s.Get(ctx, sess.Subject)
}
