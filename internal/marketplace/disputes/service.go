// Package disputes records conflicts raised on approved loans and settles them.
// Conflicts are append-only: a resolved conflict is never reopened.
package disputes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
	"lendledger-backend/internal/platform/db"
)

const maxDescriptionLen = 2000

type Service struct {
	store *mirror.Store
	clock mirror.Clock
	id    mirror.IDGen
	log   *slog.Logger
}

func NewService(store *mirror.Store, clock mirror.Clock, id mirror.IDGen, log *slog.Logger) *Service {
	return &Service{store: store, clock: clock, id: id, log: log}
}

func isParticipant(actor string, it *mirror.Item, br *mirror.BorrowRequest) bool {
	return actor == it.OwnerID || actor == br.BorrowerID
}

// Open raises a conflict on an approved request and moves the request to conflict.
func (s *Service) Open(ctx context.Context, sess auth.Session, requestID, description string) (ConflictResponse, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return ConflictResponse{}, apierr.Invalid("description required")
	}
	if len(description) > maxDescriptionLen {
		return ConflictResponse{}, apierr.Invalid("description too long")
	}

	var out *mirror.Conflict
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		br, err := s.store.LockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		it, err := s.store.LockItem(ctx, tx, br.ItemID)
		if err != nil {
			return err
		}
		if !isParticipant(sess.Subject, it, br) {
			return apierr.NotParticipant()
		}

		open, err := s.store.OpenConflictForRequest(ctx, tx, br.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return apierr.DuplicateOpenConflict()
		}

		now := s.clock.Now()
		if err := s.store.Apply(ctx, tx, br, mirror.StatusConflict, now); err != nil {
			return err
		}
		c := &mirror.Conflict{
			ID:              s.id.NewULID(now),
			BorrowRequestID: br.ID,
			ReporterID:      sess.Subject,
			Description:     description,
			Status:          mirror.ConflictOpen,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.InsertConflict(ctx, tx, c); err != nil {
			if db.IsDuplicateKey(err) {
				return apierr.DuplicateOpenConflict()
			}
			return fmt.Errorf("insert conflict: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return ConflictResponse{}, err
	}
	s.log.Info("conflict opened", "conflict_id", out.ID, "request_id", requestID, "reporter", sess.Subject)
	return toResponse(out), nil
}

// Resolve settles an open conflict. complete returns the loan, forfeit ends it
// in forfeited. Either way the item is released.
func (s *Service) Resolve(ctx context.Context, sess auth.Session, conflictID, resolution string, outcome mirror.Outcome) (ConflictResponse, error) {
	if outcome != mirror.OutcomeComplete && outcome != mirror.OutcomeForfeit {
		return ConflictResponse{}, apierr.Invalid("outcome must be complete or forfeit")
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return ConflictResponse{}, apierr.Invalid("resolution required")
	}

	// ロック順は request -> item -> conflict
	head, err := s.store.GetConflict(ctx, s.store.DB(), conflictID)
	if err != nil {
		return ConflictResponse{}, err
	}

	var (
		out *mirror.Conflict
		br  *mirror.BorrowRequest
		it  *mirror.Item
	)
	err = s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		br, err = s.store.LockRequest(ctx, tx, head.BorrowRequestID)
		if err != nil {
			return err
		}
		it, err = s.store.LockItem(ctx, tx, br.ItemID)
		if err != nil {
			return err
		}
		c, err := s.store.LockConflict(ctx, tx, conflictID)
		if err != nil {
			return err
		}
		if c.Status != mirror.ConflictOpen {
			return apierr.AlreadyResolved()
		}
		if !isParticipant(sess.Subject, it, br) {
			return apierr.NotParticipant()
		}

		now := s.clock.Now()
		to := mirror.StatusReturned
		if outcome == mirror.OutcomeForfeit {
			to = mirror.StatusForfeited
		}
		if err := s.store.Apply(ctx, tx, br, to, now); err != nil {
			return err
		}
		if err := s.store.SetItemAvailable(ctx, tx, it.ID, true, now); err != nil {
			return err
		}

		c.Status = mirror.ConflictResolved
		c.Resolution = sql.NullString{String: resolution, Valid: true}
		c.Outcome = sql.NullString{String: string(outcome), Valid: true}
		c.ResolverID = sql.NullString{String: sess.Subject, Valid: true}
		c.ResolvedAt = sql.NullTime{Time: now, Valid: true}
		c.UpdatedAt = now
		if err := s.store.ResolveConflict(ctx, tx, c); err != nil {
			if errors.Is(err, mirror.ErrStale) {
				return apierr.AlreadyResolved()
			}
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return ConflictResponse{}, err
	}

	// 評価は台帳側の責務。ここでは運用向けにログへ残すだけ
	loser := ""
	if outcome == mirror.OutcomeForfeit {
		loser = br.BorrowerID
	}
	s.log.Info("conflict resolved",
		"conflict_id", out.ID, "request_id", br.ID, "item_id", it.ID,
		"outcome", string(outcome), "resolver", sess.Subject, "loser", loser)
	return toResponse(out), nil
}

// Get returns a conflict to the owner or borrower of its request.
func (s *Service) Get(ctx context.Context, sess auth.Session, id string) (ConflictResponse, error) {
	c, err := s.store.GetConflict(ctx, s.store.DB(), id)
	if err != nil {
		return ConflictResponse{}, err
	}
	if err := s.authorizeRead(ctx, sess, c.BorrowRequestID); err != nil {
		return ConflictResponse{}, err
	}
	return toResponse(c), nil
}

func (s *Service) ListByRequest(ctx context.Context, sess auth.Session, requestID string) (ConflictListResponse, error) {
	if err := s.authorizeRead(ctx, sess, requestID); err != nil {
		return ConflictListResponse{}, err
	}
	rows, err := s.store.ListConflictsForRequest(ctx, s.store.DB(), requestID)
	if err != nil {
		return ConflictListResponse{}, fmt.Errorf("list conflicts: %w", err)
	}
	out := ConflictListResponse{Conflicts: make([]ConflictResponse, 0, len(rows))}
	for _, c := range rows {
		out.Conflicts = append(out.Conflicts, toResponse(c))
	}
	return out, nil
}

// authorizeRead は申立の閲覧を貸借の当事者に限る
func (s *Service) authorizeRead(ctx context.Context, sess auth.Session, requestID string) error {
	br, err := s.store.GetRequest(ctx, s.store.DB(), requestID)
	if err != nil {
		return err
	}
	it, err := s.store.GetItem(ctx, s.store.DB(), br.ItemID)
	if err != nil {
		return err
	}
	if !isParticipant(sess.Subject, it, br) {
		return apierr.NotParticipant()
	}
	return nil
}
