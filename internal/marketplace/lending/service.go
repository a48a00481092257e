// Package lending runs the borrow request lifecycle:
// pending -> approved -> returned, pending -> rejected, approved -> conflict,
// and conflict -> returned or forfeited once the dispute is settled.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lendledger-backend/internal/ledger"
	"lendledger-backend/internal/marketplace/disputes"
	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
	"lendledger-backend/internal/platform/db"
)

type Service struct {
	store          *mirror.Store
	ledger         ledger.Client
	disputes       *disputes.Service
	clock          mirror.Clock
	id             mirror.IDGen
	log            *slog.Logger
	approveTimeout time.Duration
}

func NewService(store *mirror.Store, lc ledger.Client, ds *disputes.Service, clock mirror.Clock, id mirror.IDGen, log *slog.Logger, approveTimeout time.Duration) *Service {
	return &Service{
		store:          store,
		ledger:         lc,
		disputes:       ds,
		clock:          clock,
		id:             id,
		log:            log,
		approveTimeout: approveTimeout,
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateRequest files a pending request. It never reads or touches chain state.
func (s *Service) CreateRequest(ctx context.Context, sess auth.Session, itemID string, start, end time.Time) (BorrowRequestResponse, error) {
	if !sess.Valid() {
		return BorrowRequestResponse{}, apierr.Invalid("session has no subject")
	}
	if itemID == "" {
		return BorrowRequestResponse{}, apierr.Invalid("item_id required")
	}
	now := s.clock.Now()
	if !end.After(start) {
		return BorrowRequestResponse{}, apierr.InvalidWindow("end_date must be after start_date")
	}
	if startOfDay(start).Before(startOfDay(now)) {
		return BorrowRequestResponse{}, apierr.InvalidWindow("start_date is in the past")
	}

	var out *mirror.BorrowRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if it.OwnerID == sess.Subject {
			return apierr.SelfBorrow()
		}
		if it.SyncFlag == mirror.SyncFlagDrift {
			return apierr.ItemUnavailable("item is held for drift review")
		}
		if !it.Available {
			return apierr.ItemUnavailable("item is not available")
		}
		active, err := s.store.ActiveRequestForItem(ctx, tx, it.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return apierr.ItemUnavailable("item already has an open borrow request")
		}

		br := &mirror.BorrowRequest{
			ID:         s.id.NewULID(now),
			ItemID:     it.ID,
			BorrowerID: sess.Subject,
			Status:     mirror.StatusPending,
			StartDate:  start.UTC(),
			EndDate:    end.UTC(),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.store.InsertRequest(ctx, tx, br); err != nil {
			if db.IsDuplicateKey(err) {
				return apierr.ItemUnavailable("item already has an open borrow request")
			}
			if db.IsForeignKey(err) {
				return apierr.NotFound("borrower profile not found")
			}
			return fmt.Errorf("insert borrow request: %w", err)
		}
		out = br
		return nil
	})
	if err != nil {
		return BorrowRequestResponse{}, err
	}
	return toResponse(out), nil
}

// Approve hands the item to the borrower. For a linked item the ledger is
// consulted first, outside any transaction. If the ledger says no, times out or
// errors, nothing is committed.
func (s *Service) Approve(ctx context.Context, sess auth.Session, requestID string) (BorrowRequestResponse, error) {
	br, err := s.store.GetRequest(ctx, s.store.DB(), requestID)
	if err != nil {
		return BorrowRequestResponse{}, err
	}
	it, err := s.store.GetItem(ctx, s.store.DB(), br.ItemID)
	if err != nil {
		return BorrowRequestResponse{}, err
	}
	if it.OwnerID != sess.Subject {
		return BorrowRequestResponse{}, apierr.NotOwner()
	}
	if !mirror.CanTransition(br.Status, mirror.StatusApproved) {
		return BorrowRequestResponse{}, apierr.InvalidTransition(string(br.Status), string(mirror.StatusApproved))
	}

	checked := it.ContractItemID
	if checked.Valid {
		if err := s.checkOnChain(ctx, br, checked.String); err != nil {
			return BorrowRequestResponse{}, err
		}
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		br, err = s.store.LockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		it, err = s.store.LockItem(ctx, tx, br.ItemID)
		if err != nil {
			return err
		}
		if it.OwnerID != sess.Subject {
			return apierr.NotOwner()
		}
		// 台帳確認の間にリンクが変わっていたら確認結果は使えない
		if it.ContractItemID != checked {
			return apierr.OnChainPrecondition("item link changed during approval")
		}
		now := s.clock.Now()
		if err := s.store.Apply(ctx, tx, br, mirror.StatusApproved, now); err != nil {
			return err
		}
		return s.store.SetItemAvailable(ctx, tx, it.ID, false, now)
	})
	if err != nil {
		return BorrowRequestResponse{}, err
	}
	s.log.Info("borrow request approved", "request_id", br.ID, "item_id", br.ItemID, "linked", checked.Valid)
	return toResponse(br), nil
}

func (s *Service) checkOnChain(ctx context.Context, br *mirror.BorrowRequest, onChainID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.approveTimeout)
	defer cancel()

	chain, err := s.ledger.GetItem(ctx, onChainID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return apierr.OnChainPrecondition("on-chain item no longer exists")
		}
		s.log.Warn("ledger read failed during approve", "request_id", br.ID, "contract_item_id", onChainID, "err", err)
		return apierr.OnChainPrecondition("ledger unavailable")
	}
	if !chain.IsAvailable {
		return apierr.OnChainPrecondition("on-chain item is not available")
	}
	if chain.MinBorrowerReputation == 0 {
		return nil
	}

	borrower, err := s.store.GetProfile(ctx, s.store.DB(), br.BorrowerID)
	if err != nil {
		return err
	}
	var rep uint64
	if borrower.WalletAddress.Valid {
		rep, err = s.ledger.GetReputation(ctx, borrower.WalletAddress.String)
		if err != nil {
			s.log.Warn("reputation read failed during approve", "request_id", br.ID, "err", err)
			return apierr.OnChainPrecondition("ledger unavailable")
		}
	}
	if rep < chain.MinBorrowerReputation {
		return apierr.OnChainPrecondition(fmt.Sprintf("borrower reputation %d is below the required %d", rep, chain.MinBorrowerReputation))
	}
	return nil
}

// Reject declines a pending request. Availability was never flipped, so it is left alone.
func (s *Service) Reject(ctx context.Context, sess auth.Session, requestID string) (BorrowRequestResponse, error) {
	var out *mirror.BorrowRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		br, err := s.store.LockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		it, err := s.store.LockItem(ctx, tx, br.ItemID)
		if err != nil {
			return err
		}
		if it.OwnerID != sess.Subject {
			return apierr.NotOwner()
		}
		if err := s.store.Apply(ctx, tx, br, mirror.StatusRejected, s.clock.Now()); err != nil {
			return err
		}
		out = br
		return nil
	})
	if err != nil {
		return BorrowRequestResponse{}, err
	}
	return toResponse(out), nil
}

// MarkReturned closes a loan. From conflict it is allowed only after the last
// conflict was settled in favour of completing the loan.
func (s *Service) MarkReturned(ctx context.Context, sess auth.Session, requestID string) (BorrowRequestResponse, error) {
	var out *mirror.BorrowRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		br, err := s.store.LockRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		it, err := s.store.LockItem(ctx, tx, br.ItemID)
		if err != nil {
			return err
		}
		if sess.Subject != it.OwnerID && sess.Subject != br.BorrowerID {
			return apierr.NotParticipant()
		}

		switch br.Status {
		case mirror.StatusApproved:
		case mirror.StatusConflict:
			ok, err := s.settledForCompletion(ctx, tx, br.ID)
			if err != nil {
				return err
			}
			if !ok {
				return apierr.InvalidTransition(string(br.Status), string(mirror.StatusReturned))
			}
		default:
			return apierr.InvalidTransition(string(br.Status), string(mirror.StatusReturned))
		}

		now := s.clock.Now()
		if err := s.store.Apply(ctx, tx, br, mirror.StatusReturned, now); err != nil {
			return err
		}
		if err := s.store.SetItemAvailable(ctx, tx, it.ID, true, now); err != nil {
			return err
		}
		out = br
		return nil
	})
	if err != nil {
		return BorrowRequestResponse{}, err
	}
	return toResponse(out), nil
}

func (s *Service) settledForCompletion(ctx context.Context, tx db.DBTX, requestID string) (bool, error) {
	open, err := s.store.OpenConflictForRequest(ctx, tx, requestID)
	if err != nil || open != nil {
		return false, err
	}
	latest, err := s.store.LatestConflictForRequest(ctx, tx, requestID)
	if err != nil || latest == nil {
		return false, err
	}
	return latest.Outcome.Valid && mirror.Outcome(latest.Outcome.String) == mirror.OutcomeComplete, nil
}

// RaiseConflict is the borrower's or owner's entry point into the conflict resolver.
func (s *Service) RaiseConflict(ctx context.Context, sess auth.Session, requestID, description string) (disputes.ConflictResponse, error) {
	return s.disputes.Open(ctx, sess, requestID, description)
}

// Get returns a request to its owner or borrower.
func (s *Service) Get(ctx context.Context, sess auth.Session, requestID string) (BorrowRequestResponse, error) {
	br, err := s.store.GetRequest(ctx, s.store.DB(), requestID)
	if err != nil {
		return BorrowRequestResponse{}, err
	}
	if sess.Subject != br.BorrowerID {
		it, err := s.store.GetItem(ctx, s.store.DB(), br.ItemID)
		if err != nil {
			return BorrowRequestResponse{}, err
		}
		if sess.Subject != it.OwnerID {
			return BorrowRequestResponse{}, apierr.NotParticipant()
		}
	}
	return toResponse(br), nil
}

func (s *Service) List(ctx context.Context, f mirror.RequestFilter, p mirror.Page) (BorrowRequestListResponse, error) {
	if f.Status != nil {
		if _, ok := knownStatus[*f.Status]; !ok {
			return BorrowRequestListResponse{}, apierr.Invalid("unknown status")
		}
	}
	p = p.Normalize()
	rows, err := s.store.ListRequests(ctx, s.store.DB(), f, p)
	if err != nil {
		return BorrowRequestListResponse{}, fmt.Errorf("list borrow requests: %w", err)
	}
	out := BorrowRequestListResponse{Requests: make([]BorrowRequestResponse, 0, len(rows)), Limit: p.Limit, Offset: p.Offset}
	for _, br := range rows {
		out.Requests = append(out.Requests, toResponse(br))
	}
	return out, nil
}

var knownStatus = map[mirror.RequestStatus]struct{}{
	mirror.StatusPending:   {},
	mirror.StatusApproved:  {},
	mirror.StatusRejected:  {},
	mirror.StatusReturned:  {},
	mirror.StatusConflict:  {},
	mirror.StatusForfeited: {},
}
