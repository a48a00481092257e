package mirror

import (
	"context"
	"errors"
	"time"

	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/db"
)

var transitions = map[RequestStatus]map[RequestStatus]struct{}{
	StatusPending:  {StatusApproved: {}, StatusRejected: {}},
	StatusApproved: {StatusConflict: {}, StatusReturned: {}},
	StatusConflict: {StatusReturned: {}, StatusForfeited: {}},
	StatusRejected:  {},
	StatusReturned:  {},
	StatusForfeited: {},
}

// CanTransition reports whether a borrow request may move from one status to another.
func CanTransition(from, to RequestStatus) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// Apply moves br to status to with an optimistic check on its current status.
// br is updated in place on success.
func (s *Store) Apply(ctx context.Context, tx db.DBTX, br *BorrowRequest, to RequestStatus, now time.Time) error {
	if !CanTransition(br.Status, to) {
		return apierr.InvalidTransition(string(br.Status), string(to))
	}
	if err := s.TransitionRequest(ctx, tx, br.ID, br.Status, to, now); err != nil {
		if errors.Is(err, ErrStale) {
			return apierr.InvalidTransition(string(br.Status), string(to))
		}
		return err
	}
	br.Status, br.UpdatedAt = to, now
	return nil
}
