// Package linker keeps the cross-reference between a local item and its
// on-chain registry entry. It only ever writes the item row.
package linker

import (
	"context"
	"database/sql"
	"log/slog"

	"lendledger-backend/internal/ledger"
	"lendledger-backend/internal/marketplace/items"
	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
	"lendledger-backend/internal/platform/db"
)

type Service struct {
	store *mirror.Store
	clock mirror.Clock
	log   *slog.Logger
}

func NewService(store *mirror.Store, clock mirror.Clock, log *slog.Logger) *Service {
	return &Service{store: store, clock: clock, log: log}
}

// Link associates localItemID with onChainID. Repeating the same pair is a
// no-op so a retried write after an unknown outcome is safe.
func (s *Service) Link(ctx context.Context, sess auth.Session, localItemID, onChainID string) (items.ItemResponse, error) {
	_, canonical, err := ledger.ParseItemID(onChainID)
	if err != nil {
		return items.ItemResponse{}, apierr.Invalid(err.Error())
	}

	var out *mirror.Item
	err = s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, localItemID)
		if err != nil {
			return err
		}
		if !sess.IsSystem() && it.OwnerID != sess.Subject {
			return apierr.NotOwner()
		}
		if it.ContractItemID.Valid {
			if it.ContractItemID.String == canonical {
				out = it
				return nil
			}
			return apierr.AlreadyLinked(it.ContractItemID.String)
		}

		holder, err := s.store.ItemByContractID(ctx, tx, canonical)
		if err != nil {
			return err
		}
		if holder != nil && holder.ID != it.ID {
			return apierr.Collision(canonical)
		}

		now := s.clock.Now()
		link := sql.NullString{String: canonical, Valid: true}
		if err := s.store.SetContractLink(ctx, tx, it.ID, link, now); err != nil {
			if db.IsDuplicateKey(err) {
				return apierr.Collision(canonical)
			}
			return err
		}
		out, err = s.store.GetItem(ctx, tx, it.ID)
		return err
	})
	if err != nil {
		return items.ItemResponse{}, err
	}
	s.log.Info("item linked", "item_id", localItemID, "contract_item_id", canonical, "actor", sess.Subject)
	return items.ToResponse(out), nil
}

// Unlink clears the association. Unlinking an unlinked item succeeds.
func (s *Service) Unlink(ctx context.Context, sess auth.Session, localItemID string) (items.ItemResponse, error) {
	var (
		out  *mirror.Item
		prev string
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, localItemID)
		if err != nil {
			return err
		}
		if !sess.IsSystem() && it.OwnerID != sess.Subject {
			return apierr.NotOwner()
		}
		if !it.ContractItemID.Valid {
			out = it
			return nil
		}
		prev = it.ContractItemID.String
		if err := s.store.SetContractLink(ctx, tx, it.ID, sql.NullString{}, s.clock.Now()); err != nil {
			return err
		}
		out, err = s.store.GetItem(ctx, tx, it.ID)
		return err
	})
	if err != nil {
		return items.ItemResponse{}, err
	}
	if prev != "" {
		s.log.Info("item unlinked", "item_id", localItemID, "contract_item_id", prev, "actor", sess.Subject)
	}
	return items.ToResponse(out), nil
}

// UnlinkOrphan is the sweeper's automatic unlink for a registry entry that no
// longer exists. It acts only if the item still points at onChainID and
// reports whether it did. The item row itself is kept.
func (s *Service) UnlinkOrphan(ctx context.Context, localItemID, onChainID string) (bool, error) {
	var done bool
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, localItemID)
		if err != nil {
			return err
		}
		if !it.ContractItemID.Valid || it.ContractItemID.String != onChainID {
			return nil
		}
		if err := s.store.MarkOrphaned(ctx, tx, it.ID, s.clock.Now()); err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if done {
		s.log.Warn("orphaned link cleared", "item_id", localItemID, "contract_item_id", onChainID)
	}
	return done, nil
}
