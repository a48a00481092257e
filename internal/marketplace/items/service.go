package items

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
	"lendledger-backend/internal/platform/auth"
	"lendledger-backend/internal/platform/db"
)

const maxTitleLen = 200

type Service struct {
	store *mirror.Store
	clock mirror.Clock
	id    mirror.IDGen
	log   *slog.Logger
}

func NewService(store *mirror.Store, clock mirror.Clock, id mirror.IDGen, log *slog.Logger) *Service {
	return &Service{store: store, clock: clock, id: id, log: log}
}

func (s *Service) Create(ctx context.Context, sess auth.Session, in CreateItemRequest) (ItemResponse, error) {
	if !sess.Valid() {
		return ItemResponse{}, apierr.Invalid("session has no subject")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return ItemResponse{}, apierr.Invalid("title required")
	}
	if len(title) > maxTitleLen {
		return ItemResponse{}, apierr.Invalid("title too long")
	}
	cond := mirror.Condition(in.Condition)
	if !cond.Valid() {
		return ItemResponse{}, apierr.Invalid("condition must be one of new, like_new, good, fair, poor")
	}
	img, err := normalizeImageURL(in.ImageURL)
	if err != nil {
		return ItemResponse{}, err
	}

	now := s.clock.Now()
	it := &mirror.Item{
		ID:          s.id.NewULID(now),
		OwnerID:     sess.Subject,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    img,
		Condition:   cond,
		Available:   true,
		SyncFlag:    mirror.SyncFlagNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertItem(ctx, s.store.DB(), it); err != nil {
		return ItemResponse{}, err
	}
	return ToResponse(it), nil
}

func (s *Service) Get(ctx context.Context, id string) (ItemResponse, error) {
	it, err := s.store.GetItem(ctx, s.store.DB(), id)
	if err != nil {
		return ItemResponse{}, err
	}
	return ToResponse(it), nil
}

func (s *Service) List(ctx context.Context, f mirror.ItemFilter, p mirror.Page) (ItemListResponse, error) {
	if f.SyncFlag != nil {
		switch *f.SyncFlag {
		case mirror.SyncFlagNone, mirror.SyncFlagDrift, mirror.SyncFlagOrphanedLink:
		default:
			return ItemListResponse{}, apierr.Invalid("unknown sync_flag")
		}
	}
	p = p.Normalize()
	rows, err := s.store.ListItems(ctx, s.store.DB(), f, p)
	if err != nil {
		return ItemListResponse{}, fmt.Errorf("list items: %w", err)
	}
	out := ItemListResponse{Items: make([]ItemResponse, 0, len(rows)), Limit: p.Limit, Offset: p.Offset}
	for _, it := range rows {
		out.Items = append(out.Items, ToResponse(it))
	}
	return out, nil
}

// Update edits the owner-managed description fields.
func (s *Service) Update(ctx context.Context, sess auth.Session, id string, in UpdateItemRequest) (ItemResponse, error) {
	var out *mirror.Item
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if it.OwnerID != sess.Subject {
			return apierr.NotOwner()
		}
		if in.Title != nil {
			t := strings.TrimSpace(*in.Title)
			if t == "" || len(t) > maxTitleLen {
				return apierr.Invalid("title must be 1-200 characters")
			}
			it.Title = t
		}
		if in.Description != nil {
			it.Description = strings.TrimSpace(*in.Description)
		}
		if in.ImageURL != nil {
			img, err := normalizeImageURL(in.ImageURL)
			if err != nil {
				return err
			}
			it.ImageURL = img
		}
		if in.Condition != nil {
			c := mirror.Condition(*in.Condition)
			if !c.Valid() {
				return apierr.Invalid("condition must be one of new, like_new, good, fair, poor")
			}
			it.Condition = c
		}
		it.UpdatedAt = s.clock.Now()
		if err := s.store.UpdateItemDetails(ctx, tx, it); err != nil {
			return err
		}
		out = it
		return nil
	})
	if err != nil {
		return ItemResponse{}, err
	}
	return ToResponse(out), nil
}

// SetAvailability is the owner's manual toggle. It is refused while a
// borrow request still holds the item, because the lifecycle owns the flag then.
func (s *Service) SetAvailability(ctx context.Context, sess auth.Session, id string, available bool) (ItemResponse, error) {
	var out *mirror.Item
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if it.OwnerID != sess.Subject {
			return apierr.NotOwner()
		}
		active, err := s.store.ActiveRequestForItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if active != nil {
			return apierr.ItemUnavailable("item has an open borrow request")
		}
		now := s.clock.Now()
		if err := s.store.SetItemAvailable(ctx, tx, id, available, now); err != nil {
			return err
		}
		it.Available, it.UpdatedAt = available, now
		out = it
		return nil
	})
	if err != nil {
		return ItemResponse{}, err
	}
	return ToResponse(out), nil
}

// ClearSyncFlag lifts a drift or orphaned_link flag once the owner has
// brought the mirror back in line with the chain.
func (s *Service) ClearSyncFlag(ctx context.Context, sess auth.Session, id string) (ItemResponse, error) {
	var out *mirror.Item
	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if it.OwnerID != sess.Subject {
			return apierr.NotOwner()
		}
		if it.SyncFlag == mirror.SyncFlagNone && !it.DriftObservedAt.Valid {
			out = it
			return nil
		}
		now := s.clock.Now()
		if err := s.store.SetSyncState(ctx, tx, id, mirror.SyncFlagNone, sql.NullTime{}, now); err != nil {
			return err
		}
		s.log.Info("sync flag cleared", "item_id", id, "previous", string(it.SyncFlag), "actor", sess.Subject)
		it.SyncFlag, it.DriftObservedAt, it.UpdatedAt = mirror.SyncFlagNone, sql.NullTime{}, now
		out = it
		return nil
	})
	if err != nil {
		return ItemResponse{}, err
	}
	return ToResponse(out), nil
}

func normalizeImageURL(raw *string) (sql.NullString, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return sql.NullString{}, nil
	}
	v := strings.TrimSpace(*raw)
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ipfs") || (u.Host == "" && u.Scheme != "ipfs") {
		return sql.NullString{}, apierr.Invalid("image_url must be an http(s) or ipfs URL")
	}
	return sql.NullString{String: v, Valid: true}, nil
}
