// Package reconcile compares the mirror against the on-chain registry and
// flags what disagrees. It never corrects availability itself; the only
// automatic fix is clearing a link whose registry entry is gone.
package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"lendledger-backend/internal/ledger"
	"lendledger-backend/internal/marketplace/linker"
	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/config"
	"lendledger-backend/internal/platform/db"
)

type Options struct {
	Interval      time.Duration
	PassTimeout   time.Duration
	DriftGrace    time.Duration
	Concurrency   int
	RatePerSecond float64
	Retries       int
	RetryBase     time.Duration
}

func OptionsFromConfig(c config.SweeperConfig) Options {
	return Options{
		Interval:      c.Interval.Duration,
		PassTimeout:   c.PassTimeout.Duration,
		DriftGrace:    c.DriftGrace.Duration,
		Concurrency:   c.Concurrency,
		RatePerSecond: c.RatePerSecond,
		Retries:       c.Retries,
		RetryBase:     200 * time.Millisecond,
	}
}

// PassReport summarises one sweep.
type PassReport struct {
	PassID           string
	StartedAt        time.Time
	FinishedAt       time.Time
	Checked          int
	Refreshed        int
	DriftObserved    int
	DriftFlagged     int
	DriftCleared     int
	MetadataMismatch int
	Orphaned         int
	Skipped          int
	Failed           int
}

type Sweeper struct {
	store   *mirror.Store
	ledger  ledger.Client
	linker  *linker.Service
	lock    Locker
	clock   mirror.Clock
	log     *slog.Logger
	opts    Options
	limiter *rate.Limiter
}

func New(store *mirror.Store, lc ledger.Client, lk *linker.Service, lock Locker, clock mirror.Clock, log *slog.Logger, opts Options) *Sweeper {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if lock == nil {
		lock = &LocalLock{}
	}
	return &Sweeper{
		store:   store,
		ledger:  lc,
		linker:  lk,
		lock:    lock,
		clock:   clock,
		log:     log,
		opts:    opts,
		limiter: rate.NewLimiter(limit, opts.Concurrency),
	}
}

// Run sweeps once immediately and then on every tick until ctx ends.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	runOnce := func() {
		runCtx := ctx
		if s.opts.PassTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, s.opts.PassTimeout)
			defer cancel()
		}
		if _, err := s.RunOnce(runCtx); err != nil {
			if errors.Is(err, ErrPassInProgress) {
				s.log.Debug("pass skipped, lease held elsewhere")
				return
			}
			s.log.Error("pass failed", "err", err)
		}
	}

	runOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// Start runs Run in the background. wait blocks until the loop has returned,
// which includes any pass that was still settling when ctx ended.
func (s *Sweeper) Start(ctx context.Context) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	return func() { <-done }
}

type readResult struct {
	item ledger.ChainItem
	err  error
}

// RunOnce performs a single pass. Each linked item is read from the ledger
// without any mirror lock held, then settled in its own short transaction.
func (s *Sweeper) RunOnce(ctx context.Context) (PassReport, error) {
	release, err := s.lock.TryLock(ctx)
	if err != nil {
		return PassReport{}, err
	}
	defer release()

	rep := PassReport{PassID: uuid.NewString(), StartedAt: s.clock.Now()}
	log := s.log.With("pass_id", rep.PassID)

	snapshot, err := s.store.LinkedItems(ctx, s.store.DB())
	if err != nil {
		return rep, fmt.Errorf("snapshot linked items: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, li := range snapshot {
		g.Go(func() error {
			res := s.read(gctx, li.ContractItemID)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			out := s.settle(gctx, log, li, res)
			mu.Lock()
			out.addTo(&rep)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, fmt.Errorf("pass interrupted: %w", err)
	}

	rep.FinishedAt = s.clock.Now()
	log.Info("pass finished",
		"checked", rep.Checked, "refreshed", rep.Refreshed,
		"drift_observed", rep.DriftObserved, "drift_flagged", rep.DriftFlagged, "drift_cleared", rep.DriftCleared,
		"metadata_mismatch", rep.MetadataMismatch, "orphaned", rep.Orphaned,
		"skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

// read fetches one registry entry, retrying transient failures with
// exponential backoff. ErrNotFound is final and never retried.
func (s *Sweeper) read(ctx context.Context, onChainID string) readResult {
	var last error
	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := s.opts.RetryBase * time.Duration(math.Pow(2, float64(attempt-1)))
			t := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return readResult{err: ctx.Err()}
			case <-t.C:
			}
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return readResult{err: err}
		}
		item, err := s.ledger.GetItem(ctx, onChainID)
		if err == nil || errors.Is(err, ledger.ErrNotFound) {
			return readResult{item: item, err: err}
		}
		last = err
	}
	return readResult{err: last}
}

type outcome struct {
	checked, refreshed, observed, flagged, cleared, metadata, orphaned, skipped, failed bool
}

func (o outcome) addTo(r *PassReport) {
	add := func(n *int, b bool) {
		if b {
			*n++
		}
	}
	add(&r.Checked, o.checked)
	add(&r.Refreshed, o.refreshed)
	add(&r.DriftObserved, o.observed)
	add(&r.DriftFlagged, o.flagged)
	add(&r.DriftCleared, o.cleared)
	add(&r.MetadataMismatch, o.metadata)
	add(&r.Orphaned, o.orphaned)
	add(&r.Skipped, o.skipped)
	add(&r.Failed, o.failed)
}

func (s *Sweeper) settle(ctx context.Context, log *slog.Logger, li mirror.LinkedItem, res readResult) outcome {
	out := outcome{checked: true}
	l := log.With("item_id", li.ItemID, "contract_item_id", li.ContractItemID)

	switch {
	case errors.Is(res.err, ledger.ErrNotFound):
		done, err := s.linker.UnlinkOrphan(ctx, li.ItemID, li.ContractItemID)
		if err != nil {
			l.Error("orphan unlink failed", "err", err)
			out.failed = true
			return out
		}
		out.orphaned = done
		out.skipped = !done
		return out
	case res.err != nil:
		l.Warn("ledger unavailable, item skipped this pass", "err", res.err)
		out.failed = true
		return out
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		it, err := s.store.LockItem(ctx, tx, li.ItemID)
		if err != nil {
			return err
		}
		// スナップショット後にリンクが変わっていたら次のパスに回す
		if !it.ContractItemID.Valid || it.ContractItemID.String != li.ContractItemID {
			out.skipped = true
			return nil
		}

		now := s.clock.Now()
		if err := s.store.UpdateChainProjection(ctx, tx, it.ID, projection(res.item, now), now); err != nil {
			return err
		}
		out.refreshed = true

		if res.item.MetadataHash != ledger.MetadataHash(it.Title, it.Description, it.ImageURL.String) {
			out.metadata = true
		}

		switch {
		case res.item.IsAvailable != it.Available && !it.DriftObservedAt.Valid:
			out.observed = true
			return s.store.SetSyncState(ctx, tx, it.ID, it.SyncFlag, sql.NullTime{Time: now, Valid: true}, now)
		case res.item.IsAvailable != it.Available:
			if it.SyncFlag != mirror.SyncFlagDrift && now.Sub(it.DriftObservedAt.Time) >= s.opts.DriftGrace {
				out.flagged = true
				return s.store.SetSyncState(ctx, tx, it.ID, mirror.SyncFlagDrift, it.DriftObservedAt, now)
			}
		case it.DriftObservedAt.Valid:
			// 一致に戻った。drift フラグ自体は人手で解除する
			out.cleared = true
			return s.store.SetSyncState(ctx, tx, it.ID, it.SyncFlag, sql.NullTime{}, now)
		}
		return nil
	})
	if err != nil {
		l.Error("settle failed", "err", err)
		return outcome{checked: true, failed: true}
	}
	if out.flagged {
		l.Warn("availability drift flagged", "chain_available", res.item.IsAvailable)
	}
	if out.metadata {
		l.Info("metadata hash differs from registry", "chain_hash", res.item.MetadataHashHex())
	}
	return out
}

func projection(c ledger.ChainItem, now time.Time) mirror.ChainProjection {
	return mirror.ChainProjection{
		Fee:           sql.NullString{String: c.Fee.String(), Valid: c.Fee != nil},
		Deposit:       sql.NullString{String: c.Deposit.String(), Valid: c.Deposit != nil},
		Available:     sql.NullBool{Bool: c.IsAvailable, Valid: true},
		MinReputation: sql.NullInt64{Int64: clampInt64(c.MinBorrowerReputation), Valid: true},
		Nonce:         sql.NullInt64{Int64: clampInt64(c.Nonce), Valid: true},
		MetadataHash:  sql.NullString{String: c.MetadataHashHex(), Valid: true},
		SyncedAt:      sql.NullTime{Time: now, Valid: true},
	}
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
