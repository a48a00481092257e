package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"lendledger-backend/internal/ledger"
	"lendledger-backend/internal/marketplace/disputes"
	"lendledger-backend/internal/marketplace/items"
	"lendledger-backend/internal/marketplace/lending"
	"lendledger-backend/internal/marketplace/linker"
	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/marketplace/profiles"
	"lendledger-backend/internal/marketplace/reconcile"
	"lendledger-backend/internal/platform/config"
	"lendledger-backend/internal/platform/db"
	"lendledger-backend/internal/platform/logging"
)

const sweepLeaseKey = "lending:sweeper:lease"

// app はコマンド間で共有する依存をまとめる。呼び出し側で Close すること。
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	conn    *sql.DB
	dialect db.Dialect
	rdb     *redis.Client
	ledger  ledger.Client

	profiles *profiles.Service
	items    *items.Service
	linker   *linker.Service
	disputes *disputes.Service
	lending  *lending.Service
	sweeper  *reconcile.Sweeper
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	base := logging.New(os.Stderr, cfg.LogLevel)

	conn, dialect, err := db.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, log: base, conn: conn, dialect: dialect}

	// SQLite はローカル実行用なので起動時にスキーマを当てる
	if dialect == db.SQLite {
		if err := db.Migrate(conn, dialect); err != nil {
			a.Close()
			return nil, err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	a.ledger, err = ledger.New(dialCtx, cfg.Ledger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connecting ledger: %w", err)
	}

	var lock reconcile.Locker = &reconcile.LocalLock{}
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.rdb.Ping(dialCtx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting redis: %w", err)
		}
		lock = reconcile.NewRedisLock(a.rdb, sweepLeaseKey, cfg.Redis.LockTTL.Duration)
	}

	store := mirror.NewStore(conn, dialect)
	clock := mirror.RealClock{}
	ids := mirror.NewULIDGen()

	a.profiles = profiles.NewService(store, clock, ids, logging.For(base, "profiles"))
	a.items = items.NewService(store, clock, ids, logging.For(base, "items"))
	a.linker = linker.NewService(store, clock, logging.For(base, "linker"))
	a.disputes = disputes.NewService(store, clock, ids, logging.For(base, "disputes"))
	a.lending = lending.NewService(store, a.ledger, a.disputes, clock, ids,
		logging.For(base, "lending"), cfg.Ledger.ApproveTimeout.Duration)
	a.sweeper = reconcile.New(store, a.ledger, a.linker, lock, clock,
		logging.For(base, "sweeper"), reconcile.OptionsFromConfig(cfg.Sweeper))

	base.Info("app ready", "mode", cfg.Mode, "db", string(dialect), "ledger", cfg.Ledger.Type, "redis", cfg.Redis.Addr != "")
	return a, nil
}

func (a *app) Close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
}
