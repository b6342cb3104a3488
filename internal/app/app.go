// Package app wires the device-local services from configuration. Both
// commands build their dependencies through it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/finsync/internal/config"
	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/device"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
	ledgerStore "github.com/MrJamesThe3rd/finsync/internal/ledger/store"
	"github.com/MrJamesThe3rd/finsync/internal/migration"
	"github.com/MrJamesThe3rd/finsync/internal/notify"
	notifyStore "github.com/MrJamesThe3rd/finsync/internal/notify/store"
	"github.com/MrJamesThe3rd/finsync/internal/remote"
	"github.com/MrJamesThe3rd/finsync/internal/remote/memstore"
	"github.com/MrJamesThe3rd/finsync/internal/remote/pgstore"
	"github.com/MrJamesThe3rd/finsync/internal/remote/redisstore"
	"github.com/MrJamesThe3rd/finsync/internal/secret"
	finsync "github.com/MrJamesThe3rd/finsync/internal/sync"
)

type App struct {
	DeviceID string

	Store         *ledgerStore.Store
	Gate          *device.Lock
	Ledger        *ledger.Service
	Notifications *notify.Manager
	Migration     *migration.Service

	// Remote and Sync are nil when no remote backend is configured.
	Remote remote.Store
	Sync   *finsync.Engine

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Gate: &device.Lock{}}

	db, err := database.OpenLocal(ctx, cfg.Local.Path)
	if err != nil {
		return nil, err
	}

	a.closers = append(a.closers, db.Close)

	if err := a.build(ctx, cfg, db); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, db *sql.DB) error {
	a.Store = ledgerStore.New(db)
	a.Notifications = notify.NewManager(notifyStore.New(db))

	id, err := device.LoadID(ctx, a.Store)
	if err != nil {
		return err
	}

	a.DeviceID = id

	threshold, err := decimal.NewFromString(cfg.Ledger.LowBalanceThreshold)
	if err != nil {
		return fmt.Errorf("parsing low balance threshold: %w", err)
	}

	a.Ledger = ledger.NewService(a.Store,
		ledger.WithNotifier(a.Notifications),
		ledger.WithGate(a.Gate),
		ledger.WithLowBalanceThreshold(threshold),
	)

	keys, err := keyProvider(cfg)
	if err != nil {
		return err
	}

	a.Migration = migration.NewService(a.DeviceID, a.Store, keys, migration.WithGate(a.Gate))

	if a.Remote, err = a.openRemote(ctx, cfg); err != nil {
		return err
	}

	if a.Remote != nil {
		a.Sync = finsync.NewEngine(a.DeviceID, a.Store, a.Remote,
			finsync.WithNotifier(a.Notifications),
			finsync.WithGate(a.Gate),
			finsync.WithLogger(slog.Default().With("component", "sync")),
			finsync.WithRetryDelay(cfg.Sync.RetryDelay, cfg.Sync.MaxRetryDelay),
		)
	}

	return nil
}

func keyProvider(cfg *config.Config) (secret.KeyProvider, error) {
	if cfg.Security.MasterSecret != "" {
		return secret.NewDerivedKey(cfg.Security.MasterSecret, cfg.Security.Salt)
	}

	return secret.NewFileKeyStore(cfg.Security.KeyDir)
}

func (a *App) openRemote(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.Remote.Backend {
	case config.BackendRedis:
		rdb, err := database.OpenRedis(ctx, database.RedisOptions{
			Addr:     cfg.Remote.Redis.Addr,
			Password: cfg.Remote.Redis.Password,
			DB:       cfg.Remote.Redis.DB,
		})
		if err != nil {
			return nil, err
		}

		a.closers = append(a.closers, rdb.Close)

		return redisstore.New(rdb), nil
	case config.BackendPostgres:
		connStr := cfg.ConnectionString()

		pg, err := database.OpenPostgres(connStr)
		if err != nil {
			return nil, err
		}

		a.closers = append(a.closers, pg.Close)

		st := pgstore.New(pg, connStr)
		if err := st.EnsureSchema(ctx); err != nil {
			return nil, err
		}

		return st, nil
	case config.BackendMemory:
		return memstore.New(), nil
	}

	return nil, nil
}

// Start begins listening for remote snapshots when sync is configured.
func (a *App) Start(ctx context.Context) error {
	if a.Sync == nil {
		slog.Info("remote sync disabled")
		return nil
	}

	return a.Sync.Start(ctx)
}

// Changed schedules a push of the local dataset after a local write.
func (a *App) Changed() {
	if a.Sync != nil {
		a.Sync.SchedulePush()
	}
}

// Close stops sync and releases every connection, in reverse order of opening.
func (a *App) Close() error {
	if a.Sync != nil {
		a.Sync.Stop()
	}

	var errs []error

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	a.closers = nil

	return errors.Join(errs...)
}
