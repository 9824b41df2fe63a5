package storage

import (
	"context"
	"fmt"
	"time"

	"signal_engine/internal/modules/config"
	"signal_engine/internal/store"
	"signal_engine/internal/store/memory"
	"signal_engine/internal/store/pg"
	"signal_engine/internal/store/sqlite"
	"signal_engine/pkg/db"
	"signal_engine/pkg/logger"

	"go.uber.org/fx"
)

// Module регистрирует store.Store по storage.driver и закрывает его на остановке.
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			NewStore,
		),
		fx.Invoke(func(lc fx.Lifecycle, s store.Store) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return s.Close()
				},
			})
		}),
	)
}

func NewStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		logger.Info("[STORE] sqlite at %s", cfg.Storage.SQLitePath)
		return sqlite.New(cfg.Storage.SQLitePath)
	case "memory":
		logger.Warn("[STORE] in-memory store, signals are lost on restart")
		return memory.New(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolMaster, err := db.NewPool(ctx, db.PoolConfig{
		DSN:      cfg.DB,
		MaxConns: cfg.Storage.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create poolMaster: %w", err)
	}

	err = poolMaster.Ping(ctx)
	if err != nil {
		poolMaster.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.Info("[STORE] postgres pool ready (max_conns=%d)", cfg.Storage.MaxConns)
	return pg.New(db.NewPgTxManager(poolMaster)), nil
}
