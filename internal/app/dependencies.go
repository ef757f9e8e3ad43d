package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderstore/internal/health"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/postgres"
)

// runtimeDependencies содержит хранилище, выбранное конфигурацией.
type runtimeDependencies struct {
	store          domain.OrderStore
	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies открывает хранилище заказов. Для postgres применяет миграции, если включено.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		logger.Info("using in-memory order store")
		return &runtimeDependencies{store: memory.NewOrderRepository()}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres dsn is required for storage driver %q", StorageDriverPostgres)
		}

		pgStore, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := pgStore.MigrateUp(ctx, 0); err != nil {
				_ = pgStore.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.Info("using postgres order store")
		return &runtimeDependencies{
			store:          postgres.NewOrderRepository(pgStore),
			storageChecker: healthcheck.NewPingChecker("postgres", pgStore),
			closeFn:        pgStore.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close order store")
	}
}
