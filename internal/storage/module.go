// Package storage selects the order store and artifact backend configured for the process.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage/artifact"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage/postgres"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage/sqlite"
)

// Store is a repository factory with a connectivity probe.
type Store interface {
	repository.Factory
	HealthCheck(ctx context.Context) error
}

var (
	_ Store = (*postgres.Storage)(nil)
	_ Store = (*sqlite.Storage)(nil)
)

// Module wires the configured store, its repositories and the artifact backend.
var Module = fx.Options(
	fx.Provide(newStore, newArtifacts),
	fx.Provide(
		func(s Store) repository.OrderRepository { return s.Orders() },
		func(s Store) repository.WorkerRepository { return s.Workers() },
		func(s Store) repository.StatsRepository { return s.Stats() },
		func(s Store) repository.ErrorLogRepository { return s.ErrorLogs() },
	),
	fx.Invoke(registerLifecycle),
)

type storageParams struct {
	fx.In

	Ctx    context.Context
	Config *config.Config
	Logger *slog.Logger
}

func newStore(p storageParams) (Store, error) {
	return Open(p.Ctx, p.Config, p.Logger)
}

// Open connects to the store named by cfg.StoreDriver.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		return sqlite.New(ctx, cfg.SQLitePath, logger)
	case config.StorePostgres, "":
		return postgres.New(ctx, cfg.DatabaseURI, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

type artifactParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
}

func newArtifacts(p artifactParams) (repository.ArtifactRepository, error) {
	switch p.Config.ArtifactBackend {
	case config.ArtifactMinIO:
		store, err := artifact.NewMinIOStore(p.Config.MinIO)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{OnStart: store.EnsureBucket})
		return store, nil
	case config.ArtifactFS, "":
		return artifact.NewFSStore(p.Config.ArtifactDir)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", p.Config.ArtifactBackend)
	}
}

func registerLifecycle(lc fx.Lifecycle, store Store) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			store.Close()
			return nil
		},
	})
}
