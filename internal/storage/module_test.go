package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage/artifact"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage/sqlite"
)

func TestModuleWiresSQLiteAndFilesystem(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{
		StoreDriver:     config.StoreSQLite,
		SQLitePath:      filepath.Join(dir, "orders.db"),
		ArtifactBackend: config.ArtifactFS,
		ArtifactDir:     filepath.Join(dir, "artifacts"),
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	var (
		store     Store
		orders    repository.OrderRepository
		artifacts repository.ArtifactRepository
	)
	app := fxtest.New(t,
		fx.NopLogger,
		fx.Provide(func() context.Context { return context.Background() }),
		fx.Supply(cfg, logger),
		Module,
		fx.Populate(&store, &orders, &artifacts),
	)
	app.RequireStart()
	defer app.RequireStop()

	if _, ok := store.(*sqlite.Storage); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if _, ok := artifacts.(*artifact.FSStore); !ok {
		t.Fatalf("expected filesystem artifacts, got %T", artifacts)
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if orders == nil {
		t.Fatal("expected order repository")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	if _, err := Open(context.Background(), &config.Config{StoreDriver: "mysql"}, logger); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegisterLifecycleClosesStore(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	store, err := sqlite.New(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	lc := fxtest.NewLifecycle(t)
	registerLifecycle(lc, store)
	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := lc.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected closed store to fail health check")
	}
}
