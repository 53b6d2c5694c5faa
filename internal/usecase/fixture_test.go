package usecase

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage/sqlite"
	testhelpers "github.com/wrwrabbit/apk-customizer-bot/internal/test"
)

type fixture struct {
	store       *sqlite.Storage
	artifacts   *testhelpers.ArtifactStoreStub
	notifier    *testhelpers.NotifierStub
	recorder    *testhelpers.RecorderStub
	transitions *Transitions
	stats       *StatsUseCase
	registry    *WorkerRegistry
	lease       *LeaseUseCase
	sources     *SourcesUseCase
	orders      *OrderUseCase
	reconcile   *ReconcileUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store, err := sqlite.New(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	cfg := &config.Config{
		OfflineThreshold:    time.Minute,
		StatsRetention:      24 * time.Hour,
		FinishedRetention:   time.Hour,
		FailedBuildsAllowed: 1,
	}

	f := &fixture{
		store:     store,
		artifacts: testhelpers.NewArtifactStoreStub(),
		notifier:  &testhelpers.NotifierStub{},
		recorder:  &testhelpers.RecorderStub{},
	}
	f.transitions = NewTransitions(store.Orders(), f.notifier, f.recorder, logger)
	f.stats = NewStatsUseCase(store.Stats(), store.ErrorLogs(), testhelpers.HasherStub{}, cfg)
	f.registry = NewWorkerRegistry(store.Workers(), store.Orders(), f.transitions, testhelpers.StrategyStub{}, cfg)
	f.lease = NewLeaseUseCase(store.Orders(), f.artifacts, f.transitions, f.stats, f.recorder)
	f.sources = NewSourcesUseCase(store.Orders(), f.artifacts, f.transitions, f.recorder)
	f.orders = NewOrderUseCase(store.Orders(), f.artifacts, f.transitions, f.stats)
	f.reconcile = NewReconcileUseCase(store.Orders(), store.Workers(), store.Stats(), f.artifacts, f.transitions, f.recorder, cfg, logger)
	return f
}

func (f *fixture) worker(t *testing.T, name string) *model.Worker {
	t.Helper()
	w, err := f.registry.Register(context.Background(), name, "")
	require.NoError(t, err)
	require.NoError(t, f.registry.Heartbeat(context.Background(), w.ID))
	return w
}

func (f *fixture) order(t *testing.T, userID int64, priority int, sourcesOnly bool) *model.Order {
	t.Helper()
	order, _, err := f.orders.Create(context.Background(), NewOrder{
		UserID:      userID,
		Priority:    priority,
		SourcesOnly: sourcesOnly,
		Config:      model.BuildConfig{AppName: "Calc", AppID: "com.example.calc"},
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) reload(t *testing.T, id int64) *model.Order {
	t.Helper()
	order, err := f.store.Orders().GetByID(context.Background(), id)
	require.NoError(t, err)
	return order
}
