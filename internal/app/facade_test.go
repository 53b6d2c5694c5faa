package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage/sqlite"
	testhelpers "github.com/wrwrabbit/apk-customizer-bot/internal/test"
	"github.com/wrwrabbit/apk-customizer-bot/internal/usecase"
)

func newFacade(t *testing.T) (*ControllerFacade, *usecase.WorkerRegistry) {
	t.Helper()
	logger := newLogger()
	store, err := sqlite.New(context.Background(), ":memory:", logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(store.Close)

	cfg := &config.Config{OfflineThreshold: time.Minute, FailedBuildsAllowed: 3}
	tokens := auth.NewJWTStrategy("secret", auth.Options{})
	artifacts := testhelpers.NewArtifactStoreStub()
	transitions := usecase.NewTransitions(store.Orders(), nil, nil, logger)
	stats := usecase.NewStatsUseCase(store.Stats(), store.ErrorLogs(), auth.NewArgon2Hasher("salt"), cfg)
	registry := usecase.NewWorkerRegistry(store.Workers(), store.Orders(), transitions, tokens, cfg)

	facade := NewControllerFacade(
		registry,
		usecase.NewLeaseUseCase(store.Orders(), artifacts, transitions, stats, nil),
		usecase.NewSourcesUseCase(store.Orders(), artifacts, transitions, nil),
		usecase.NewOrderUseCase(store.Orders(), artifacts, transitions, stats),
		stats,
		tokens,
		store,
	)
	return facade, registry
}

func TestControllerFacadeBuildFlow(t *testing.T) {
	ctx := context.Background()
	facade, registry := newFacade(t)

	w, err := registry.Register(ctx, "builder", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token, err := registry.IssueToken(ctx, w.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	principal, err := facade.ParseToken(token)
	if err != nil || principal.Subject != w.ID || principal.Kind != auth.KindWorker {
		t.Fatalf("unexpected principal %+v (%v)", principal, err)
	}
	if _, err := facade.AuthenticateWorker(ctx, w.ID, "10.0.0.1"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if err := facade.Heartbeat(ctx, w.ID); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	order, pos, err := facade.CreateOrder(ctx, model.Order{UserID: 9, Config: model.BuildConfig{AppName: "Calc"}})
	if err != nil || pos != 1 || order.Priority != model.DefaultPriority {
		t.Fatalf("unexpected create result %+v %d %v", order, pos, err)
	}

	leased, err := facade.ReceiveOrder(ctx, w.ID)
	if err != nil || leased == nil || leased.ID != order.ID {
		t.Fatalf("unexpected lease %+v %v", leased, err)
	}
	if _, err := facade.CurrentOrder(ctx, w.ID); err != nil {
		t.Fatalf("current order: %v", err)
	}
	if err := facade.CompleteOrder(ctx, w.ID, strings.NewReader("apk")); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := facade.ApplyEvent(ctx, order.ID, lifecycle.EventSendResult)
	if err != nil || got.Status != model.OrderStatusSendingResult {
		t.Fatalf("unexpected event result %+v %v", got, err)
	}

	r, kind, err := facade.OpenArtifact(ctx, order.ID)
	if err != nil || kind != model.ArtifactBuild {
		t.Fatalf("open artifact: %v %s", err, kind)
	}
	data, _ := io.ReadAll(r)
	_ = r.Close()
	if string(data) != "apk" {
		t.Fatalf("unexpected artifact %q", data)
	}

	stats, err := facade.UserStats(ctx, 9)
	if err != nil || stats.SuccessfulBuildCount != 1 {
		t.Fatalf("unexpected stats %+v %v", stats, err)
	}

	if err := facade.UpdateOrder(ctx, &model.Order{ID: order.ID, Priority: 2}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, pos, err := facade.GetOrder(ctx, order.ID); err != nil || pos != 0 {
		t.Fatalf("unexpected get result %d %v", pos, err)
	}
	if err := facade.DeleteOrder(ctx, order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := facade.HealthCheck(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestControllerFacadeFailureAndSources(t *testing.T) {
	ctx := context.Background()
	facade, registry := newFacade(t)
	w, err := registry.Register(ctx, "builder", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, _, err := facade.CreateOrder(ctx, model.Order{UserID: 1, Priority: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := facade.ReceiveOrder(ctx, w.ID); err != nil {
		t.Fatalf("receive: %v", err)
	}
	text := "boom"
	if err := facade.FailOrder(ctx, w.ID, &text); err != nil {
		t.Fatalf("fail: %v", err)
	}
	entry, err := facade.PopErrorLog(ctx)
	if err != nil || entry.Text != "boom" {
		t.Fatalf("unexpected error log %+v %v", entry, err)
	}
	if err := facade.AddErrorLog(ctx, "panic"); err != nil {
		t.Fatalf("add error log: %v", err)
	}

	src, _, err := facade.CreateOrder(ctx, model.Order{UserID: 2, Priority: 1, SourcesOnly: true})
	if err != nil {
		t.Fatalf("create sources: %v", err)
	}
	next, err := facade.NextSourcesOrder(ctx)
	if err != nil || next == nil || next.ID != src.ID {
		t.Fatalf("unexpected sources order %+v %v", next, err)
	}
	if _, err := facade.CheckSourcesOrder(ctx, src.ID); err != nil {
		t.Fatalf("check sources: %v", err)
	}
	if err := facade.CompleteSourcesOrder(ctx, src.ID, strings.NewReader("zip")); err != nil {
		t.Fatalf("complete sources: %v", err)
	}
	if _, err := facade.CheckSourcesOrder(ctx, src.ID); !errors.Is(err, domainErrors.ErrWrongState) {
		t.Fatalf("expected wrong state after completion, got %v", err)
	}
}
