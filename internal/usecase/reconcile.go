package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
)

// Recovery reasons.
const (
	RecoverStuck   = "stuck"
	RecoverOffline = "offline"
)

// ReconcileUseCase repairs orders abandoned by crashed processes or lost workers and applies
// retention to finished orders and build statistics.
type ReconcileUseCase struct {
	orders      repository.OrderRepository
	workers     repository.WorkerRepository
	stats       repository.StatsRepository
	artifacts   repository.ArtifactRepository
	transitions *Transitions
	metrics     metrics.Recorder
	logger      *slog.Logger

	offline           time.Duration
	statsRetention    time.Duration
	finishedRetention time.Duration
	now               func() time.Time
}

// NewReconcileUseCase constructs ReconcileUseCase.
func NewReconcileUseCase(
	orders repository.OrderRepository,
	workers repository.WorkerRepository,
	stats repository.StatsRepository,
	artifacts repository.ArtifactRepository,
	transitions *Transitions,
	recorder metrics.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *ReconcileUseCase {
	if recorder == nil {
		recorder = metrics.NewNop()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReconcileUseCase{
		orders:            orders,
		workers:           workers,
		stats:             stats,
		artifacts:         artifacts,
		transitions:       transitions,
		metrics:           recorder,
		logger:            logger,
		offline:           cfg.OfflineThreshold,
		statsRetention:    cfg.StatsRetention,
		finishedRetention: cfg.FinishedRetention,
		now:               time.Now,
	}
}

// RecoverStuck sends every in-progress order back one step and releases its worker. It runs
// once at startup, before any worker or front-end call can be in flight.
func (u *ReconcileUseCase) RecoverStuck(ctx context.Context) (int, error) {
	orders, err := u.orders.ListByStatus(ctx, model.InProgressStatuses...)
	if err != nil {
		return 0, fmt.Errorf("list in-progress orders: %w", err)
	}

	var recovered int
	for i := range orders {
		order := &orders[i]
		ok, err := u.repeat(ctx, order, nil)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
		}
	}

	u.metrics.RecordRecovered(RecoverStuck, recovered)
	return recovered, nil
}

// RecoverOffline re-queues leased orders whose worker is gone or has not heartbeated within
// the offline threshold. The change is conditioned on the worker binding so a worker that
// reported in the meantime keeps its result.
func (u *ReconcileUseCase) RecoverOffline(ctx context.Context) (int, error) {
	orders, err := u.orders.ListByStatus(ctx, model.LeasedStatuses...)
	if err != nil {
		return 0, fmt.Errorf("list leased orders: %w", err)
	}

	now := u.now()
	var recovered int
	for i := range orders {
		order := &orders[i]
		if order.WorkerID != nil {
			w, err := u.workers.GetByID(ctx, *order.WorkerID)
			switch {
			case errors.Is(err, domainErrors.ErrNotFound):
			case err != nil:
				return recovered, fmt.Errorf("get worker %d: %w", *order.WorkerID, err)
			case w.Online(now, u.offline):
				continue
			}
		}

		ok, err := u.repeat(ctx, order, order.WorkerID)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
		}
	}

	u.metrics.RecordRecovered(RecoverOffline, recovered)
	return recovered, nil
}

// repeat applies the repeat event to order. It reports false when the order moved concurrently.
func (u *ReconcileUseCase) repeat(ctx context.Context, order *model.Order, workerID *int64) (bool, error) {
	out, err := lifecycle.Advance(*order, lifecycle.EventRepeat)
	if err != nil {
		return false, err
	}

	err = u.transitions.Move(ctx, order, model.StatusChange{
		To:            out.Status,
		WorkerID:      workerID,
		ReleaseWorker: true,
	})
	if errors.Is(err, domainErrors.ErrStateConflict) {
		u.logger.Debug("order changed during reconciliation", slog.Int64("order_id", order.ID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("requeue order %d: %w", order.ID, err)
	}

	u.logger.Info("order sent back",
		slog.Int64("order_id", order.ID),
		slog.String("from", string(order.Status)),
		slog.String("to", string(out.Status)),
	)
	return true, nil
}

// PurgeStats deletes build statistics of users inactive beyond the retention horizon.
func (u *ReconcileUseCase) PurgeStats(ctx context.Context) (int64, error) {
	n, err := u.stats.DeleteBefore(ctx, u.now().Add(-u.statsRetention))
	if err != nil {
		return 0, fmt.Errorf("purge stats: %w", err)
	}
	u.metrics.RecordPurged("stats", n)
	return n, nil
}

// PurgeFinished deletes terminal orders older than the retention horizon with their artifacts.
func (u *ReconcileUseCase) PurgeFinished(ctx context.Context) (int64, error) {
	orders, err := u.orders.ListUpdatedBefore(ctx, u.now().Add(-u.finishedRetention), model.FinishedStatuses...)
	if err != nil {
		return 0, fmt.Errorf("list finished orders: %w", err)
	}

	var purged int64
	for i := range orders {
		order := &orders[i]
		err := u.transitions.Remove(ctx, order)
		if errors.Is(err, domainErrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return purged, fmt.Errorf("delete order %d: %w", order.ID, err)
		}
		if err := u.artifacts.Remove(ctx, order.ID); err != nil {
			u.logger.Warn("failed to remove artifacts", slog.Int64("order_id", order.ID), slog.Any("error", err))
		}
		purged++
	}

	u.metrics.RecordPurged("orders", purged)
	return purged, nil
}

// Pass runs one periodic reconciliation round. Steps are independent; their errors are joined.
func (u *ReconcileUseCase) Pass(ctx context.Context) error {
	var errs []error
	if _, err := u.RecoverOffline(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := u.PurgeStats(ctx); err != nil {
		errs = append(errs, err)
	}
	if _, err := u.PurgeFinished(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
