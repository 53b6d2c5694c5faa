package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
)

// LeaseUseCase implements the binary build leasing protocol: at most one order per worker.
type LeaseUseCase struct {
	orders      repository.OrderRepository
	artifacts   repository.ArtifactRepository
	transitions *Transitions
	stats       *StatsUseCase
	metrics     metrics.Recorder
}

// NewLeaseUseCase constructs LeaseUseCase.
func NewLeaseUseCase(
	orders repository.OrderRepository,
	artifacts repository.ArtifactRepository,
	transitions *Transitions,
	stats *StatsUseCase,
	recorder metrics.Recorder,
) *LeaseUseCase {
	if recorder == nil {
		recorder = metrics.NewNop()
	}
	return &LeaseUseCase{orders: orders, artifacts: artifacts, transitions: transitions, stats: stats, metrics: recorder}
}

// Receive leases the next queued build order to workerID. It returns nil when the queue is empty
// and ErrLeaseHeld when the worker already holds an order.
func (u *LeaseUseCase) Receive(ctx context.Context, workerID int64) (*model.Order, error) {
	leased := lifecycle.MustNext(model.OrderStatusQueued, lifecycle.EventNone).Status

	order, err := u.orders.LeaseNext(ctx, workerID, leased)
	switch {
	case errors.Is(err, domainErrors.ErrNotFound):
		u.metrics.RecordLease(metrics.LeaseEmpty)
		return nil, nil
	case errors.Is(err, domainErrors.ErrLeaseHeld):
		u.metrics.RecordLease(metrics.LeaseHeld)
		return nil, err
	case err != nil:
		return nil, err
	}

	u.metrics.RecordLease(metrics.LeaseGranted)
	u.transitions.Announce(ctx, order, model.OrderStatusQueued, order.Status)
	return order, nil
}

// Current returns the order workerID holds, or ErrNoLease.
func (u *LeaseUseCase) Current(ctx context.Context, workerID int64) (*model.Order, error) {
	order, err := u.orders.GetByWorker(ctx, workerID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, domainErrors.ErrNoLease
	}
	return order, err
}

// Complete stores the built package, releases the worker and advances the success branch.
func (u *LeaseUseCase) Complete(ctx context.Context, workerID int64, apk io.Reader) error {
	order, err := u.Current(ctx, workerID)
	if err != nil {
		return err
	}

	if _, err := u.artifacts.Save(ctx, order.ID, model.ArtifactBuild, apk); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	order, err = u.release(ctx, order, workerID, func(o *model.Order) (lifecycle.Outcome, error) {
		return lifecycle.Success(o.Status)
	})
	if err != nil {
		return err
	}

	u.metrics.RecordReport("build", "success")
	u.recordBuild(ctx, order, true)
	return nil
}

// Fail releases the worker, advances the fail branch and keeps errorText as a diagnostic.
func (u *LeaseUseCase) Fail(ctx context.Context, workerID int64, errorText *string) error {
	order, err := u.Current(ctx, workerID)
	if err != nil {
		return err
	}

	order, err = u.release(ctx, order, workerID, func(o *model.Order) (lifecycle.Outcome, error) {
		return lifecycle.Advance(*o, lifecycle.EventFail)
	})
	if err != nil {
		return err
	}

	u.metrics.RecordReport("build", "failure")
	if errorText != nil {
		u.transitions.logger.Error("error_text received from a build worker",
			slog.Int64("order_id", order.ID),
			slog.Int64("worker_id", workerID),
		)
		if err := u.stats.AddErrorLog(ctx, *errorText); err != nil {
			u.transitions.logger.Warn("failed to store build error", slog.Any("error", err))
		}
	}
	u.recordBuild(ctx, order, false)
	return nil
}

// releaseAttempts bounds how often a report is re-resolved after losing a status race.
const releaseAttempts = 3

// release counts the attempt and unbinds the worker, moving the order to the status resolve picks.
// A concurrent status change is re-resolved from the reloaded order while workerID still holds it.
// A reconciliation that already took the order away surfaces as ErrNoLease.
func (u *LeaseUseCase) release(
	ctx context.Context,
	order *model.Order,
	workerID int64,
	resolve func(*model.Order) (lifecycle.Outcome, error),
) (*model.Order, error) {
	var err error
	for range releaseAttempts {
		out, resolveErr := resolve(order)
		if resolveErr != nil {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrWrongState, resolveErr)
		}

		err = u.transitions.Move(ctx, order, model.StatusChange{
			To:            out.Status,
			WorkerID:      &workerID,
			ReleaseWorker: true,
			CountAttempt:  true,
		})
		if !errors.Is(err, domainErrors.ErrStateConflict) {
			return order, err
		}

		current, getErr := u.orders.GetByWorker(ctx, workerID)
		if errors.Is(getErr, domainErrors.ErrNotFound) {
			return nil, domainErrors.ErrNoLease
		}
		if getErr != nil {
			return nil, getErr
		}
		if current.ID != order.ID {
			return nil, domainErrors.ErrNoLease
		}
		order = current
	}
	return nil, fmt.Errorf("%w: %v", domainErrors.ErrWrongState, err)
}

func (u *LeaseUseCase) recordBuild(ctx context.Context, order *model.Order, successful bool) {
	if err := u.stats.RecordBuild(ctx, order.UserID, successful); err != nil {
		u.transitions.logger.Warn("failed to record build stats",
			slog.Int64("order_id", order.ID),
			slog.Any("error", err),
		)
	}
}
