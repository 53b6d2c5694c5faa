package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
)

// NewOrder is a configured order submitted by the front-end. Priority zero derives the
// priority from the user's build history.
type NewOrder struct {
	UserID      int64
	Priority    int
	SourcesOnly bool
	UpdateTag   *string
	Config      model.BuildConfig
}

// OrderUseCase encapsulates the front-end side of the order lifecycle.
type OrderUseCase struct {
	orders      repository.OrderRepository
	artifacts   repository.ArtifactRepository
	transitions *Transitions
	stats       *StatsUseCase
}

// NewOrderUseCase constructs OrderUseCase.
func NewOrderUseCase(
	orders repository.OrderRepository,
	artifacts repository.ArtifactRepository,
	transitions *Transitions,
	stats *StatsUseCase,
) *OrderUseCase {
	return &OrderUseCase{orders: orders, artifacts: artifacts, transitions: transitions, stats: stats}
}

// Create enqueues a configured order and returns it with its queue position.
func (u *OrderUseCase) Create(ctx context.Context, in NewOrder) (*model.Order, int, error) {
	if err := ValidatePriority(in.Priority, true); err != nil {
		return nil, 0, err
	}

	priority := in.Priority
	if priority == 0 {
		derived, err := u.stats.PriorityFor(ctx, in.UserID)
		if err != nil {
			return nil, 0, fmt.Errorf("derive priority: %w", err)
		}
		priority = derived
	}

	order, err := u.orders.Create(ctx, &model.Order{
		UserID:      in.UserID,
		Status:      lifecycle.Initial(in.SourcesOnly),
		Priority:    priority,
		SourcesOnly: in.SourcesOnly,
		UpdateTag:   in.UpdateTag,
		Config:      in.Config,
	})
	if err != nil {
		return nil, 0, err
	}
	u.transitions.Announce(ctx, order, "", order.Status)

	position, err := u.position(ctx, order)
	if err != nil {
		return nil, 0, err
	}
	return order, position, nil
}

// Get returns the order with its queue position, zero unless the order is queued.
func (u *OrderUseCase) Get(ctx context.Context, id int64) (*model.Order, int, error) {
	order, err := u.orders.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	position, err := u.position(ctx, order)
	if err != nil {
		return nil, 0, err
	}
	return order, position, nil
}

func (u *OrderUseCase) position(ctx context.Context, order *model.Order) (int, error) {
	if order.Status != model.OrderStatusQueued {
		return 0, nil
	}
	return u.orders.QueuePosition(ctx, order)
}

// Update replaces priority, configuration and update tag of an order no worker holds.
func (u *OrderUseCase) Update(ctx context.Context, order *model.Order) error {
	if err := ValidatePriority(order.Priority, false); err != nil {
		return err
	}
	return u.orders.Update(ctx, order)
}

// ApplyEvent advances order id by a front-end event. It returns nil once the order was removed.
func (u *OrderUseCase) ApplyEvent(ctx context.Context, id int64, event lifecycle.Event) (*model.Order, error) {
	order, err := u.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	out, err := lifecycle.Advance(*order, event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrWrongState, err)
	}

	if out.Removed {
		return nil, u.remove(ctx, order)
	}

	change := model.StatusChange{
		To:             out.Status,
		ResetQueueTime: event == lifecycle.EventRetry,
	}
	if order.Leased() && !slices.Contains(model.LeasedStatuses, out.Status) {
		change.ReleaseWorker = true
	}

	err = u.transitions.Move(ctx, order, change)
	if errors.Is(err, domainErrors.ErrStateConflict) {
		return nil, domainErrors.ErrWrongState
	}
	if err != nil {
		return nil, err
	}

	return u.orders.GetByID(ctx, id)
}

// Delete removes a delivered or abandoned order together with its artifacts.
func (u *OrderUseCase) Delete(ctx context.Context, id int64) error {
	order, err := u.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order.Leased() {
		return domainErrors.ErrStateConflict
	}
	return u.remove(ctx, order)
}

func (u *OrderUseCase) remove(ctx context.Context, order *model.Order) error {
	if err := u.transitions.Remove(ctx, order); err != nil {
		return err
	}
	if err := u.artifacts.Remove(ctx, order.ID); err != nil {
		u.transitions.logger.Warn("failed to remove artifacts",
			slog.Int64("order_id", order.ID),
			slog.Any("error", err),
		)
	}
	return nil
}

// OpenArtifact streams the result uploaded for order id.
func (u *OrderUseCase) OpenArtifact(ctx context.Context, id int64) (io.ReadCloser, model.ArtifactKind, error) {
	order, err := u.orders.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	kind := model.ArtifactFor(*order)
	r, err := u.artifacts.Open(ctx, order.ID, kind)
	if err != nil {
		return nil, "", err
	}
	return r, kind, nil
}
