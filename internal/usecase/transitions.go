package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
)

// Transitions persists status changes and announces them. Every component that moves an order
// goes through it so events and metrics stay consistent.
type Transitions struct {
	orders   repository.OrderRepository
	notifier Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewTransitions constructs Transitions. A nil notifier or recorder discards events.
func NewTransitions(orders repository.OrderRepository, notifier Notifier, recorder metrics.Recorder, logger *slog.Logger) *Transitions {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if recorder == nil {
		recorder = metrics.NewNop()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transitions{orders: orders, notifier: notifier, metrics: recorder, logger: logger, now: time.Now}
}

// Move applies change to order with compare-and-set on its current status.
func (t *Transitions) Move(ctx context.Context, order *model.Order, change model.StatusChange) error {
	change.OrderID = order.ID
	change.From = order.Status
	if err := t.orders.ChangeStatus(ctx, change); err != nil {
		return err
	}
	t.Announce(ctx, order, change.From, change.To)
	return nil
}

// Remove deletes order from the store and announces its removal.
func (t *Transitions) Remove(ctx context.Context, order *model.Order) error {
	if err := t.orders.Delete(ctx, order.ID); err != nil {
		return err
	}
	t.metrics.RecordRemoval(order.Status)
	t.publish(ctx, model.StatusEvent{
		OrderID: order.ID,
		UserID:  order.UserID,
		From:    order.Status,
		Removed: true,
		At:      t.now().UTC(),
	})
	return nil
}

// Announce reports a change that was already persisted.
func (t *Transitions) Announce(ctx context.Context, order *model.Order, from, to model.OrderStatus) {
	t.metrics.RecordTransition(from, to)
	t.publish(ctx, model.StatusEvent{
		OrderID: order.ID,
		UserID:  order.UserID,
		From:    from,
		To:      to,
		At:      t.now().UTC(),
	})
}

func (t *Transitions) publish(ctx context.Context, event model.StatusEvent) {
	if err := t.notifier.Publish(ctx, event); err != nil {
		t.logger.Warn("failed to publish status event",
			slog.Int64("order_id", event.OrderID),
			slog.String("to", string(event.To)),
			slog.Any("error", err),
		)
	}
}
