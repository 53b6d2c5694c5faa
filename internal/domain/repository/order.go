package repository

import (
	"context"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// OrderRepository describes persistence operations with orders.
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) (*model.Order, error)
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	GetByWorker(ctx context.Context, workerID int64) (*model.Order, error)
	// Update replaces priority, configuration and update tag of an order that no worker holds.
	Update(ctx context.Context, order *model.Order) error
	// ChangeStatus applies a compare-and-set status change, returning ErrStateConflict when the
	// order no longer matches.
	ChangeStatus(ctx context.Context, change model.StatusChange) error
	ListByStatus(ctx context.Context, statuses ...model.OrderStatus) ([]model.Order, error)
	ListUpdatedBefore(ctx context.Context, before time.Time, statuses ...model.OrderStatus) ([]model.Order, error)
	QueuePosition(ctx context.Context, order *model.Order) (int, error)
	// LeaseNext atomically selects the next queued build order, binds it to workerID and moves it to
	// leased. ErrNotFound means the queue is empty, ErrLeaseHeld that the worker already holds one.
	LeaseNext(ctx context.Context, workerID int64, leased model.OrderStatus) (*model.Order, error)
	NextSourcesOnly(ctx context.Context) (*model.Order, error)
	Delete(ctx context.Context, id int64) error
}
