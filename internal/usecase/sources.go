package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
)

// SourcesUseCase serves sources-only orders. They are never bound to a worker.
type SourcesUseCase struct {
	orders      repository.OrderRepository
	artifacts   repository.ArtifactRepository
	transitions *Transitions
	metrics     metrics.Recorder
	locks       orderLocks
}

// NewSourcesUseCase constructs SourcesUseCase.
func NewSourcesUseCase(
	orders repository.OrderRepository,
	artifacts repository.ArtifactRepository,
	transitions *Transitions,
	recorder metrics.Recorder,
) *SourcesUseCase {
	if recorder == nil {
		recorder = metrics.NewNop()
	}
	return &SourcesUseCase{orders: orders, artifacts: artifacts, transitions: transitions, metrics: recorder}
}

// Next returns the oldest pending sources-only order without claiming it, or nil.
func (u *SourcesUseCase) Next(ctx context.Context) (*model.Order, error) {
	order, err := u.orders.NextSourcesOnly(ctx)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, nil
	}
	return order, err
}

// Check verifies that orderID names a pending sources-only order.
func (u *SourcesUseCase) Check(ctx context.Context, orderID int64) (*model.Order, error) {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.SourcesOnly || order.Status != model.OrderStatusGetSourcesQueued {
		return nil, domainErrors.ErrWrongState
	}
	return order, nil
}

// Complete stores the sources archive of orderID and advances the sources flow. Completions of
// the same order are serialized, so a worker losing the race is rejected before its archive is stored.
func (u *SourcesUseCase) Complete(ctx context.Context, orderID int64, archive io.Reader) error {
	unlock := u.locks.lock(orderID)
	defer unlock()

	order, err := u.Check(ctx, orderID)
	if err != nil {
		return err
	}

	if _, err := u.artifacts.Save(ctx, order.ID, model.ArtifactSources, archive); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}

	out, err := lifecycle.Advance(*order, lifecycle.EventNone)
	if err != nil {
		return fmt.Errorf("%w: %v", domainErrors.ErrWrongState, err)
	}

	err = u.transitions.Move(ctx, order, model.StatusChange{To: out.Status})
	if errors.Is(err, domainErrors.ErrStateConflict) {
		return domainErrors.ErrWrongState
	}
	if err != nil {
		return err
	}

	u.metrics.RecordReport("sources", "success")
	return nil
}

// orderLocks hands out one mutex per order id, dropping it once nobody waits on it.
type orderLocks struct {
	mu   sync.Mutex
	held map[int64]*orderLock
}

type orderLock struct {
	sync.Mutex
	refs int
}

func (l *orderLocks) lock(id int64) func() {
	l.mu.Lock()
	if l.held == nil {
		l.held = make(map[int64]*orderLock)
	}
	entry, ok := l.held[id]
	if !ok {
		entry = &orderLock{}
		l.held[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.held, id)
		}
		l.mu.Unlock()
	}
}
