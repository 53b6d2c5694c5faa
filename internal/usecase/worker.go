package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
)

// WorkerRegistry manages build machines and their liveness.
type WorkerRegistry struct {
	workers     repository.WorkerRepository
	orders      repository.OrderRepository
	transitions *Transitions
	tokens      auth.Strategy
	offline     time.Duration
	now         func() time.Time
}

// NewWorkerRegistry constructs WorkerRegistry.
func NewWorkerRegistry(
	workers repository.WorkerRepository,
	orders repository.OrderRepository,
	transitions *Transitions,
	tokens auth.Strategy,
	cfg *config.Config,
) *WorkerRegistry {
	return &WorkerRegistry{
		workers:     workers,
		orders:      orders,
		transitions: transitions,
		tokens:      tokens,
		offline:     cfg.OfflineThreshold,
		now:         time.Now,
	}
}

// Register adds a worker. An empty ip accepts calls from any address.
func (r *WorkerRegistry) Register(ctx context.Context, name, ip string) (*model.Worker, error) {
	if err := ValidateWorkerName(name); err != nil {
		return nil, err
	}
	var addr *string
	if ip = strings.TrimSpace(ip); ip != "" {
		addr = &ip
	}
	return r.workers.Create(ctx, strings.TrimSpace(name), addr)
}

// Remove deletes a worker, sending the order it holds back to the queue first.
func (r *WorkerRegistry) Remove(ctx context.Context, id int64) error {
	if _, err := r.workers.GetByID(ctx, id); err != nil {
		return err
	}

	order, err := r.orders.GetByWorker(ctx, id)
	switch {
	case err == nil:
		if err := r.requeue(ctx, order, id); err != nil && !errors.Is(err, domainErrors.ErrStateConflict) {
			return fmt.Errorf("requeue order %d: %w", order.ID, err)
		}
	case !errors.Is(err, domainErrors.ErrNotFound):
		return err
	}

	return r.workers.Delete(ctx, id)
}

func (r *WorkerRegistry) requeue(ctx context.Context, order *model.Order, workerID int64) error {
	out, err := lifecycle.Advance(*order, lifecycle.EventRepeat)
	if err != nil {
		return err
	}
	return r.transitions.Move(ctx, order, model.StatusChange{
		To:            out.Status,
		WorkerID:      &workerID,
		ReleaseWorker: true,
	})
}

// Heartbeat records that the worker is alive.
func (r *WorkerRegistry) Heartbeat(ctx context.Context, id int64) error {
	return r.workers.Touch(ctx, id, r.now())
}

func (r *WorkerRegistry) Get(ctx context.Context, id int64) (*model.Worker, error) {
	return r.workers.GetByID(ctx, id)
}

func (r *WorkerRegistry) GetByName(ctx context.Context, name string) (*model.Worker, error) {
	return r.workers.GetByName(ctx, name)
}

func (r *WorkerRegistry) List(ctx context.Context) ([]model.Worker, error) {
	return r.workers.List(ctx)
}

// Online reports whether the worker heartbeated within the offline threshold.
func (r *WorkerRegistry) Online(w model.Worker) bool {
	return w.Online(r.now(), r.offline)
}

// CurrentOrder returns the order bound to the worker, or ErrNoLease.
func (r *WorkerRegistry) CurrentOrder(ctx context.Context, id int64) (*model.Order, error) {
	order, err := r.orders.GetByWorker(ctx, id)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, domainErrors.ErrNoLease
	}
	return order, err
}

// Authenticate resolves the worker behind a verified token. Unknown workers and calls from an
// address outside the worker's allow-list are rejected with ErrUnauthorized.
func (r *WorkerRegistry) Authenticate(ctx context.Context, id int64, remoteAddr string) (*model.Worker, error) {
	w, err := r.workers.GetByID(ctx, id)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return nil, domainErrors.ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !w.AllowsAddr(remoteAddr) {
		return nil, domainErrors.ErrUnauthorized
	}
	return w, nil
}

// IssueToken returns a bearer token for an existing worker.
func (r *WorkerRegistry) IssueToken(ctx context.Context, id int64) (string, error) {
	if _, err := r.workers.GetByID(ctx, id); err != nil {
		return "", err
	}
	return r.tokens.IssueToken(id, auth.KindWorker)
}

// IssueFrontendToken returns a bearer token for the chat front-end.
func (r *WorkerRegistry) IssueFrontendToken() (string, error) {
	return r.tokens.IssueToken(0, auth.KindFrontend)
}
