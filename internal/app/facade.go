package app

import (
	"context"
	"io"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/handlers"
	"github.com/wrwrabbit/apk-customizer-bot/internal/usecase"
)

// HealthChecker reports store availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ControllerFacade adapts the use cases to the HTTP layer.
type ControllerFacade struct {
	registry *usecase.WorkerRegistry
	lease    *usecase.LeaseUseCase
	sources  *usecase.SourcesUseCase
	orders   *usecase.OrderUseCase
	stats    *usecase.StatsUseCase
	tokens   auth.Strategy
	health   HealthChecker
}

var _ handlers.ControllerFacade = (*ControllerFacade)(nil)

func NewControllerFacade(
	registry *usecase.WorkerRegistry,
	lease *usecase.LeaseUseCase,
	sources *usecase.SourcesUseCase,
	orders *usecase.OrderUseCase,
	stats *usecase.StatsUseCase,
	tokens auth.Strategy,
	health HealthChecker,
) *ControllerFacade {
	return &ControllerFacade{
		registry: registry,
		lease:    lease,
		sources:  sources,
		orders:   orders,
		stats:    stats,
		tokens:   tokens,
		health:   health,
	}
}

func (f *ControllerFacade) ParseToken(token string) (*auth.Principal, error) {
	return f.tokens.ParseToken(token)
}

func (f *ControllerFacade) AuthenticateWorker(ctx context.Context, id int64, remoteAddr string) (*model.Worker, error) {
	return f.registry.Authenticate(ctx, id, remoteAddr)
}

func (f *ControllerFacade) Heartbeat(ctx context.Context, id int64) error {
	return f.registry.Heartbeat(ctx, id)
}

func (f *ControllerFacade) AddErrorLog(ctx context.Context, text string) error {
	return f.stats.AddErrorLog(ctx, text)
}

func (f *ControllerFacade) ReceiveOrder(ctx context.Context, workerID int64) (*model.Order, error) {
	return f.lease.Receive(ctx, workerID)
}

func (f *ControllerFacade) CurrentOrder(ctx context.Context, workerID int64) (*model.Order, error) {
	return f.lease.Current(ctx, workerID)
}

func (f *ControllerFacade) CompleteOrder(ctx context.Context, workerID int64, apk io.Reader) error {
	return f.lease.Complete(ctx, workerID, apk)
}

func (f *ControllerFacade) FailOrder(ctx context.Context, workerID int64, errorText *string) error {
	return f.lease.Fail(ctx, workerID, errorText)
}

func (f *ControllerFacade) NextSourcesOrder(ctx context.Context) (*model.Order, error) {
	return f.sources.Next(ctx)
}

func (f *ControllerFacade) CheckSourcesOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return f.sources.Check(ctx, orderID)
}

func (f *ControllerFacade) CompleteSourcesOrder(ctx context.Context, orderID int64, archive io.Reader) error {
	return f.sources.Complete(ctx, orderID, archive)
}

func (f *ControllerFacade) CreateOrder(ctx context.Context, order model.Order) (*model.Order, int, error) {
	return f.orders.Create(ctx, usecase.NewOrder{
		UserID:      order.UserID,
		Priority:    order.Priority,
		SourcesOnly: order.SourcesOnly,
		UpdateTag:   order.UpdateTag,
		Config:      order.Config,
	})
}

func (f *ControllerFacade) GetOrder(ctx context.Context, id int64) (*model.Order, int, error) {
	return f.orders.Get(ctx, id)
}

func (f *ControllerFacade) UpdateOrder(ctx context.Context, order *model.Order) error {
	return f.orders.Update(ctx, order)
}

func (f *ControllerFacade) ApplyEvent(ctx context.Context, id int64, event lifecycle.Event) (*model.Order, error) {
	return f.orders.ApplyEvent(ctx, id, event)
}

func (f *ControllerFacade) DeleteOrder(ctx context.Context, id int64) error {
	return f.orders.Delete(ctx, id)
}

func (f *ControllerFacade) OpenArtifact(ctx context.Context, id int64) (io.ReadCloser, model.ArtifactKind, error) {
	return f.orders.OpenArtifact(ctx, id)
}

func (f *ControllerFacade) PopErrorLog(ctx context.Context) (*model.ErrorLog, error) {
	return f.stats.PopErrorLog(ctx)
}

func (f *ControllerFacade) UserStats(ctx context.Context, userID int64) (*model.UserBuildStats, error) {
	return f.stats.ForUser(ctx, userID)
}

func (f *ControllerFacade) HealthCheck(ctx context.Context) error {
	return f.health.HealthCheck(ctx)
}
