package handlers

import (
	"context"
	"io"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/middleware"
)

// WorkerFacade describes the leasing protocol used by build workers.
type WorkerFacade interface {
	ReceiveOrder(ctx context.Context, workerID int64) (*model.Order, error)
	CurrentOrder(ctx context.Context, workerID int64) (*model.Order, error)
	CompleteOrder(ctx context.Context, workerID int64, apk io.Reader) error
	FailOrder(ctx context.Context, workerID int64, errorText *string) error
	NextSourcesOrder(ctx context.Context) (*model.Order, error)
	CheckSourcesOrder(ctx context.Context, orderID int64) (*model.Order, error)
	CompleteSourcesOrder(ctx context.Context, orderID int64, archive io.Reader) error
}

// FrontendFacade describes order management used by the chat front-end.
type FrontendFacade interface {
	CreateOrder(ctx context.Context, order model.Order) (*model.Order, int, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, int, error)
	UpdateOrder(ctx context.Context, order *model.Order) error
	ApplyEvent(ctx context.Context, id int64, event lifecycle.Event) (*model.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	OpenArtifact(ctx context.Context, id int64) (io.ReadCloser, model.ArtifactKind, error)
	PopErrorLog(ctx context.Context) (*model.ErrorLog, error)
	UserStats(ctx context.Context, userID int64) (*model.UserBuildStats, error)
}

// HealthChecker reports store availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ControllerFacade aggregates the full set of operations used across handlers and middleware.
type ControllerFacade interface {
	middleware.WorkerAuthenticator
	middleware.ErrorSink
	WorkerFacade
	FrontendFacade
	HealthChecker
}
