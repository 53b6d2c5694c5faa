package test

import (
	"bytes"
	"context"
	"io"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/lifecycle"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// WorkerFacadeStub provides controllable behaviour for worker endpoints.
type WorkerFacadeStub struct {
	ReceiveFn         func(context.Context, int64) (*model.Order, error)
	CurrentFn         func(context.Context, int64) (*model.Order, error)
	CompleteFn        func(context.Context, int64, io.Reader) error
	FailFn            func(context.Context, int64, *string) error
	NextSourcesFn     func(context.Context) (*model.Order, error)
	CheckSourcesFn    func(context.Context, int64) (*model.Order, error)
	CompleteSourcesFn func(context.Context, int64, io.Reader) error
}

// ReceiveOrder returns no order by default.
func (s WorkerFacadeStub) ReceiveOrder(ctx context.Context, workerID int64) (*model.Order, error) {
	if s.ReceiveFn != nil {
		return s.ReceiveFn(ctx, workerID)
	}
	return nil, nil
}

// CurrentOrder reports no lease by default.
func (s WorkerFacadeStub) CurrentOrder(ctx context.Context, workerID int64) (*model.Order, error) {
	if s.CurrentFn != nil {
		return s.CurrentFn(ctx, workerID)
	}
	return nil, domainErrors.ErrNoLease
}

// CompleteOrder drains the upload by default.
func (s WorkerFacadeStub) CompleteOrder(ctx context.Context, workerID int64, apk io.Reader) error {
	if s.CompleteFn != nil {
		return s.CompleteFn(ctx, workerID, apk)
	}
	_, err := io.Copy(io.Discard, apk)
	return err
}

// FailOrder accepts the report by default.
func (s WorkerFacadeStub) FailOrder(ctx context.Context, workerID int64, errorText *string) error {
	if s.FailFn != nil {
		return s.FailFn(ctx, workerID, errorText)
	}
	return nil
}

// NextSourcesOrder returns no order by default.
func (s WorkerFacadeStub) NextSourcesOrder(ctx context.Context) (*model.Order, error) {
	if s.NextSourcesFn != nil {
		return s.NextSourcesFn(ctx)
	}
	return nil, nil
}

// CheckSourcesOrder reports a missing order by default.
func (s WorkerFacadeStub) CheckSourcesOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	if s.CheckSourcesFn != nil {
		return s.CheckSourcesFn(ctx, orderID)
	}
	return nil, domainErrors.ErrNotFound
}

// CompleteSourcesOrder drains the upload by default.
func (s WorkerFacadeStub) CompleteSourcesOrder(ctx context.Context, orderID int64, archive io.Reader) error {
	if s.CompleteSourcesFn != nil {
		return s.CompleteSourcesFn(ctx, orderID, archive)
	}
	_, err := io.Copy(io.Discard, archive)
	return err
}

// FrontendFacadeStub simulates order management for front-end endpoints.
type FrontendFacadeStub struct {
	CreateFn   func(context.Context, model.Order) (*model.Order, int, error)
	GetFn      func(context.Context, int64) (*model.Order, int, error)
	UpdateFn   func(context.Context, *model.Order) error
	EventFn    func(context.Context, int64, lifecycle.Event) (*model.Order, error)
	DeleteFn   func(context.Context, int64) error
	ArtifactFn func(context.Context, int64) (io.ReadCloser, model.ArtifactKind, error)
	PopFn      func(context.Context) (*model.ErrorLog, error)
	StatsFn    func(context.Context, int64) (*model.UserBuildStats, error)
}

// CreateOrder echoes the order as queued at position 1 by default.
func (s FrontendFacadeStub) CreateOrder(ctx context.Context, order model.Order) (*model.Order, int, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, order)
	}
	order.ID = 1
	order.Status = lifecycle.Initial(order.SourcesOnly)
	return &order, 1, nil
}

// GetOrder returns a queued order by default.
func (s FrontendFacadeStub) GetOrder(ctx context.Context, id int64) (*model.Order, int, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, id)
	}
	return &model.Order{ID: id, Status: model.OrderStatusQueued, Priority: model.DefaultPriority}, 1, nil
}

// UpdateOrder accepts the update by default.
func (s FrontendFacadeStub) UpdateOrder(ctx context.Context, order *model.Order) error {
	if s.UpdateFn != nil {
		return s.UpdateFn(ctx, order)
	}
	return nil
}

// ApplyEvent reports the order as removed by default.
func (s FrontendFacadeStub) ApplyEvent(ctx context.Context, id int64, event lifecycle.Event) (*model.Order, error) {
	if s.EventFn != nil {
		return s.EventFn(ctx, id, event)
	}
	return nil, nil
}

// DeleteOrder accepts deletion by default.
func (s FrontendFacadeStub) DeleteOrder(ctx context.Context, id int64) error {
	if s.DeleteFn != nil {
		return s.DeleteFn(ctx, id)
	}
	return nil
}

// OpenArtifact returns a small package by default.
func (s FrontendFacadeStub) OpenArtifact(ctx context.Context, id int64) (io.ReadCloser, model.ArtifactKind, error) {
	if s.ArtifactFn != nil {
		return s.ArtifactFn(ctx, id)
	}
	return io.NopCloser(bytes.NewReader([]byte("apk"))), model.ArtifactBuild, nil
}

// PopErrorLog reports an empty log by default.
func (s FrontendFacadeStub) PopErrorLog(ctx context.Context) (*model.ErrorLog, error) {
	if s.PopFn != nil {
		return s.PopFn(ctx)
	}
	return nil, domainErrors.ErrNotFound
}

// UserStats reports unknown users by default.
func (s FrontendFacadeStub) UserStats(ctx context.Context, userID int64) (*model.UserBuildStats, error) {
	if s.StatsFn != nil {
		return s.StatsFn(ctx, userID)
	}
	return nil, domainErrors.ErrNotFound
}

// HealthStub reports the configured error.
type HealthStub struct {
	Err error
}

// HealthCheck returns the configured error.
func (s HealthStub) HealthCheck(context.Context) error {
	return s.Err
}

// ControllerFacadeStub aggregates facade dependencies for HTTP layer tests.
type ControllerFacadeStub struct {
	*WorkerAuthStub
	*ErrorSinkStub
	WorkerFacadeStub
	FrontendFacadeStub
	HealthStub
}
