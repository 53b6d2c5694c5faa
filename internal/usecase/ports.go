package usecase

import (
	"context"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// Notifier publishes order status changes to the front-end.
type Notifier interface {
	Publish(ctx context.Context, event model.StatusEvent) error
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, model.StatusEvent) error { return nil }
