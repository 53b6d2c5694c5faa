package repository

import (
	"context"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// WorkerRepository describes persistence operations for build workers.
type WorkerRepository interface {
	Create(ctx context.Context, name string, ip *string) (*model.Worker, error)
	GetByID(ctx context.Context, id int64) (*model.Worker, error)
	GetByName(ctx context.Context, name string) (*model.Worker, error)
	List(ctx context.Context) ([]model.Worker, error)
	Touch(ctx context.Context, id int64, at time.Time) error
	Delete(ctx context.Context, id int64) error
}
