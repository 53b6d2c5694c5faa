package repository

import (
	"context"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// StatsRepository stores per-user build statistics.
type StatsRepository interface {
	Record(ctx context.Context, userIDHash string, successful bool, at time.Time) error
	Get(ctx context.Context, userIDHash string) (*model.UserBuildStats, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ErrorLogRepository is the append-only diagnostic sink.
type ErrorLogRepository interface {
	Add(ctx context.Context, text string) (int64, error)
	// Pop removes and returns the oldest entry, or ErrNotFound.
	Pop(ctx context.Context) (*model.ErrorLog, error)
}
