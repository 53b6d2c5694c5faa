package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
	"github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
)

// StatsUseCase keeps per-user build statistics and the diagnostic error log.
type StatsUseCase struct {
	stats         repository.StatsRepository
	errorLogs     repository.ErrorLogRepository
	hasher        auth.UserHasher
	failedAllowed int
	now           func() time.Time
}

// NewStatsUseCase constructs StatsUseCase.
func NewStatsUseCase(stats repository.StatsRepository, errorLogs repository.ErrorLogRepository, hasher auth.UserHasher, cfg *config.Config) *StatsUseCase {
	return &StatsUseCase{
		stats:         stats,
		errorLogs:     errorLogs,
		hasher:        hasher,
		failedAllowed: cfg.FailedBuildsAllowed,
		now:           time.Now,
	}
}

// RecordBuild counts one finished build for userID.
func (u *StatsUseCase) RecordBuild(ctx context.Context, userID int64, successful bool) error {
	return u.stats.Record(ctx, u.hasher.Hash(userID), successful, u.now())
}

// ForUser returns statistics of userID or ErrNotFound.
func (u *StatsUseCase) ForUser(ctx context.Context, userID int64) (*model.UserBuildStats, error) {
	return u.stats.Get(ctx, u.hasher.Hash(userID))
}

// PriorityFor derives the priority of a new order: every successful build and every failure
// beyond the allowance moves the user one tier back.
func (u *StatsUseCase) PriorityFor(ctx context.Context, userID int64) (int, error) {
	stats, err := u.ForUser(ctx, userID)
	if errors.Is(err, domainErrors.ErrNotFound) {
		return model.DefaultPriority, nil
	}
	if err != nil {
		return 0, err
	}
	return model.DefaultPriority + stats.SuccessfulBuildCount + max(stats.FailedBuildCount-u.failedAllowed, 0), nil
}

// AddErrorLog appends text to the diagnostic sink.
func (u *StatsUseCase) AddErrorLog(ctx context.Context, text string) error {
	_, err := u.errorLogs.Add(ctx, text)
	return err
}

// PopErrorLog removes and returns the oldest diagnostic, or ErrNotFound when empty.
func (u *StatsUseCase) PopErrorLog(ctx context.Context) (*model.ErrorLog, error) {
	return u.errorLogs.Pop(ctx)
}
