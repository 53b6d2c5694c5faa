package postgres

import (
	"context"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

func (r *statsRepository) Record(ctx context.Context, userIDHash string, successful bool, at time.Time) error {
	const query = `INSERT INTO user_build_stats (user_id_hash, last_build_date, successful_build_count, failed_build_count)
                   VALUES ($1, $2, $3, $4)
                   ON CONFLICT (user_id_hash) DO UPDATE
                   SET last_build_date = EXCLUDED.last_build_date,
                       successful_build_count = user_build_stats.successful_build_count + EXCLUDED.successful_build_count,
                       failed_build_count = user_build_stats.failed_build_count + EXCLUDED.failed_build_count`
	succeeded, failed := 0, 1
	if successful {
		succeeded, failed = 1, 0
	}
	_, err := r.storage.pool.Exec(ctx, query, userIDHash, at, succeeded, failed)
	return err
}

func (r *statsRepository) Get(ctx context.Context, userIDHash string) (*model.UserBuildStats, error) {
	const query = `SELECT user_id_hash, last_build_date, successful_build_count, failed_build_count
                   FROM user_build_stats WHERE user_id_hash=$1`
	var s model.UserBuildStats
	err := r.storage.pool.QueryRow(ctx, query, userIDHash).Scan(&s.UserIDHash, &s.LastBuildDate, &s.SuccessfulBuildCount, &s.FailedBuildCount)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *statsRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.storage.pool.Exec(ctx, `DELETE FROM user_build_stats WHERE last_build_date < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *errorLogRepository) Add(ctx context.Context, text string) (int64, error) {
	var id int64
	if err := r.storage.pool.QueryRow(ctx, `INSERT INTO error_logs (text) VALUES ($1) RETURNING id`, text).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *errorLogRepository) Pop(ctx context.Context) (*model.ErrorLog, error) {
	const query = `DELETE FROM error_logs
                   WHERE id = (SELECT id FROM error_logs ORDER BY id LIMIT 1 FOR UPDATE SKIP LOCKED)
                   RETURNING id, record_created, text`
	var entry model.ErrorLog
	if err := r.storage.pool.QueryRow(ctx, query).Scan(&entry.ID, &entry.RecordCreated, &entry.Text); err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}
