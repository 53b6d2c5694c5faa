package sqlite

import (
	"context"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

func (r *statsRepository) Record(ctx context.Context, userIDHash string, successful bool, at time.Time) error {
	const query = `INSERT INTO user_build_stats (user_id_hash, last_build_date, successful_build_count, failed_build_count)
                   VALUES (?, ?, ?, ?)
                   ON CONFLICT(user_id_hash) DO UPDATE SET
                       last_build_date = excluded.last_build_date,
                       successful_build_count = successful_build_count + excluded.successful_build_count,
                       failed_build_count = failed_build_count + excluded.failed_build_count`
	succeeded, failed := 0, 1
	if successful {
		succeeded, failed = 1, 0
	}
	_, err := r.storage.db.ExecContext(ctx, query, userIDHash, toUnix(at), succeeded, failed)
	return err
}

func (r *statsRepository) Get(ctx context.Context, userIDHash string) (*model.UserBuildStats, error) {
	const query = `SELECT user_id_hash, last_build_date, successful_build_count, failed_build_count
                   FROM user_build_stats WHERE user_id_hash=?`
	var (
		s    model.UserBuildStats
		last int64
	)
	err := r.storage.db.QueryRowContext(ctx, query, userIDHash).Scan(&s.UserIDHash, &last, &s.SuccessfulBuildCount, &s.FailedBuildCount)
	if err != nil {
		return nil, notFound(err)
	}
	s.LastBuildDate = fromUnix(last)
	return &s, nil
}

func (r *statsRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.storage.db.ExecContext(ctx, `DELETE FROM user_build_stats WHERE last_build_date < ?`, toUnix(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *errorLogRepository) Add(ctx context.Context, text string) (int64, error) {
	res, err := r.storage.db.ExecContext(ctx, `INSERT INTO error_logs (record_created, text) VALUES (?, ?)`, toUnix(r.storage.now()), text)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *errorLogRepository) Pop(ctx context.Context) (*model.ErrorLog, error) {
	const query = `DELETE FROM error_logs
                   WHERE id = (SELECT id FROM error_logs ORDER BY id LIMIT 1)
                   RETURNING id, record_created, text`
	var (
		entry   model.ErrorLog
		created int64
	)
	if err := r.storage.db.QueryRowContext(ctx, query).Scan(&entry.ID, &created, &entry.Text); err != nil {
		return nil, notFound(err)
	}
	entry.RecordCreated = fromUnix(created)
	return &entry, nil
}
