package postgres

import (
	"context"
	"time"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

const workerColumns = `id, name, ip, last_online_date, record_created`

func scanWorker(row rowScanner) (*model.Worker, error) {
	var w model.Worker
	if err := row.Scan(&w.ID, &w.Name, &w.IP, &w.LastOnlineDate, &w.RecordCreated); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *workerRepository) Create(ctx context.Context, name string, ip *string) (*model.Worker, error) {
	const query = `INSERT INTO workers (name, ip) VALUES ($1, $2) RETURNING ` + workerColumns
	w, err := scanWorker(r.storage.pool.QueryRow(ctx, query, name, ip))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domainErrors.ErrAlreadyExists
		}
		return nil, err
	}
	return w, nil
}

func (r *workerRepository) GetByID(ctx context.Context, id int64) (*model.Worker, error) {
	w, err := scanWorker(r.storage.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (r *workerRepository) GetByName(ctx context.Context, name string) (*model.Worker, error) {
	w, err := scanWorker(r.storage.pool.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE name=$1`, name))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (r *workerRepository) List(ctx context.Context) ([]model.Worker, error) {
	rows, err := r.storage.pool.Query(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *workerRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.storage.pool.Exec(ctx, `UPDATE workers SET last_online_date=$1 WHERE id=$2`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *workerRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.storage.pool.Exec(ctx, `DELETE FROM workers WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}
