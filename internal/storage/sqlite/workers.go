package sqlite

import (
	"context"
	"database/sql"
	"time"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

const workerColumns = `id, name, ip, last_online_date, record_created`

func scanWorker(row rowScanner) (*model.Worker, error) {
	var (
		w               model.Worker
		ip              sql.NullString
		online, created int64
	)
	if err := row.Scan(&w.ID, &w.Name, &ip, &online, &created); err != nil {
		return nil, err
	}
	if ip.Valid {
		addr := ip.String
		w.IP = &addr
	}
	w.LastOnlineDate = fromUnix(online)
	w.RecordCreated = fromUnix(created)
	return &w, nil
}

func affectedOne(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *workerRepository) Create(ctx context.Context, name string, ip *string) (*model.Worker, error) {
	const query = `INSERT INTO workers (name, ip, last_online_date, record_created) VALUES (?, ?, 0, ?) RETURNING ` + workerColumns
	w, err := scanWorker(r.storage.db.QueryRowContext(ctx, query, name, ip, toUnix(r.storage.now())))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domainErrors.ErrAlreadyExists
		}
		return nil, err
	}
	return w, nil
}

func (r *workerRepository) GetByID(ctx context.Context, id int64) (*model.Worker, error) {
	w, err := scanWorker(r.storage.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id=?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (r *workerRepository) GetByName(ctx context.Context, name string) (*model.Worker, error) {
	w, err := scanWorker(r.storage.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE name=?`, name))
	if err != nil {
		return nil, notFound(err)
	}
	return w, nil
}

func (r *workerRepository) List(ctx context.Context) ([]model.Worker, error) {
	rows, err := r.storage.db.QueryContext(ctx, `SELECT `+workerColumns+` FROM workers ORDER BY id`)
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
	return result, rows.Err()
}

func (r *workerRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	res, err := r.storage.db.ExecContext(ctx, `UPDATE workers SET last_online_date=? WHERE id=?`, toUnix(at), id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}

func (r *workerRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.storage.db.ExecContext(ctx, `DELETE FROM workers WHERE id=?`, id)
	if err != nil {
		return err
	}
	return affectedOne(res)
}
