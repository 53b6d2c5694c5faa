package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

const orderColumns = `id, user_id, status, priority, record_created, updated_at, worker_id, build_attempts, sources_only, update_tag, configuration`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o                model.Order
		created, updated int64
		workerID         sql.NullInt64
		updateTag        sql.NullString
		config           string
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Priority, &created, &updated,
		&workerID, &o.BuildAttempts, &o.SourcesOnly, &updateTag, &config); err != nil {
		return nil, err
	}
	o.RecordCreated = fromUnix(created)
	o.UpdatedAt = fromUnix(updated)
	if workerID.Valid {
		id := workerID.Int64
		o.WorkerID = &id
	}
	if updateTag.Valid {
		tag := updateTag.String
		o.UpdateTag = &tag
	}
	if err := json.Unmarshal([]byte(config), &o.Config); err != nil {
		return nil, fmt.Errorf("decode configuration of order %d: %w", o.ID, err)
	}
	return &o, nil
}

func collectOrders(rows *sql.Rows) ([]model.Order, error) {
	defer rows.Close()

	var result []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// statusFilter renders "status IN (?, ...)" for the given statuses.
func statusFilter(statuses []model.OrderStatus) (string, []any) {
	if len(statuses) == 0 {
		return "1=0", nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return "status IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ") + ")", args
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	config, err := json.Marshal(order.Config)
	if err != nil {
		return nil, fmt.Errorf("encode configuration: %w", err)
	}
	now := r.storage.now()
	const query = `INSERT INTO orders (user_id, status, priority, record_created, updated_at, sources_only, update_tag, configuration)
                   VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.storage.db.ExecContext(ctx, query, order.UserID, string(order.Status), order.Priority,
		toUnix(now), toUnix(now), order.SourcesOnly, order.UpdateTag, string(config))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	created := *order
	created.ID = id
	created.RecordCreated = fromUnix(toUnix(now))
	created.UpdatedAt = created.RecordCreated
	created.WorkerID = nil
	created.BuildAttempts = 0
	return &created, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.storage.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (r *orderRepository) GetByWorker(ctx context.Context, workerID int64) (*model.Order, error) {
	o, err := scanOrder(r.storage.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE worker_id=?`, workerID))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (r *orderRepository) Update(ctx context.Context, order *model.Order) error {
	config, err := json.Marshal(order.Config)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	const query = `UPDATE orders SET priority=?, update_tag=?, configuration=?, updated_at=?
                   WHERE id=? AND worker_id IS NULL`
	res, err := r.storage.db.ExecContext(ctx, query, order.Priority, order.UpdateTag, string(config), toUnix(r.storage.now()), order.ID)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		if _, err := r.GetByID(ctx, order.ID); err != nil {
			return err
		}
		return domainErrors.ErrStateConflict
	}
	return nil
}

func (r *orderRepository) ChangeStatus(ctx context.Context, change model.StatusChange) error {
	now := toUnix(r.storage.now())
	set := []string{"status=?", "updated_at=?"}
	args := []any{string(change.To), now}
	if change.ReleaseWorker {
		set = append(set, "worker_id=NULL")
	}
	if change.CountAttempt {
		set = append(set, "build_attempts=build_attempts+1")
	}
	if change.ResetQueueTime {
		set = append(set, "record_created=?")
		args = append(args, now)
	}
	where := "id=? AND status=?"
	args = append(args, change.OrderID, string(change.From))
	if change.WorkerID != nil {
		where += " AND worker_id=?"
		args = append(args, *change.WorkerID)
	}

	res, err := r.storage.db.ExecContext(ctx, "UPDATE orders SET "+strings.Join(set, ", ")+" WHERE "+where, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domainErrors.ErrStateConflict
	}
	return nil
}

func (r *orderRepository) ListByStatus(ctx context.Context, statuses ...model.OrderStatus) ([]model.Order, error) {
	filter, args := statusFilter(statuses)
	rows, err := r.storage.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+filter+` ORDER BY priority, record_created, id`, args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) ListUpdatedBefore(ctx context.Context, before time.Time, statuses ...model.OrderStatus) ([]model.Order, error) {
	filter, args := statusFilter(statuses)
	args = append(args, toUnix(before))
	rows, err := r.storage.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+filter+` AND updated_at < ? ORDER BY updated_at, id`, args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) QueuePosition(ctx context.Context, order *model.Order) (int, error) {
	const query = `SELECT COUNT(*) FROM orders
                   WHERE status=? AND (priority < ? OR (priority = ? AND (record_created < ? OR (record_created = ? AND id < ?))))`
	created := toUnix(order.RecordCreated)
	var ahead int
	err := r.storage.db.QueryRowContext(ctx, query, string(order.Status), order.Priority, order.Priority, created, created, order.ID).Scan(&ahead)
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

func (r *orderRepository) LeaseNext(ctx context.Context, workerID int64, leased model.OrderStatus) (*model.Order, error) {
	const leaseQuery = `UPDATE orders SET status=?, worker_id=?, updated_at=?
                        WHERE id = (
                            SELECT id FROM orders
                            WHERE status=? AND sources_only=0
                            ORDER BY priority, record_created, id
                            LIMIT 1
                        )
                        RETURNING ` + orderColumns

	var order *model.Order
	err := r.storage.WithinTransaction(ctx, func(tx *sql.Tx) error {
		var held int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM orders WHERE worker_id=?`, workerID).Scan(&held)
		switch {
		case err == nil:
			return domainErrors.ErrLeaseHeld
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		o, err := scanOrder(tx.QueryRowContext(ctx, leaseQuery, string(leased), workerID, toUnix(r.storage.now()), string(model.OrderStatusQueued)))
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domainErrors.ErrLeaseHeld
		}
		return nil, notFound(err)
	}
	return order, nil
}

func (r *orderRepository) NextSourcesOnly(ctx context.Context) (*model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE status=? AND sources_only=1
                   ORDER BY priority, record_created, id
                   LIMIT 1`
	o, err := scanOrder(r.storage.db.QueryRowContext(ctx, query, string(model.OrderStatusGetSourcesQueued)))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.storage.db.ExecContext(ctx, `DELETE FROM orders WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}
