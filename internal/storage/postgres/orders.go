package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

const orderColumns = `id, user_id, status, priority, record_created, updated_at, worker_id, build_attempts, sources_only, update_tag, configuration`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o      model.Order
		config []byte
	)
	if err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Priority, &o.RecordCreated, &o.UpdatedAt,
		&o.WorkerID, &o.BuildAttempts, &o.SourcesOnly, &o.UpdateTag, &config); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &o.Config); err != nil {
		return nil, fmt.Errorf("decode configuration of order %d: %w", o.ID, err)
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
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

func statusArgs(statuses []model.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) (*model.Order, error) {
	config, err := json.Marshal(order.Config)
	if err != nil {
		return nil, fmt.Errorf("encode configuration: %w", err)
	}
	const query = `INSERT INTO orders (user_id, status, priority, sources_only, update_tag, configuration)
                   VALUES ($1, $2, $3, $4, $5, $6)
                   RETURNING id, record_created, updated_at`
	created := *order
	err = r.storage.pool.QueryRow(ctx, query, order.UserID, order.Status, order.Priority, order.SourcesOnly, order.UpdateTag, config).
		Scan(&created.ID, &created.RecordCreated, &created.UpdatedAt)
	if err != nil {
		return nil, err
	}
	created.WorkerID = nil
	created.BuildAttempts = 0
	return &created, nil
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	o, err := scanOrder(r.storage.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (r *orderRepository) GetByWorker(ctx context.Context, workerID int64) (*model.Order, error) {
	o, err := scanOrder(r.storage.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE worker_id=$1`, workerID))
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
	const query = `UPDATE orders SET priority=$1, update_tag=$2, configuration=$3, updated_at=NOW()
                   WHERE id=$4 AND worker_id IS NULL`
	tag, err := r.storage.pool.Exec(ctx, query, order.Priority, order.UpdateTag, config, order.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, order.ID); err != nil {
			return err
		}
		return domainErrors.ErrStateConflict
	}
	return nil
}

// changeStatusQuery renders a compare-and-set update for change.
func changeStatusQuery(change model.StatusChange) (string, []any) {
	set := []string{"status=$1", "updated_at=NOW()"}
	if change.ReleaseWorker {
		set = append(set, "worker_id=NULL")
	}
	if change.CountAttempt {
		set = append(set, "build_attempts=build_attempts+1")
	}
	if change.ResetQueueTime {
		set = append(set, "record_created=NOW()")
	}

	args := []any{change.To, change.OrderID, change.From}
	where := "id=$2 AND status=$3"
	if change.WorkerID != nil {
		args = append(args, *change.WorkerID)
		where += " AND worker_id=$" + strconv.Itoa(len(args))
	}
	return "UPDATE orders SET " + strings.Join(set, ", ") + " WHERE " + where, args
}

func (r *orderRepository) ChangeStatus(ctx context.Context, change model.StatusChange) error {
	query, args := changeStatusQuery(change)
	tag, err := r.storage.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrStateConflict
	}
	return nil
}

func (r *orderRepository) ListByStatus(ctx context.Context, statuses ...model.OrderStatus) ([]model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE status = ANY($1)
                   ORDER BY priority, record_created, id`
	rows, err := r.storage.pool.Query(ctx, query, statusArgs(statuses))
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) ListUpdatedBefore(ctx context.Context, before time.Time, statuses ...model.OrderStatus) ([]model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE status = ANY($1) AND updated_at < $2
                   ORDER BY updated_at, id`
	rows, err := r.storage.pool.Query(ctx, query, statusArgs(statuses), before)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) QueuePosition(ctx context.Context, order *model.Order) (int, error) {
	const query = `SELECT COUNT(*) FROM orders
                   WHERE status=$1 AND (priority < $2 OR (priority = $2 AND (record_created < $3 OR (record_created = $3 AND id < $4))))`
	var ahead int64
	if err := r.storage.pool.QueryRow(ctx, query, order.Status, order.Priority, order.RecordCreated, order.ID).Scan(&ahead); err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

func (r *orderRepository) LeaseNext(ctx context.Context, workerID int64, leased model.OrderStatus) (*model.Order, error) {
	const heldQuery = `SELECT id FROM orders WHERE worker_id=$1 FOR UPDATE`
	const leaseQuery = `UPDATE orders SET status=$1, worker_id=$2, updated_at=NOW()
                        WHERE id = (
                            SELECT id FROM orders
                            WHERE status=$3 AND sources_only=FALSE
                            ORDER BY priority, record_created, id
                            LIMIT 1
                            FOR UPDATE SKIP LOCKED
                        )
                        RETURNING ` + orderColumns

	var order *model.Order
	err := r.storage.WithinTransaction(ctx, func(tx pgx.Tx) error {
		var held int64
		err := tx.QueryRow(ctx, heldQuery, workerID).Scan(&held)
		switch {
		case err == nil:
			return domainErrors.ErrLeaseHeld
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		o, err := scanOrder(tx.QueryRow(ctx, leaseQuery, leased, workerID, model.OrderStatusQueued))
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
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE status=$1 AND sources_only=TRUE
                   ORDER BY priority, record_created, id
                   LIMIT 1`
	o, err := scanOrder(r.storage.pool.QueryRow(ctx, query, model.OrderStatusGetSourcesQueued))
	if err != nil {
		return nil, notFound(err)
	}
	return o, nil
}

func (r *orderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.storage.pool.Exec(ctx, `DELETE FROM orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}
