// Package sqlite implements the domain repositories on an embedded SQLite
// database. It is meant for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	domainErrors "github.com/wrwrabbit/apk-customizer-bot/internal/domain/errors"
	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/repository"
)

// Storage acts as repository facade backed by SQLite.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

type orderRepository struct {
	storage *Storage
}

type workerRepository struct {
	storage *Storage
}

type statsRepository struct {
	storage *Storage
}

type errorLogRepository struct {
	storage *Storage
}

var _ repository.Factory = (*Storage)(nil)

// New opens (or creates) the database at path and applies the schema.
func New(ctx context.Context, path string, logger *slog.Logger) (*Storage, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	// journal_mode is not supported for in-memory databases.
	_, _ = db.ExecContext(ctx, `PRAGMA journal_mode=WAL`)
	for _, pragma := range []string{`PRAGMA busy_timeout=5000`, `PRAGMA foreign_keys=ON`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	storage := &Storage{db: db, logger: logger, now: time.Now}
	if err := storage.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Debug("sqlite schema ready", slog.String("path", path))

	return storage, nil
}

// Close releases database resources.
func (s *Storage) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Storage) Orders() repository.OrderRepository {
	return &orderRepository{storage: s}
}

func (s *Storage) Workers() repository.WorkerRepository {
	return &workerRepository{storage: s}
}

func (s *Storage) Stats() repository.StatsRepository {
	return &statsRepository{storage: s}
}

func (s *Storage) ErrorLogs() repository.ErrorLogRepository {
	return &errorLogRepository{storage: s}
}

// HealthCheck verifies database connectivity.
func (s *Storage) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Storage) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS workers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		ip TEXT,
		last_online_date INTEGER NOT NULL DEFAULT 0,
		record_created INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 1 CHECK (priority >= 1),
		record_created INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		worker_id INTEGER UNIQUE REFERENCES workers(id) ON DELETE SET NULL,
		build_attempts INTEGER NOT NULL DEFAULT 0,
		sources_only INTEGER NOT NULL DEFAULT 0,
		update_tag TEXT,
		configuration TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_queue ON orders(status, priority, record_created);
	CREATE TABLE IF NOT EXISTS user_build_stats (
		user_id_hash TEXT PRIMARY KEY,
		last_build_date INTEGER NOT NULL,
		successful_build_count INTEGER NOT NULL DEFAULT 0,
		failed_build_count INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_user_build_stats_date ON user_build_stats(last_build_date);
	CREATE TABLE IF NOT EXISTS error_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_created INTEGER NOT NULL,
		text TEXT NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// WithinTransaction executes function inside transaction boundary.
func (s *Storage) WithinTransaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(v int64) time.Time {
	return time.Unix(0, v).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domainErrors.ErrNotFound
	}
	return err
}
