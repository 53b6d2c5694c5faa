// Package reconcile runs the periodic repair loop next to the controller.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reconciler is the subset of reconciliation use cases the daemon drives.
type Reconciler interface {
	RecoverStuck(ctx context.Context) (int, error)
	Pass(ctx context.Context) error
}

// Daemon recovers stuck orders once at start and then runs a reconciliation pass every interval.
type Daemon struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewDaemon constructs the reconciliation daemon.
func NewDaemon(reconciler Reconciler, interval time.Duration, logger *slog.Logger) *Daemon {
	if interval <= 0 {
		interval = time.Second
	}
	return &Daemon{reconciler: reconciler, interval: interval, logger: logger}
}

// Start performs stuck-order recovery synchronously and launches the periodic loop. A recovery
// failure aborts the start.
func (d *Daemon) Start(ctx context.Context) error {
	n, err := d.reconciler.RecoverStuck(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("stuck orders recovered", slog.Int("count", n))

	d.mu.Lock()
	defer d.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel

	d.wg.Add(1)
	go d.loop(runCtx)
	return nil
}

// Stop cancels the loop and waits for the running pass to finish.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Daemon) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.reconciler.Pass(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("reconciliation pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
