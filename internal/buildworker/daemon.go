package buildworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/dto"
)

// Controller is the subset of the controller API a worker calls.
type Controller interface {
	KeepAlive(ctx context.Context) error
	ReceiveOrder(ctx context.Context) (*dto.OrderPayload, error)
	CompleteOrder(ctx context.Context, artifactPath string) error
	FailOrder(ctx context.Context, text string) error
	ReceiveSourcesOrder(ctx context.Context) (*dto.OrderPayload, error)
	CompleteSourcesOrder(ctx context.Context, orderID int64, archivePath string) error
}

// Builder executes the external steps of one order.
type Builder interface {
	Prepare(order *dto.OrderPayload) (string, error)
	Checkout(ctx context.Context, dir string) error
	Build(ctx context.Context, dir string) (string, error)
	ArchiveSources(ctx context.Context, dir string) (string, error)
	Remove(dir string) error
}

// Options configure the daemon loop.
type Options struct {
	CheckInterval time.Duration
	SourcesOnly   bool
}

type lane string

const (
	laneBuild   lane = "build"
	laneSources lane = "sources"
)

// Daemon polls the controller, runs at most one binary build and one sources export at a
// time and reports their outcome.
type Daemon struct {
	controller     Controller
	builder        Builder
	interval       time.Duration
	sourcesEnabled bool
	logger         *slog.Logger

	mu    sync.Mutex
	slots map[lane]*dto.OrderPayload

	// critical brackets checkout and final reports; halted is guarded by it.
	critical sync.Mutex
	halted   bool

	draining atomic.Bool
	wg       sync.WaitGroup
}

// NewDaemon creates a daemon.
func NewDaemon(controller Controller, builder Builder, opts Options, logger *slog.Logger) *Daemon {
	interval := opts.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Daemon{
		controller:     controller,
		builder:        builder,
		interval:       interval,
		sourcesEnabled: opts.SourcesOnly,
		logger:         logger,
		slots:          make(map[lane]*dto.OrderPayload),
	}
}

// Drain stops leasing new orders. Run returns once the current ones are done.
func (d *Daemon) Drain() {
	if !d.draining.Swap(true) {
		d.logger.Info("draining, the worker stops after the current builds")
	}
}

// Run executes the poll loop. When ctx is cancelled it waits for any critical section in
// progress, marks the daemon halted and returns without waiting for builds.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("build worker started", slog.Duration("interval", d.interval), slog.Bool("sources_only", d.sourcesEnabled))
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.tick(ctx)

		if d.draining.Load() && d.idle() {
			d.wg.Wait()
			d.logger.Info("drained, build worker stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			d.halt()
			d.logger.Info("build worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (d *Daemon) halt() {
	d.critical.Lock()
	d.halted = true
	d.critical.Unlock()
}

// inCritical runs fn under the critical section and reports whether it ran.
func (d *Daemon) inCritical(fn func()) bool {
	d.critical.Lock()
	defer d.critical.Unlock()
	if d.halted {
		return false
	}
	fn()
	return true
}

func (d *Daemon) idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots) == 0
}

func (d *Daemon) tick(ctx context.Context) {
	if err := d.controller.KeepAlive(ctx); err != nil {
		if ctx.Err() == nil {
			d.logger.Error("heartbeat failed", slog.Any("error", err))
		}
		return
	}
	if d.draining.Load() {
		return
	}

	d.lease(ctx, laneBuild, d.controller.ReceiveOrder)
	if d.sourcesEnabled {
		d.lease(ctx, laneSources, d.controller.ReceiveSourcesOrder)
	}
}

func (d *Daemon) lease(ctx context.Context, l lane, receive func(context.Context) (*dto.OrderPayload, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.slots[l] != nil {
		return
	}

	order, err := receive(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Error("lease failed", slog.String("lane", string(l)), slog.Any("error", err))
		}
		return
	}
	if order == nil {
		return
	}

	d.slots[l] = order
	d.wg.Add(1)
	// Builds outlive the poll loop's context.
	go d.process(context.WithoutCancel(ctx), l, order)
}

func (d *Daemon) release(l lane) {
	d.mu.Lock()
	delete(d.slots, l)
	d.mu.Unlock()
}

func (d *Daemon) process(ctx context.Context, l lane, order *dto.OrderPayload) {
	defer d.wg.Done()
	defer d.release(l)

	logger := d.logger.With(slog.Int64("order_id", order.ID), slog.String("lane", string(l)))
	logger.Info("starting build")

	dir, err := d.builder.Prepare(order)
	if err != nil {
		d.reportFailure(ctx, logger, order, err)
		return
	}
	defer func() {
		if err := d.builder.Remove(dir); err != nil {
			logger.Warn("failed to remove order dir", slog.Any("error", err))
		}
	}()

	var stepErr error
	if !d.inCritical(func() { stepErr = d.builder.Checkout(ctx, dir) }) {
		logger.Info("worker halted before checkout")
		return
	}
	if stepErr != nil {
		d.reportFailure(ctx, logger, order, stepErr)
		return
	}

	var result string
	if order.SourcesOnly {
		result, err = d.builder.ArchiveSources(ctx, dir)
	} else {
		result, err = d.builder.Build(ctx, dir)
	}
	if err != nil {
		d.reportFailure(ctx, logger, order, err)
		return
	}
	d.reportSuccess(ctx, logger, order, result)
}

func (d *Daemon) reportSuccess(ctx context.Context, logger *slog.Logger, order *dto.OrderPayload, result string) {
	var err error
	sent := d.inCritical(func() {
		if order.SourcesOnly {
			err = d.controller.CompleteSourcesOrder(ctx, order.ID, result)
			return
		}
		err = d.controller.CompleteOrder(ctx, result)
	})
	switch {
	case !sent:
		logger.Info("worker halted, result not reported")
	case err != nil:
		logger.Error("failed to report result", slog.Any("error", err))
	default:
		logger.Info("build successful")
	}
}

// reportFailure sends the diagnostic of a failed binary build. Sources orders hold no lease, so
// their failures are only logged and the order is retried on a later poll.
func (d *Daemon) reportFailure(ctx context.Context, logger *slog.Logger, order *dto.OrderPayload, cause error) {
	text := Diagnostic(cause)
	logger.Error("build failed", slog.String("error_text", text))
	if order.SourcesOnly {
		return
	}

	var err error
	if !d.inCritical(func() { err = d.controller.FailOrder(ctx, text) }) {
		logger.Info("worker halted, failure not reported")
		return
	}
	if err != nil {
		logger.Error("failed to report failure", slog.Any("error", fmt.Errorf("order %d: %w", order.ID, err)))
	}
}
