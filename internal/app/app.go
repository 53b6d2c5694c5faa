package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/reconcile"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/handlers"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage"
	"github.com/wrwrabbit/apk-customizer-bot/internal/usecase"
)

// ControllerModule wires the controller facade, the HTTP server and its lifecycle hooks.
var ControllerModule = fx.Options(
	fx.Provide(
		func(s storage.Store) HealthChecker { return s },
		NewControllerFacade,
		func(f *ControllerFacade) handlers.ControllerFacade { return f },
		newHTTPServer,
	),
	fx.Invoke(registerServerLifecycle),
)

// ReconcilerModule wires the reconciliation daemon and its lifecycle hooks.
var ReconcilerModule = fx.Options(
	fx.Provide(newReconcileDaemon),
	fx.Invoke(registerReconcileLifecycle),
)

type serverParams struct {
	fx.In

	Config *config.Config
	Router *gin.Engine
}

func newHTTPServer(p serverParams) *http.Server {
	return &http.Server{
		Addr:    p.Config.RunAddress,
		Handler: p.Router,
	}
}

type daemonParams struct {
	fx.In

	Reconcile *usecase.ReconcileUseCase
	Config    *config.Config
	Logger    *slog.Logger
}

func newReconcileDaemon(p daemonParams) *reconcile.Daemon {
	return reconcile.NewDaemon(p.Reconcile, p.Config.ReconcileInterval, p.Logger)
}

type serverLifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Server     *http.Server
	Config     *config.Config
}

func registerServerLifecycle(p serverLifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting controller", slog.String("addr", p.Server.Addr))
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server terminated", slog.String("error", err.Error()))
					_ = p.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			}
			defer cancel()

			if err := p.Server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			p.Logger.Info("controller stopped")
			return nil
		},
	})
}

type reconcileLifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *slog.Logger
	Daemon    *reconcile.Daemon
}

func registerReconcileLifecycle(p reconcileLifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting reconciler")
			return p.Daemon.Start(ctx)
		},
		OnStop: func(context.Context) error {
			p.Daemon.Stop()
			p.Logger.Info("reconciler stopped")
			return nil
		},
	})
}
