package di

import (
	"go.uber.org/fx"

	"github.com/wrwrabbit/apk-customizer-bot/internal/adapter/notify"
	"github.com/wrwrabbit/apk-customizer-bot/internal/app"
	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/logger"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
	"github.com/wrwrabbit/apk-customizer-bot/internal/pkg/auth"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/router"
	"github.com/wrwrabbit/apk-customizer-bot/internal/storage"
	"github.com/wrwrabbit/apk-customizer-bot/internal/usecase"
)

func core() []fx.Option {
	return []fx.Option{
		config.Module,
		logger.Module,
		auth.Module,
		storage.Module,
		metrics.Module,
		notify.Module,
		usecase.Module,
	}
}

// Controller composes the REST controller graph.
func Controller(opts ...fx.Option) fx.Option {
	modules := append(core(), router.Module, app.ControllerModule)
	modules = append(modules, opts...)
	return fx.Options(modules...)
}

// Reconciler composes the reconciliation daemon graph.
func Reconciler(opts ...fx.Option) fx.Option {
	modules := append(core(), app.ReconcilerModule)
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
