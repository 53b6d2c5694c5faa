package notify

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/usecase"
)

// Module provides the status event notifier configured by NATS_URL.
var Module = fx.Provide(newNotifier)

type notifierParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Logger    *slog.Logger
}

func newNotifier(p notifierParams) (usecase.Notifier, error) {
	if p.Config.NATSURL == "" {
		p.Logger.Info("status events disabled: NATS_URL is empty")
		return Nop{}, nil
	}
	n, err := Connect(p.Config.NATSURL, p.Config.NATSSubjectPrefix, p.Logger)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return n.Close() },
	})
	return n, nil
}
