package di

import (
	"context"
	"fmt"

	"go.uber.org/fx"
)

// Run starts app, blocks until ctx is cancelled or app is told to shut down, then stops it.
// Start and stop are bounded by the app's own timeouts.
func Run(ctx context.Context, name string, app *fx.App) error {
	startCtx, cancelStart := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}

	select {
	case <-ctx.Done():
	case <-app.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop %s: %w", name, err)
	}
	return nil
}
