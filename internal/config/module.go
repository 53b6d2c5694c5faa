package config

import "go.uber.org/fx"

// Module exposes controller and reconciler configuration for fx graphs.
var Module = fx.Provide(Load)
