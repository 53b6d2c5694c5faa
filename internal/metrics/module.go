package metrics

import "go.uber.org/fx"

// Module provides a Prometheus collector as both itself and Recorder.
var Module = fx.Provide(
	func() *PrometheusCollector { return NewPrometheus(nil, "") },
	func(p *PrometheusCollector) Recorder { return p },
)
