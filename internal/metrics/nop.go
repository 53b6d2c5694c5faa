package metrics

import "github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"

// NopMetrics discards every measurement.
type NopMetrics struct{}

var _ Recorder = (*NopMetrics)(nil)

func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (*NopMetrics) RecordTransition(_, _ model.OrderStatus) {}

func (*NopMetrics) RecordRemoval(model.OrderStatus) {}

func (*NopMetrics) RecordLease(string) {}

func (*NopMetrics) RecordReport(_, _ string) {}

func (*NopMetrics) RecordRecovered(string, int) {}

func (*NopMetrics) RecordPurged(string, int64) {}

func (*NopMetrics) ObserveRequest(_, _ string, _ int, _ float64) {}
