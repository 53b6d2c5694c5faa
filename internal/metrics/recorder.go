// Package metrics records order lifecycle and HTTP metrics.
package metrics

import "github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"

// Recorder is the instrumentation surface used by use cases, the reconciler and HTTP middleware.
type Recorder interface {
	RecordTransition(from, to model.OrderStatus)
	RecordRemoval(from model.OrderStatus)
	RecordLease(result string)
	RecordReport(flow, result string)
	RecordRecovered(reason string, count int)
	RecordPurged(kind string, count int64)
	ObserveRequest(method, route string, status int, seconds float64)
}

// Lease results.
const (
	LeaseGranted = "granted"
	LeaseEmpty   = "empty"
	LeaseHeld    = "held"
)
