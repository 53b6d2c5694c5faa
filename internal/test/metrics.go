package test

import (
	"fmt"
	"sync"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
)

// RecorderStub counts recorded samples by a "kind:labels" key.
type RecorderStub struct {
	mu     sync.Mutex
	counts map[string]float64
}

func (r *RecorderStub) add(key string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]float64)
	}
	r.counts[key] += v
}

// Count returns the accumulated value for key, e.g. "lease:granted" or "recovered:offline".
func (r *RecorderStub) Count(key string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func (r *RecorderStub) RecordTransition(from, to model.OrderStatus) {
	r.add(fmt.Sprintf("transition:%s>%s", from, to), 1)
}

func (r *RecorderStub) RecordRemoval(from model.OrderStatus) {
	r.add("removal:"+string(from), 1)
}

func (r *RecorderStub) RecordLease(result string) {
	r.add("lease:"+result, 1)
}

func (r *RecorderStub) RecordReport(flow, result string) {
	r.add("report:"+flow+":"+result, 1)
}

func (r *RecorderStub) RecordRecovered(reason string, count int) {
	r.add("recovered:"+reason, float64(count))
}

func (r *RecorderStub) RecordPurged(kind string, count int64) {
	r.add("purged:"+kind, float64(count))
}

func (r *RecorderStub) ObserveRequest(method, route string, status int, _ float64) {
	r.add(fmt.Sprintf("request:%s %s %d", method, route, status), 1)
}

var _ metrics.Recorder = (*RecorderStub)(nil)
