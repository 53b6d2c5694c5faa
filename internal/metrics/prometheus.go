package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wrwrabbit/apk-customizer-bot/internal/domain/model"
)

// PrometheusCollector implements Recorder backed by Prometheus.
type PrometheusCollector struct {
	reg       *prometheus.Registry
	namespace string
	once      sync.Once

	transitions *prometheus.CounterVec
	removals    *prometheus.CounterVec
	leases      *prometheus.CounterVec
	reports     *prometheus.CounterVec
	recovered   *prometheus.CounterVec
	purged      *prometheus.CounterVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

var _ Recorder = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector registered on reg. A nil registry gets a private one.
func NewPrometheus(reg *prometheus.Registry, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = "apkbuild"
	}

	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transitions by source and target status.",
		}, []string{"from", "to"})
		p.removals = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "orders",
			Name:      "removed_total",
			Help:      "Orders removed from the store by last status.",
		}, []string{"from"})
		p.leases = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "queue",
			Name:      "lease_requests_total",
			Help:      "Lease requests by result (granted, empty, held).",
		}, []string{"result"})
		p.reports = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "queue",
			Name:      "reports_total",
			Help:      "Worker reports by flow (build, sources) and result.",
		}, []string{"flow", "result"})
		p.recovered = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reconcile",
			Name:      "recovered_orders_total",
			Help:      "Orders sent back to the queue by reason (stuck, offline).",
		}, []string{"reason"})
		p.purged = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "reconcile",
			Name:      "purged_total",
			Help:      "Rows deleted by retention (stats, orders).",
		}, []string{"kind"})
		p.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "code"})
		p.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"})

		p.reg.MustRegister(p.transitions)
		p.reg.MustRegister(p.removals)
		p.reg.MustRegister(p.leases)
		p.reg.MustRegister(p.reports)
		p.reg.MustRegister(p.recovered)
		p.reg.MustRegister(p.purged)
		p.reg.MustRegister(p.requests)
		p.reg.MustRegister(p.latency)
	})
}

func (p *PrometheusCollector) RecordTransition(from, to model.OrderStatus) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (p *PrometheusCollector) RecordRemoval(from model.OrderStatus) {
	p.ensureRegistered()
	p.removals.WithLabelValues(string(from)).Inc()
}

func (p *PrometheusCollector) RecordLease(result string) {
	p.ensureRegistered()
	p.leases.WithLabelValues(result).Inc()
}

func (p *PrometheusCollector) RecordReport(flow, result string) {
	p.ensureRegistered()
	p.reports.WithLabelValues(flow, result).Inc()
}

func (p *PrometheusCollector) RecordRecovered(reason string, count int) {
	if count <= 0 {
		return
	}
	p.ensureRegistered()
	p.recovered.WithLabelValues(reason).Add(float64(count))
}

func (p *PrometheusCollector) RecordPurged(kind string, count int64) {
	if count <= 0 {
		return
	}
	p.ensureRegistered()
	p.purged.WithLabelValues(kind).Add(float64(count))
}

func (p *PrometheusCollector) ObserveRequest(method, route string, status int, seconds float64) {
	p.ensureRegistered()
	if route == "" {
		route = "unmatched"
	}
	p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.latency.WithLabelValues(method, route).Observe(seconds)
}

// Handler exposes the registry in the Prometheus text format.
func (p *PrometheusCollector) Handler() http.Handler {
	p.ensureRegistered()
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}
