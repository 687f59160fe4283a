package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Automation outcomes of one scheduler item.
const (
	OutcomeFired    = "fired"
	OutcomeNotFired = "not_fired"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Recorder owns the process registry. All methods are nil-safe so components
// can run without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	batchDuration  prometheus.Histogram
	automations    *prometheus.CounterVec
	actions        *prometheus.CounterVec
	connectorCalls *prometheus.CounterVec
	insights       *prometheus.CounterVec
}

// New 创建并注册全部指标
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "growzzy",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler batches started.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "growzzy",
			Subsystem: "scheduler",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one scheduler batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		automations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growzzy",
			Subsystem: "scheduler",
			Name:      "automations_total",
			Help:      "Due automations processed, by outcome.",
		}, []string{"outcome"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growzzy",
			Subsystem: "actions",
			Name:      "executions_total",
			Help:      "Dispatched actions by kind and result.",
		}, []string{"kind", "result"}),
		connectorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growzzy",
			Subsystem: "connector",
			Name:      "calls_total",
			Help:      "Platform connector calls by platform, operation and outcome.",
		}, []string{"platform", "operation", "outcome"}),
		insights: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growzzy",
			Subsystem: "optimization",
			Name:      "insights_total",
			Help:      "Insight rule hits by rule.",
		}, []string{"rule"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.ticks, r.batchDuration, r.automations, r.actions, r.connectorCalls, r.insights,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler Prometheus exposition handler.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveBatch(d time.Duration) {
	if r == nil {
		return
	}
	r.ticks.Inc()
	r.batchDuration.Observe(d.Seconds())
}

func (r *Recorder) AutomationOutcome(outcome string) {
	if r == nil {
		return
	}
	r.automations.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ActionResult(kind string, success bool) {
	if r == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	r.actions.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) ConnectorCall(platform, operation, outcome string) {
	if r == nil {
		return
	}
	r.connectorCalls.WithLabelValues(platform, operation, outcome).Inc()
}

func (r *Recorder) InsightHit(rule string) {
	if r == nil {
		return
	}
	r.insights.WithLabelValues(rule).Inc()
}
