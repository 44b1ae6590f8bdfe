package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Record store metrics
	StoreOperations *prometheus.CounterVec
	StoreLatency    *prometheus.HistogramVec

	// Upload metrics
	Uploads        *prometheus.CounterVec
	UploadLatency  prometheus.Histogram
	BreakerChanges *prometheus.CounterVec

	// Form metrics
	Lookups *prometheus.CounterVec
	Logins  *prometheus.CounterVec
	Desks   prometheus.Gauge
}

// NewMetrics creates and registers all application metrics on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Total number of record store operations",
		}, []string{"collection", "operation", "status"}),
		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of record store operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"collection", "operation"}),

		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "files_total",
			Help:      "Total number of file uploads by outcome",
		}, []string{"status"}),
		UploadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Time spent uploading a single file",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		BreakerChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes",
		}, []string{"to"}),

		Lookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "visit",
			Name:      "lookups_total",
			Help:      "Patient lookups by OP number, by outcome",
		}, []string{"outcome"}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"result"}),
		Desks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "desks",
			Help:      "Number of live per-session form workspaces",
		}),
	}
}

// ObserveStore records one store call. Safe on a nil receiver.
func (m *Metrics) ObserveStore(collection, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(collection, operation, status).Inc()
	m.StoreLatency.WithLabelValues(collection, operation).Observe(time.Since(start).Seconds())
}

// ObserveUpload records one upload attempt. Safe on a nil receiver.
func (m *Metrics) ObserveUpload(status string, start time.Time) {
	if m == nil {
		return
	}
	m.Uploads.WithLabelValues(status).Inc()
	if !start.IsZero() {
		m.UploadLatency.Observe(time.Since(start).Seconds())
	}
}

// ObserveLookup records the outcome of an OP number lookup. Safe on a nil receiver.
func (m *Metrics) ObserveLookup(outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(outcome).Inc()
}

// ObserveLogin records a login attempt. Safe on a nil receiver.
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

// SetDesks reports the number of live desks. Safe on a nil receiver.
func (m *Metrics) SetDesks(n int) {
	if m == nil {
		return
	}
	m.Desks.Set(float64(n))
}
