package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reactq"

// Registry holds the engine metrics.
type Registry struct {
	registry *prometheus.Registry

	CheckpointDuration *prometheus.HistogramVec
	RecoveryDuration   *prometheus.HistogramVec
	ItemsWritten       *prometheus.CounterVec
	ItemsDeleted       *prometheus.CounterVec
	ItemsRead          *prometheus.CounterVec
	BytesWritten       prometheus.Counter
	BytesRead          prometheus.Counter
	Failures           *prometheus.CounterVec
	Entities           *prometheus.GaugeVec
}

// NewRegistry creates a registry with all engine metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		CheckpointDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkpoint_duration_seconds",
			Help:      "Duration of checkpoint sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"kind", "result"}),
		RecoveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recovery_duration_seconds",
			Help:      "Duration of recovery sessions.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"result"}),
		ItemsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_items_written_total",
			Help:      "Items written by checkpoints, by category.",
		}, []string{"category"}),
		ItemsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_items_deleted_total",
			Help:      "Items deleted by differential checkpoints, by category.",
		}, []string{"category"}),
		ItemsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_items_read_total",
			Help:      "Items read during recovery, by category.",
		}, []string{"category"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_bytes_written_total",
			Help:      "Bytes of item streams written.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovery_bytes_read_total",
			Help:      "Bytes of item streams read.",
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed sessions, by phase (checkpoint, recover, unload).",
		}, []string{"phase"}),
		Entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Defined entities, by kind.",
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		r.CheckpointDuration,
		r.RecoveryDuration,
		r.ItemsWritten,
		r.ItemsDeleted,
		r.ItemsRead,
		r.BytesWritten,
		r.BytesRead,
		r.Failures,
		r.Entities,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Registerer exposes the underlying registry for components registering
// their own collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the underlying registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler returns an HTTP handler serving the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveCheckpoint records a finished checkpoint session.
func (r *Registry) ObserveCheckpoint(kind string, start time.Time, err error) {
	r.CheckpointDuration.WithLabelValues(kind, result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		r.Failures.WithLabelValues("checkpoint").Inc()
	}
}

// ObserveRecovery records a finished recovery session.
func (r *Registry) ObserveRecovery(start time.Time, err error) {
	r.RecoveryDuration.WithLabelValues(result(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		r.Failures.WithLabelValues("recover").Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
