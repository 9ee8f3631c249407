// Package metrics exposes Prometheus collectors for the server's
// process-level health: worker counts, live connections, and requests
// served. It is ambient observability, not part of the application
// contract — applications never see these.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagi"

// Registry collects every gauge/counter the server publishes. One
// Registry is created per process (a worker's registry is separate from
// the parent supervisor's, since they are different processes).
type Registry struct {
	reg *prometheus.Registry

	WorkersAlive      prometheus.Gauge
	WorkerRespawns    prometheus.Counter
	ConnectionsOpen   prometheus.Gauge
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	BlockingPoolCalls *prometheus.CounterVec
}

// New builds a Registry with all collectors registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		WorkersAlive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "workers_alive",
			Help:      "Number of worker processes currently running.",
		}),
		WorkerRespawns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "worker_respawns_total",
			Help:      "Number of times the supervisor has respawned a worker.",
		}),
		ConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "connections_open",
			Help:      "Number of live connections in this worker process.",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "requests_total",
			Help:      "Requests served, labeled by scope kind and outcome.",
		}, []string{"scope", "outcome"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "request_duration_seconds",
			Help:      "End-to-end duration of one request scope's application.Serve call.",
			Buckets:   prometheus.DefBuckets,
		}),
		BlockingPoolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blocking",
			Name:      "calls_total",
			Help:      "run_blocking calls, labeled by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		r.WorkersAlive,
		r.WorkerRespawns,
		r.ConnectionsOpen,
		r.RequestsTotal,
		r.RequestDuration,
		r.BlockingPoolCalls,
	)
	return r
}

// Handler returns the /metrics HTTP handler for this registry, meant to
// be served on a separate diagnostics listener, not the PAGI application
// port (the application's own traffic is not http.Handler-shaped).
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
