// Package metrics exports the CU's counters and gauges in Prometheus
// exposition format, grounded on the teacher's go.mod dependency
// github.com/prometheus/client_golang (aistore's own stats package
// feeds a StatsD/Prometheus-style sink from the same counter/gauge
// taxonomy this package follows: "*.n" counters, "*.ns" latencies,
// "*.size" sizes -- see stats/target_stats.go's naming convention,
// mirrored here as Prometheus metric names with underscores).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the read APIs in spec.md §4.H need to
// export via metrics() / stats().
type Registry struct {
	reg *prometheus.Registry

	EvaluationCounter *prometheus.CounterVec
	GasUsed           prometheus.Counter
	CheckpointsOK     prometheus.Counter
	CheckpointsFailed prometheus.Counter
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	PendingReads      prometheus.Gauge
	PoolActive        *prometheus.GaugeVec
	PoolIdle          *prometheus.GaugeVec
	PoolPending       *prometheus.GaugeVec
}

// New builds and registers a fresh, independent Registry -- tests get
// their own instance instead of colliding on the default global one.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		EvaluationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cu_evaluation_total",
			Help: "Total evaluations by stream type, message type, and whether the evaluation errored.",
		}, []string{"stream_type", "message_type", "process_error"}),
		GasUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cu_gas_used_total",
			Help: "Cumulative gas consumed across all evaluations.",
		}),
		CheckpointsOK: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cu_checkpoints_saved_total",
			Help: "Checkpoint saves that succeeded; a remote upload is best-effort and not required for this count.",
		}),
		CheckpointsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cu_checkpoints_failed_total",
			Help: "Checkpoint save attempts that failed and were swallowed.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cu_memory_cache_hits_total",
			Help: "Memory cache lookups that found a usable entry.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cu_memory_cache_misses_total",
			Help: "Memory cache lookups that fell through to checkpoint/cold-start.",
		}),
		PendingReads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cu_pending_read_states",
			Help: "Number of processes with an in-flight single-flight readState run.",
		}),
		PoolActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cu_pool_active_workers",
			Help: "Active workers per pool.",
		}, []string{"pool"}),
		PoolIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cu_pool_idle_workers",
			Help: "Idle workers per pool.",
		}, []string{"pool"}),
		PoolPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cu_pool_pending_tasks",
			Help: "Tasks waiting in the admission queue per pool.",
		}, []string{"pool"}),
	}
	reg.MustRegister(
		r.EvaluationCounter, r.GasUsed, r.CheckpointsOK, r.CheckpointsFailed,
		r.CacheHits, r.CacheMisses, r.PendingReads,
		r.PoolActive, r.PoolIdle, r.PoolPending,
	)
	return r
}

// Handler returns the Prometheus text-exposition http.Handler for this
// registry. Mounting it on a route is the out-of-scope HTTP transport
// layer (spec.md §1); this package only produces the handler.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
