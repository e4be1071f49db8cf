// Package metrics provides Prometheus instrumentation for the daemon:
// active worker count, dispatch outcomes, batch duration, and frame
// sizes on the wire.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Router / worker lifecycle metrics.
var (
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serialited_active_workers",
		Help: "Number of worker tasks currently running, whatever their database lifecycle state.",
	})

	WorkersSpawnedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serialited_workers_spawned_total",
		Help: "Total number of worker tasks spawned, including respawns after idle shutdown.",
	})

	WorkerIdleShutdownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serialited_worker_idle_shutdowns_total",
		Help: "Total number of workers that exited due to the idle timeout.",
	})
)

// Dispatch metrics.
var (
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "serialited_dispatch_total",
		Help: "Total number of requests dispatched by the router, by request type and outcome.",
	}, []string{"type", "outcome"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "serialited_dispatch_duration_seconds",
		Help:    "Time from router dispatch to reply, by request type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})
)

// Worker execution metrics.
var (
	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "serialited_batch_duration_seconds",
		Help:    "Time spent executing an ExecBatch inside the worker, by transaction mode.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tx_mode"})

	BatchStatementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serialited_batch_statements_total",
		Help: "Total number of statements executed across all batches.",
	})
)

// Wire-level metrics.
var (
	FrameSizeBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "serialited_frame_size_bytes",
		Help:    "Size in bytes of frames read from or written to client connections.",
		Buckets: prometheus.ExponentialBuckets(64, 4, 8), // 64B .. 1MiB
	}, []string{"direction"})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "serialited_connections_active",
		Help: "Number of currently open client connections.",
	})
)
