// Package metrics exposes the profiler's self-metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch_profiler"

var (
	// Registry is a dedicated Prometheus registry for all profiler metrics.
	Registry = prometheus.NewRegistry()

	// DispatchesObserved counts every dispatch seen by the filter,
	// accepted or not.
	DispatchesObserved = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_observed_total",
			Help:      "Total dispatches observed by the dispatch callback",
		},
	)

	// DispatchesProfiled counts dispatches that got a profiling context.
	DispatchesProfiled = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_profiled_total",
			Help:      "Total dispatches accepted by the filter",
		},
	)

	// ContextsCollected counts profiling contexts successfully dumped.
	ContextsCollected = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contexts_collected_total",
			Help:      "Total profiling contexts serialized and released",
		},
	)

	// CompletionNotReady counts completion notifications deferred because
	// the dispatch's timing record was not finalized yet.
	CompletionNotReady = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_not_ready_total",
			Help:      "Completion notifications deferred waiting for timing data",
		},
	)

	// TraceBytes accumulates serialized trace payload bytes.
	TraceBytes = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trace_bytes_total",
			Help:      "Cumulative trace bytes consumed by the serializer",
		},
	)
)
