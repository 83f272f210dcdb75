// Package metrics holds the Prometheus instrumentation for the ingestion
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal counts ingestion invocations by terminal outcome
	// (done, failed, conflict, dry_run).
	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "artistpulse",
		Name:      "invocations_total",
		Help:      "Ingestion invocations by terminal outcome.",
	}, []string{"outcome"})

	// RecordsExtractedTotal counts raw records extracted from the source.
	RecordsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "artistpulse",
		Name:      "records_extracted_total",
		Help:      "Raw records extracted from the catalog API.",
	})

	// BatchBytesTotal counts serialized batch bytes landed in raw storage.
	BatchBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "artistpulse",
		Name:      "batch_bytes_total",
		Help:      "Serialized batch bytes written to the bronze tier.",
	})

	// RetriesTotal counts in-invocation retry attempts by stage.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "artistpulse",
		Name:      "retries_total",
		Help:      "In-invocation retry attempts by stage.",
	}, []string{"stage"})

	// InvocationDuration observes end-to-end invocation duration.
	InvocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "artistpulse",
		Name:      "invocation_duration_seconds",
		Help:      "End-to-end ingestion invocation duration.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
