package vectorstore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: backend (embedded, collection, qdrant), op (add, search, reset), result (success, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"backend", "op", "result"},
	)

	// OperationDuration tracks how long store operations take.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vector store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// DegradedSearchesTotal counts queries that returned no results because
	// of a failure.
	// Labels: backend, cause (embedding, backend)
	DegradedSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "degraded_searches_total",
			Help:      "Total number of search queries degraded to empty results",
		},
		[]string{"backend", "cause"},
	)

	// DocumentsWritten counts documents upserted.
	DocumentsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "documents_written_total",
			Help:      "Total number of documents upserted",
		},
		[]string{"backend"},
	)

	// QuarantineOperations counts quarantined collection directories.
	// Labels: result (success, error)
	QuarantineOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragstore",
			Subsystem: "vectorstore",
			Name:      "quarantine_operations_total",
			Help:      "Total number of quarantine operations",
		},
		[]string{"result"},
	)
)

// recordOperation records the outcome and duration of one store operation.
func recordOperation(backend, op string, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	OperationsTotal.WithLabelValues(backend, op, result).Inc()
	OperationDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// recordDegraded counts a degraded query, labelled by whether the embedding
// provider or the engine failed.
func recordDegraded(backend string, cause error) {
	label := "backend"
	if errors.Is(cause, ErrEmbeddingFailed) {
		label = "embedding"
	}
	DegradedSearchesTotal.WithLabelValues(backend, label).Inc()
}

// RecordQuarantineResult records the outcome of a quarantine operation.
func RecordQuarantineResult(success bool) {
	if success {
		QuarantineOperations.WithLabelValues("success").Inc()
	} else {
		QuarantineOperations.WithLabelValues("error").Inc()
	}
}
