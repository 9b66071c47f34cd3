package chapters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chapters_store_operations_total",
		Help: "Document store operations by operation and outcome",
	}, []string{"operation", "outcome"}) // outcome: ok, error

	importRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chapters_import_records_total",
		Help: "Imported records by outcome",
	}, []string{"outcome"}) // outcome: inserted, invalid, failed

	importDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chapters_import_duration_seconds",
		Help:    "Duration of batch imports",
		Buckets: prometheus.DefBuckets,
	})
)

func observe(op string, err error) {
	if err != nil {
		storeOperations.WithLabelValues(op, "error").Inc()
		return
	}
	storeOperations.WithLabelValues(op, "ok").Inc()
}
