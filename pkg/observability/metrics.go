package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Batch metrics
	migrationBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_batches_total",
		Help: "Total number of pipeline batch invocations",
	}, []string{
		"pipeline", // products, subscriptions
		"outcome",  // more, exhausted, paused, failed
	})

	migrationBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "migration_batch_duration_seconds",
		Help: "Time to process one pipeline batch",
		// Buckets: 100ms to 2m (subscription batches trigger many downstream writes)
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"pipeline"})

	// Record metrics
	migrationRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_records_total",
		Help: "Records handled by the pipelines",
	}, []string{
		"pipeline",
		"result", // created, skipped, failed
	})

	migrationGatewayWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_gateway_warnings_total",
		Help: "Subscriptions migrated with a gateway the target cannot charge",
	}, []string{"gateway"})

	migrationStateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "migration_state_errors_logged_total",
		Help: "Entries appended to the migration error log",
	})

	// Renewal guard metrics
	migrationRenewalVetoesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_renewal_vetoes_total",
		Help: "Source renewals blocked for migrated subscriptions",
	}, []string{"type"})

	// Queue metrics
	migrationJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migration_jobs_total",
		Help: "Scheduler jobs consumed by the worker",
	}, []string{
		"kind",
		"status", // completed, failed
	})
)

// RecordBatch records one batch invocation
func RecordBatch(pipeline, outcome string, duration float64) {
	migrationBatchesTotal.WithLabelValues(pipeline, outcome).Inc()
	migrationBatchDuration.WithLabelValues(pipeline).Observe(duration)
}

// RecordRecords adds per-record results of a batch
func RecordRecords(pipeline string, created, skipped, failed int) {
	migrationRecordsTotal.WithLabelValues(pipeline, "created").Add(float64(created))
	migrationRecordsTotal.WithLabelValues(pipeline, "skipped").Add(float64(skipped))
	migrationRecordsTotal.WithLabelValues(pipeline, "failed").Add(float64(failed))
}

// RecordGatewayWarning counts a subscription migrated with an unsupported gateway
func RecordGatewayWarning(gateway string) {
	migrationGatewayWarningsTotal.WithLabelValues(gateway).Inc()
}

// RecordStateError counts an error log append
func RecordStateError() {
	migrationStateErrorsTotal.Inc()
}

// RecordRenewalVeto counts a blocked renewal
func RecordRenewalVeto(vetoType string) {
	migrationRenewalVetoesTotal.WithLabelValues(vetoType).Inc()
}

// RecordJob counts a consumed scheduler job
func RecordJob(kind, status string) {
	migrationJobsTotal.WithLabelValues(kind, status).Inc()
}
