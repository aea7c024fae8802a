// Package metrics documents the Prometheus metrics emitted by the ETL jobs and
// pushes them to a Pushgateway at the end of a run.
//
// Metrics are defined in their respective packages (fetch, ratelimit,
// scheduler, warehouse) to keep packages independent.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the jobs.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the source pushed by Push.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

var jobLastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "etl_job_last_completion_timestamp_seconds",
	Help: "Unix time of the last completed run by job and status",
}, []string{"job", "status"})

func init() {
	Registry.MustRegister(jobLastSuccess)
}

// MarkCompleted stamps the completion time of a run.
func MarkCompleted(job, status string, at time.Time) {
	jobLastSuccess.WithLabelValues(job, status).Set(float64(at.Unix()))
}

// Push sends every gathered metric to the Pushgateway at url under job.
// An empty url disables pushing. Batch jobs have no scrape endpoint, so this
// is the only way their metrics leave the process.
func Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}

	pusher := push.New(url, job).Gatherer(Gatherer)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}

	log.Debug().Str("component", "metrics").Str("job", job).Str("url", url).Msg("Metrics pushed")
	return nil
}

// Metrics Documentation
//
// Fetch Metrics (pkg/fetch):
//   - etl_fetch_requests_total{provider, status} (Counter): HTTP attempts by provider and status
//   - etl_fetch_request_duration_seconds{provider} (Histogram): attempt duration
//   - etl_fetch_errors_total{provider, kind} (Counter): classified failures
//   - etl_fetch_pages_total{provider} (Counter): accepted pages
//   - etl_fetch_records_total{provider} (Counter): accepted records
//   - etl_fetch_outcomes_total{provider, status} (Counter): FetchAll outcomes
//
// Retry Metrics (pkg/fetch):
//   - etl_fetch_retries_total{provider, kind} (Counter): retries by error kind
//   - etl_fetch_retry_backoff_seconds{provider, kind} (Histogram): backoff chosen
//   - etl_fetch_retry_exhausted_total{provider, kind} (Counter): pages that ran out of attempts
//
// Rate Limit Metrics (pkg/ratelimit):
//   - etl_rate_limit_hits_total{provider} (Counter): rate-limit classifications recorded
//   - etl_rate_limit_last_hit_timestamp_seconds{provider} (Gauge): last hit time
//
// Scheduler Metrics (pkg/scheduler):
//   - etl_scheduler_units_started_total (Counter)
//   - etl_scheduler_units_completed_total{outcome} (Counter)
//   - etl_scheduler_unit_duration_seconds (Histogram)
//   - etl_scheduler_batches_total (Counter)
//
// Warehouse Metrics (pkg/warehouse):
//   - etl_warehouse_rows_loaded_total{table, disposition} (Counter)
//   - etl_warehouse_load_duration_seconds{table} (Histogram)
//   - etl_warehouse_load_errors_total{table} (Counter)
//
// Job Metrics (pkg/metrics):
//   - etl_job_last_completion_timestamp_seconds{job, status} (Gauge)
//
// Example Prometheus Queries:
//
//   # Rate-limit pressure per provider
//   sum by (provider) (increase(etl_rate_limit_hits_total[1h]))
//
//   # Pages that gave up
//   sum by (provider, kind) (increase(etl_fetch_retry_exhausted_total[1d]))
//
//   # Jobs that have not succeeded in a day
//   time() - etl_job_last_completion_timestamp_seconds{status="success"} > 86400
