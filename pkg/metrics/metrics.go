// Package metrics provides the centralized Prometheus metrics registry for
// the downloader. All metrics are defined in their respective packages
// (pxweb, ratelimit, retry, fetch, metadata) to maintain modularity and
// avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the downloader.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/pxweb):
//   - pxfetch_requests_total{method, status} (Counter): API requests by method and HTTP status
//   - pxfetch_request_duration_seconds{method} (Histogram): Request duration by method
//
// Rate Limit Metrics (pkg/ratelimit):
//   - pxfetch_rate_limit_acquires_total (Counter): Calls admitted through the limiter
//   - pxfetch_rate_limit_wait_seconds (Histogram): Time spent waiting for admission
//
// Retry Metrics (pkg/retry):
//   - pxfetch_retries_total (Counter): Retry attempts
//   - pxfetch_retry_exhausted_total (Counter): Operations that exhausted max tries
//   - pxfetch_retry_timeout_total (Counter): Operations that hit the retry deadline
//
// Fetch Metrics (pkg/fetch):
//   - pxfetch_rows_fetched_total (Counter): Merged rows emitted across all tables
//   - pxfetch_chunks_fetched_total (Counter): Sub-request chunks fetched and merged
//   - pxfetch_tables_skipped_time_budget_total (Counter): Tables skipped by the time budget
//
// Metadata Cache Metrics (pkg/metadata):
//   - pxfetch_metadata_cache_hits_total (Counter): Redis cache hits
//   - pxfetch_metadata_cache_misses_total (Counter): Redis cache misses
//   - pxfetch_metadata_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Effective request rate against the API quota
//   rate(pxfetch_rate_limit_acquires_total[1m])
//
//   # Share of requests answered with errors
//   sum(rate(pxfetch_requests_total{status!~"2.."}[5m])) /
//   sum(rate(pxfetch_requests_total[5m]))
//
//   # P95 admission wait
//   histogram_quantile(0.95, rate(pxfetch_rate_limit_wait_seconds_bucket[5m]))
//
//   # Download throughput
//   rate(pxfetch_rows_fetched_total[5m])
