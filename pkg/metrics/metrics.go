// Package metrics documents the Prometheus metrics of the export tools and
// writes them out at the end of a batch run.
//
// Metrics are defined in their respective packages (ogcapi, pagination,
// jobs) via promauto and register with the default registry.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Gatherer collects the metrics written by WriteTextfile.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

// ErrNoPath is returned by WriteTextfile without a destination.
var ErrNoPath = errors.New("metrics: no textfile path")

// WriteTextfile writes the gathered metrics to path in the text exposition
// format read by the node exporter textfile collector. The file is replaced
// atomically.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return ErrNoPath
	}
	if g == nil {
		g = Gatherer
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Features API Metrics (pkg/ogcapi):
//   - ogcapi_requests_total{collection, status} (Counter): Requests by collection and HTTP status
//   - ogcapi_request_duration_seconds{collection} (Histogram): Request duration by collection
//   - ogcapi_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Pagination Metrics (pkg/pagination):
//   - fire_pagination_pages_total{collection} (Counter): Pages fetched
//   - fire_pagination_features_total{collection} (Counter): Features fetched
//   - fire_pagination_short_pages_total{collection} (Counter): Walks cut short before numberMatched
//
// Job Metrics (pkg/jobs):
//   - fire_export_files_total{job} (Counter): Export files written
//   - fire_export_fires_skipped_total{job} (Counter): Fires without matching perimeters
//
// Example Prometheus Queries:
//
//   # Truncated result sets
//   increase(fire_pagination_short_pages_total[1d]) > 0
//
//   # Features API error rate
//   rate(ogcapi_errors_total[1h])
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(ogcapi_request_duration_seconds_bucket[1h]))
