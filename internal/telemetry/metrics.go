// Package telemetry provides application-level observability: the global slog
// logger and the Prometheus metrics exported by the service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served
// by the side-channel HTTP server started in cmd/server:
//
//	GET http://<host>:<QRT_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not part of the Gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /r/:short_code) rather than
// the raw request URL, so short codes never become label values.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Scan metrics, recorded by the redirect handler.
//
// ScansTotal is labelled by scan method (qr, link, nfc, direct) and device type
// (mobile, tablet, pc, bot, unknown). Both label sets are closed.
//
// Example PromQL queries:
//   - Scans per minute:        sum(rate(qr_scans_total[5m])) * 60
//   - Mobile share:            sum(rate(qr_scans_total{device="mobile"}[1h])) / sum(rate(qr_scans_total[1h]))
//   - Alert on record errors:  increase(qr_scan_record_failures_total[10m]) > 0
var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qr_scans_total",
			Help: "Total number of recorded scans, by scan method and device type.",
		},
		[]string{"method", "device"},
	)

	ScanRecordFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qr_scan_record_failures_total",
			Help: "Total number of redirects whose scan could not be stored.",
		},
	)

	QRCodesCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qrcodes_created_total",
			Help: "Total number of QR codes created.",
		},
	)
)

// QRImageCacheTotal counts image requests by cache result: hit, miss, or error
// (the storage backend failed and the image was rendered without caching).
var QRImageCacheTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qr_image_cache_total",
		Help: "QR image requests by storage cache result.",
	},
	[]string{"result"},
)

// ScanEventsPublishedTotal counts scans.recorded events by outcome (ok, error)
var ScanEventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scan_events_published_total",
		Help: "Scan events published to the message broker, by outcome.",
	},
	[]string{"status"},
)

// ScansPrunedTotal is incremented by the retention job with the number of scans it deleted
var ScansPrunedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "scans_pruned_total",
		Help: "Total number of scans deleted by the retention job.",
	},
)

// Database pool gauges, sampled by StartDBStatsCollector.
var (
	DBOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_open_connections",
			Help: "Current number of open database connections in the pool.",
		},
	)

	DBInUseConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_in_use_connections",
			Help: "Current number of database connections in use.",
		},
	)
)

// StartDBStatsCollector samples sql.DB pool statistics every interval until ctx
// is cancelled.
//
//	telemetry.StartDBStatsCollector(ctx, database, 30*time.Second)
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				RecordDBStats(db.Stats())
			}
		}
	}()
	slog.Debug("db stats collector started", "interval", interval)
}

// RecordDBStats copies pool statistics into the DB gauges
func RecordDBStats(s sql.DBStats) {
	DBOpenConnections.Set(float64(s.OpenConnections))
	DBInUseConnections.Set(float64(s.InUse))
}
