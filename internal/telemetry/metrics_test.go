package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// ---------------------------------------------------------------------------
// Metric registration sanity checks. Describe() is used instead of Gather()
// because *Vec metrics with no observed label set are absent from Gather output.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	cases := []struct {
		name string
		c    prometheus.Collector
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"qr_scans_total", ScansTotal},
		{"qr_scan_record_failures_total", ScanRecordFailuresTotal},
		{"qrcodes_created_total", QRCodesCreatedTotal},
		{"qr_image_cache_total", QRImageCacheTotal},
		{"scan_events_published_total", ScanEventsPublishedTotal},
		{"scans_pruned_total", ScansPrunedTotal},
		{"db_open_connections", DBOpenConnections},
		{"db_in_use_connections", DBInUseConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_ScansTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"method": "nfc", "device": "tablet"}
	before := counterValue(t, ScansTotal, labels)
	ScansTotal.With(labels).Inc()
	if after := counterValue(t, ScansTotal, labels); after-before != 1 {
		t.Errorf("ScansTotal delta = %.0f, want 1", after-before)
	}
}

func TestMetrics_ScansPrunedTotal_Add(t *testing.T) {
	before := plainCounterValue(t, ScansPrunedTotal)
	ScansPrunedTotal.Add(12)
	if after := plainCounterValue(t, ScansPrunedTotal); after-before != 12 {
		t.Errorf("ScansPrunedTotal delta = %.0f, want 12", after-before)
	}
}

// ---------------------------------------------------------------------------
// DB pool gauges
// ---------------------------------------------------------------------------

func TestRecordDBStats(t *testing.T) {
	RecordDBStats(sql.DBStats{OpenConnections: 7, InUse: 3})
	if got := gaugeValue(t, DBOpenConnections); got != 7 {
		t.Errorf("db_open_connections = %v, want 7", got)
	}
	if got := gaugeValue(t, DBInUseConnections); got != 3 {
		t.Errorf("db_in_use_connections = %v, want 3", got)
	}
	RecordDBStats(sql.DBStats{})
}

func TestStartDBStatsCollector_StopsOnCancel(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	StartDBStatsCollector(ctx, db, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 100)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var dm dto.Metric
	if err := c.Write(&dm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return dm.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var dm dto.Metric
	if err := g.Write(&dm); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return dm.GetGauge().GetValue()
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
