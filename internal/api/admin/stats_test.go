package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
)

func newStatsRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock := newSqlxMock(t)

	h := NewStatsHandler(db)
	h.now = func() time.Time { return fixedNow }

	r := gin.New()
	r.GET("/stats/dashboard", h.GetDashboardStats)
	r.GET("/stats/dashboard/export", h.ExportDashboardStats)
	r.GET("/stats/daily-scans", h.GetDailyScans)
	r.GET("/stats/export", h.ExportAllScans)
	r.GET("/qrcodes/:id/stats", h.GetQRCodeStats)
	r.GET("/qrcodes/:id/enhanced-stats", h.GetEnhancedStats)
	return mock, r
}

func countRow(n int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

func bucketRows(pairs ...interface{}) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"bucket", "count"})
	for i := 0; i+1 < len(pairs); i += 2 {
		rows.AddRow(pairs[i], pairs[i+1])
	}
	return rows
}

func labelRows(pairs ...interface{}) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"label", "count"})
	for i := 0; i+1 < len(pairs); i += 2 {
		rows.AddRow(pairs[i], pairs[i+1])
	}
	return rows
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// expectDashboard queues the queries of a non-"all" dashboard request
func expectDashboard(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM qrcodes q`).WillReturnRows(countRow(3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM scans s`).WillReturnRows(countRow(7))
	mock.ExpectQuery("date_trunc").WillReturnRows(bucketRows(day(2026, 3, 10), int64(5), day(2026, 3, 14), int64(2)))
	mock.ExpectQuery("LEFT JOIN scans").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "short_code", "folder", "scan_count"}).
			AddRow(int64(1), "Poster", "aaaa1111", "Marketing", int64(6)).
			AddRow(int64(2), "Flyer", "bbbb2222", nil, int64(1)))
}

// ---------------------------------------------------------------------------
// GetDashboardStats
// ---------------------------------------------------------------------------

func TestDashboardStats_30Days(t *testing.T) {
	mock, r := newStatsRouter(t)
	expectDashboard(mock)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/dashboard?time_range=30d", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalQRCodes != 3 || resp.TotalScans != 7 {
		t.Errorf("totals = %d/%d, want 3/7", resp.TotalQRCodes, resp.TotalScans)
	}
	if resp.Folder != "All QR Codes" {
		t.Errorf("folder = %q", resp.Folder)
	}
	if resp.TimeRange.GroupBy != "day" {
		t.Errorf("group_by = %q, want day", resp.TimeRange.GroupBy)
	}
	if len(resp.Scans) != 31 {
		t.Fatalf("scans = %d buckets, want 31", len(resp.Scans))
	}
	if resp.Scans[0].Date != "2026-02-13" || resp.Scans[30].Date != "2026-03-15" {
		t.Errorf("range = %s .. %s", resp.Scans[0].Date, resp.Scans[30].Date)
	}
	counts := map[string]int64{}
	for _, d := range resp.Scans {
		counts[d.Date] = d.Count
	}
	if counts["2026-03-10"] != 5 || counts["2026-03-14"] != 2 || counts["2026-03-11"] != 0 {
		t.Errorf("bucket counts wrong: %v", counts)
	}
	if len(resp.TopQRCodes) != 2 || resp.TopQRCodes[0].ShortCode != "aaaa1111" {
		t.Errorf("top_qrcodes = %+v", resp.TopQRCodes)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDashboardStats_MissingTimeRangeDefaultsTo30Days(t *testing.T) {
	mock, r := newStatsRouter(t)
	expectDashboard(mock)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/dashboard", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TimeRange.GroupBy != "day" {
		t.Errorf("group_by = %q, want day", resp.TimeRange.GroupBy)
	}
	if !resp.TimeRange.Start.Equal(fixedNow.AddDate(0, 0, -30)) {
		t.Errorf("start = %v, want %v", resp.TimeRange.Start, fixedNow.AddDate(0, 0, -30))
	}
	if len(resp.Scans) != 31 {
		t.Errorf("scans = %d buckets, want 31", len(resp.Scans))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDashboardStats_AllRangeQueriesFirstScan(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery(`MIN\(s.timestamp\)`).WithArgs("Events").
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(day(2025, 12, 5)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM qrcodes q`).WithArgs("Events").WillReturnRows(countRow(1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM scans s`).WillReturnRows(countRow(0))
	mock.ExpectQuery("date_trunc").WillReturnRows(bucketRows())
	mock.ExpectQuery("LEFT JOIN scans").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "short_code", "folder", "scan_count"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/dashboard?time_range=all&folder=Events", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp DashboardStats
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.TimeRange.GroupBy != "month" {
		t.Errorf("group_by = %q, want month", resp.TimeRange.GroupBy)
	}
	if resp.Folder != "Events" {
		t.Errorf("folder = %q, want Events", resp.Folder)
	}
	if len(resp.Scans) != 4 || resp.Scans[0].Date != "2025-12" {
		t.Errorf("scans = %+v, want 2025-12..2026-03", resp.Scans)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDashboardStats_DBError(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM qrcodes q`).WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/dashboard?time_range=week", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestExportDashboardStats_CSV(t *testing.T) {
	mock, r := newStatsRouter(t)
	expectDashboard(mock)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/dashboard/export?time_range=30d", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "dashboard_export_20260315_123000.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	body := w.Body.String()
	for _, want := range []string{"Metric,Value\n", "Total QR Codes,3\n", "Total Scans,7\n", "Group By,day\n", "Folder,All QR Codes\n", "\nDate,Scan Count\n", "2026-03-10,5\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

// ---------------------------------------------------------------------------
// GetDailyScans
// ---------------------------------------------------------------------------

func TestDailyScans_Success(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("date_trunc").WillReturnRows(bucketRows(day(2026, 3, 1), int64(2), day(2026, 3, 15), int64(3)))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM qrcodes q`).WillReturnRows(countRow(4))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/daily-scans", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	resp := getJSON(w)
	if daily, _ := resp["daily_scans"].([]interface{}); len(daily) != 30 {
		t.Errorf("daily_scans = %d entries, want 30", len(daily))
	}
	if resp["total_scans"] != float64(5) {
		t.Errorf("total_scans = %v, want 5", resp["total_scans"])
	}
	if resp["total_qrcodes"] != float64(4) {
		t.Errorf("total_qrcodes = %v, want 4", resp["total_qrcodes"])
	}
}

func TestDailyScans_DBError(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("date_trunc").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/daily-scans", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// ---------------------------------------------------------------------------
// ExportAllScans
// ---------------------------------------------------------------------------

func TestExportAllScans_CSV(t *testing.T) {
	mock, r := newStatsRouter(t)
	cols := append(append([]string{}, scanCols...), "qrcode_name", "qrcode_short_code")
	mock.ExpectQuery("JOIN qrcodes q").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(9), int64(1), time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), "198.51.100.4", "ua", "tablet",
				"Android", "Chrome", "Spain", "Madrid", "Madrid", nil, nil, nil, false, "nfc", "Poster", "aaaa1111"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats/export", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "qr_scans_export_2026-03-15.csv") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	want := "9,1,Poster,aaaa1111,2026-03-01T10:00:00Z,198.51.100.4,Spain,Madrid,Madrid,tablet,Android,Chrome,,nfc"
	if lines[1] != want {
		t.Errorf("row = %q\nwant  %q", lines[1], want)
	}
}

// ---------------------------------------------------------------------------
// GetQRCodeStats
// ---------------------------------------------------------------------------

func TestQRCodeStats_Success(t *testing.T) {
	mock, r := newStatsRouter(t)
	last := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("WHERE q.short_code").WillReturnRows(qrRow(7, "abc12345"))
	mock.ExpectQuery("recent_scans").WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"total_scans", "recent_scans", "last_scan_time", "unique_countries", "unique_cities"}).
			AddRow(int64(12), int64(4), last, int64(3), int64(5)))
	mock.ExpectQuery("date_trunc").WillReturnRows(bucketRows(day(2026, 3, 14), int64(4)))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcodes/abc12345/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp QRCodeStats
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalScans != 12 || resp.RecentScans != 4 || resp.UniqueCountries != 3 || resp.UniqueCities != 5 {
		t.Errorf("summary = %+v", resp.QRCodeSummary)
	}
	if resp.LastScanTime == nil || !resp.LastScanTime.Equal(last) {
		t.Errorf("last_scan_time = %v", resp.LastScanTime)
	}
	if len(resp.DailyScans) != 30 {
		t.Fatalf("daily_scans = %d, want 30", len(resp.DailyScans))
	}
	if got := resp.DailyScans[28]; got.Date != "2026-03-14" || got.Count != 4 {
		t.Errorf("daily_scans[28] = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestQRCodeStats_NotFound(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("WHERE q.short_code").WillReturnRows(emptyQRRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcodes/gone/stats", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ---------------------------------------------------------------------------
// GetEnhancedStats
// ---------------------------------------------------------------------------

func TestEnhancedStats_Success(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("WHERE q.short_code").WillReturnRows(qrRow(7, "abc12345"))
	mock.ExpectQuery("date_trunc").WillReturnRows(bucketRows(day(2026, 1, 2), int64(1), day(2026, 3, 14), int64(2)))
	mock.ExpectQuery(`NULLIF\(country`).WillReturnRows(labelRows("Germany", int64(2), "Unknown", int64(1)))
	mock.ExpectQuery(`NULLIF\(device_type`).WillReturnRows(labelRows("mobile", int64(3)))
	mock.ExpectQuery(`NULLIF\(os_family`).WillReturnRows(labelRows("iOS", int64(3)))
	mock.ExpectQuery(`NULLIF\(browser_family`).WillReturnRows(labelRows("Safari", int64(3)))
	mock.ExpectQuery(`EXTRACT\(HOUR`).WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow(9, int64(3)))
	mock.ExpectQuery(`EXTRACT\(DOW`).WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow(6, int64(3)))
	mock.ExpectQuery("avg_time_on_page").
		WillReturnRows(sqlmock.NewRows([]string{"avg_time_on_page", "scrolled_count", "total_scans"}).
			AddRow(12.3456, int64(1), int64(3)))
	mock.ExpectQuery("referrer_domain AS label").WillReturnRows(labelRows("news.example", int64(2)))
	mock.ExpectQuery("FROM scans s WHERE s.qrcode_id").WithArgs(int64(7), recentScansInStats, 0).
		WillReturnRows(sqlmock.NewRows(scanCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcodes/abc12345/enhanced-stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp EnhancedStats
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TotalScans != 3 {
		t.Errorf("total_scans = %d, want 3", resp.TotalScans)
	}
	if len(resp.DailyScans) != 2 || resp.DailyScans[0].Date != "2026-01-02" {
		t.Errorf("daily_scans = %+v, want the two non-empty days", resp.DailyScans)
	}
	if resp.ScansByCountry["Germany"] != 2 || resp.ScansByCountry["Unknown"] != 1 {
		t.Errorf("scans_by_country = %v", resp.ScansByCountry)
	}
	if resp.ScansByDevice["mobile"] != 3 || resp.ScansByOS["iOS"] != 3 || resp.ScansByBrowser["Safari"] != 3 {
		t.Errorf("device/os/browser breakdowns wrong: %v %v %v", resp.ScansByDevice, resp.ScansByOS, resp.ScansByBrowser)
	}
	if len(resp.ScansByHour) != 24 || resp.ScansByHour[9] != 3 || resp.ScansByHour[0] != 0 {
		t.Errorf("scans_by_hour = %v", resp.ScansByHour)
	}
	if len(resp.ScansByWeekday) != 7 || resp.ScansByWeekday[6] != 3 {
		t.Errorf("scans_by_weekday = %v", resp.ScansByWeekday)
	}
	if resp.AvgTimeOnPage != 12.35 {
		t.Errorf("avg_time_on_page = %v, want 12.35", resp.AvgTimeOnPage)
	}
	if resp.ScrollRate != 33 {
		t.Errorf("scroll_rate = %v, want 33", resp.ScrollRate)
	}
	if resp.TopReferrers["news.example"] != 2 {
		t.Errorf("top_referrers = %v", resp.TopReferrers)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEnhancedStats_NoScans(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("WHERE q.short_code").WillReturnRows(qrRow(7, "abc12345"))
	mock.ExpectQuery("date_trunc").WillReturnRows(bucketRows())
	for i := 0; i < 4; i++ {
		mock.ExpectQuery("AS label").WillReturnRows(labelRows())
	}
	mock.ExpectQuery(`EXTRACT\(HOUR`).WillReturnRows(sqlmock.NewRows([]string{"key", "count"}))
	mock.ExpectQuery(`EXTRACT\(DOW`).WillReturnRows(sqlmock.NewRows([]string{"key", "count"}))
	mock.ExpectQuery("avg_time_on_page").
		WillReturnRows(sqlmock.NewRows([]string{"avg_time_on_page", "scrolled_count", "total_scans"}).
			AddRow(nil, int64(0), int64(0)))
	mock.ExpectQuery("referrer_domain AS label").WillReturnRows(labelRows())
	mock.ExpectQuery("FROM scans s WHERE s.qrcode_id").WillReturnRows(sqlmock.NewRows(scanCols))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcodes/abc12345/enhanced-stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp EnhancedStats
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.AvgTimeOnPage != 0 || resp.ScrollRate != 0 {
		t.Errorf("engagement = %v/%v, want 0/0", resp.AvgTimeOnPage, resp.ScrollRate)
	}
	if len(resp.ScansByHour) != 24 || len(resp.ScansByWeekday) != 7 {
		t.Errorf("histograms not zero-filled: %d hours, %d weekdays", len(resp.ScansByHour), len(resp.ScansByWeekday))
	}
}

func TestEnhancedStats_DBError(t *testing.T) {
	mock, r := newStatsRouter(t)
	mock.ExpectQuery("WHERE q.short_code").WillReturnRows(qrRow(7, "abc12345"))
	mock.ExpectQuery("date_trunc").WillReturnError(errDB)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/qrcodes/abc12345/enhanced-stats", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
