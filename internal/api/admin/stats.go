// stats.go implements the dashboard, per-code statistics, and scan export endpoints.
package admin

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
)

const (
	dashboardTopCodes  = 5
	statsWindowDays    = 30
	topReferrersLimit  = 10
	recentScansInStats = 50
	allFoldersLabel    = "All QR Codes"
)

// StatsHandler handles stats-related API requests
type StatsHandler struct {
	statsRepo *repositories.StatsRepository
	qrRepo    *repositories.QRCodeRepository
	scanRepo  *repositories.ScanRepository
	now       func() time.Time
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(database *sqlx.DB) *StatsHandler {
	return &StatsHandler{
		statsRepo: repositories.NewStatsRepository(database),
		qrRepo:    repositories.NewQRCodeRepository(database),
		scanRepo:  repositories.NewScanRepository(database),
		now:       time.Now,
	}
}

// DashboardStats is the response of GET /api/stats/dashboard
type DashboardStats struct {
	TotalQRCodes int64              `json:"total_qrcodes"`
	TotalScans   int64              `json:"total_scans"`
	Scans        []models.DateCount `json:"scans"`
	TimeRange    TimeRange          `json:"time_range"`
	Folder       string             `json:"folder"`
	TopQRCodes   []models.TopQRCode `json:"top_qrcodes"`
}

// QRCodeStats is the response of GET /api/qrcodes/:id/stats
type QRCodeStats struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	ShortCode string `json:"short_code"`
	models.QRCodeSummary
	DailyScans []models.DateCount `json:"daily_scans"`
}

// EnhancedStats is the response of GET /api/qrcodes/:id/enhanced-stats
type EnhancedStats struct {
	ID             int64              `json:"id"`
	Name           string             `json:"name"`
	ShortCode      string             `json:"short_code"`
	TotalScans     int64              `json:"total_scans"`
	DailyScans     []models.DateCount `json:"daily_scans"`
	ScansByCountry map[string]int64   `json:"scans_by_country"`
	ScansByDevice  map[string]int64   `json:"scans_by_device"`
	ScansByOS      map[string]int64   `json:"scans_by_os"`
	ScansByBrowser map[string]int64   `json:"scans_by_browser"`
	ScansByHour    map[int]int64      `json:"scans_by_hour"`
	ScansByWeekday map[int]int64      `json:"scans_by_weekday"`
	AvgTimeOnPage  float64            `json:"avg_time_on_page"`
	ScrollRate     float64            `json:"scroll_rate"`
	TopReferrers   map[string]int64   `json:"top_referrers"`
	Scans          []models.Scan      `json:"scans"`
}

func folderLabel(folder string) string {
	if folder == "" || folder == "all" {
		return allFoldersLabel
	}
	return folder
}

func (h *StatsHandler) dashboard(ctx context.Context, timeRange, folder string) (*DashboardStats, error) {
	tr, err := ResolveTimeRange(ctx, timeRange, h.now(), func(ctx context.Context) (*time.Time, error) {
		return h.statsRepo.FirstScanTime(ctx, repositories.ScanFilter{Folder: folder})
	})
	if err != nil {
		return nil, err
	}
	filter := repositories.ScanFilter{Folder: folder, Start: tr.Start, End: tr.End}

	stats := &DashboardStats{TimeRange: tr, Folder: folderLabel(folder)}
	if stats.TotalQRCodes, err = h.statsRepo.CountQRCodes(ctx, folder); err != nil {
		return nil, err
	}
	if stats.TotalScans, err = h.statsRepo.CountScans(ctx, filter); err != nil {
		return nil, err
	}
	buckets, err := h.statsRepo.ScanSeries(ctx, filter, tr.GroupBy)
	if err != nil {
		return nil, err
	}
	stats.Scans = ZeroFill(buckets, tr.Start, tr.End, tr.GroupBy)
	if stats.TopQRCodes, err = h.statsRepo.TopQRCodes(ctx, filter, dashboardTopCodes); err != nil {
		return nil, err
	}
	return stats, nil
}

// @Summary      Dashboard statistics
// @Description  Totals, a zero-filled scan series, and the most-scanned codes for a time range and folder.
// @Tags         Stats
// @Security     Bearer
// @Produce      json
// @Param        time_range  query  string  false  "24h, 3d, week, 30d, 60d, 90d, 6m, year, all"
// @Param        folder      query  string  false  "Folder filter; all or empty for every folder"
// @Success      200  {object}  DashboardStats
// @Router       /api/stats/dashboard [get]
// GetDashboardStats returns dashboard statistics
// GET /api/stats/dashboard?time_range=30d&folder=X
func (h *StatsHandler) GetDashboardStats(c *gin.Context) {
	stats, err := h.dashboard(c.Request.Context(), c.DefaultQuery("time_range", "30d"), c.Query("folder"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExportDashboardStats returns the dashboard query as CSV
// GET /api/stats/dashboard/export
func (h *StatsHandler) ExportDashboardStats(c *gin.Context) {
	stats, err := h.dashboard(c.Request.Context(), c.DefaultQuery("time_range", "30d"), c.Query("folder"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("dashboard_export_%s.csv", h.now().UTC().Format("20060102_150405"))
	w := newCSVResponse(c, filename, []string{"Metric", "Value"})
	rows := [][]string{
		{"Total QR Codes", strconv.FormatInt(stats.TotalQRCodes, 10)},
		{"Total Scans", strconv.FormatInt(stats.TotalScans, 10)},
		{"Time Range", stats.TimeRange.Start.Format(time.RFC3339) + " to " + stats.TimeRange.End.Format(time.RFC3339)},
		{"Group By", stats.TimeRange.GroupBy},
		{"Folder", stats.Folder},
		{},
		{"Date", "Scan Count"},
	}
	for _, d := range stats.Scans {
		rows = append(rows, []string{d.Date, strconv.FormatInt(d.Count, 10)})
	}
	w.finish(w.WriteAll(rows))
}

// GetDailyScans returns the last 30 days of scans, zero-filled
// GET /api/stats/daily-scans?folder=X
func (h *StatsHandler) GetDailyScans(c *gin.Context) {
	ctx := c.Request.Context()
	folder := c.Query("folder")
	now := h.now().UTC()
	start := lastNDays(now, statsWindowDays)

	buckets, err := h.statsRepo.ScanSeries(ctx, repositories.ScanFilter{Folder: folder, Start: start}, repositories.GroupByDay)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	totalQRCodes, err := h.statsRepo.CountQRCodes(ctx, folder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	daily := ZeroFill(buckets, start, now, repositories.GroupByDay)
	c.JSON(http.StatusOK, gin.H{
		"daily_scans":   daily,
		"total_scans":   sumCounts(daily),
		"total_qrcodes": totalQRCodes,
	})
}

// ExportAllScans streams every scan across all QR codes as CSV (admin only)
// GET /api/stats/export
func (h *StatsHandler) ExportAllScans(c *gin.Context) {
	filename := fmt.Sprintf("qr_scans_export_%s.csv", h.now().UTC().Format("2006-01-02"))
	w := newCSVResponse(c, filename, exportCSVHeader)
	err := h.scanRepo.EachForExport(c.Request.Context(), func(r *models.ScanExportRow) error {
		return w.Write(exportCSVRecord(r))
	})
	w.finish(err)
}

func (h *StatsHandler) resolve(c *gin.Context) *models.QRCode {
	qr, err := h.qrRepo.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil
	}
	if qr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "QR code not found"})
		return nil
	}
	return qr
}

// GetQRCodeStats returns headline numbers and 30 zero-filled days for one QR code
// GET /api/qrcodes/:id/stats
func (h *StatsHandler) GetQRCodeStats(c *gin.Context) {
	qr := h.resolve(c)
	if qr == nil {
		return
	}
	ctx := c.Request.Context()
	now := h.now().UTC()
	start := lastNDays(now, statsWindowDays)

	summary, err := h.statsRepo.Summary(ctx, qr.ID, now.AddDate(0, 0, -statsWindowDays))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	buckets, err := h.statsRepo.ScanSeries(ctx, repositories.ScanFilter{QRCodeID: qr.ID, Start: start}, repositories.GroupByDay)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, QRCodeStats{
		ID:            qr.ID,
		Name:          qr.Name,
		ShortCode:     qr.ShortCode,
		QRCodeSummary: *summary,
		DailyScans:    ZeroFill(buckets, start, now, repositories.GroupByDay),
	})
}

func labelMap(rows []models.LabelCount) map[string]int64 {
	m := make(map[string]int64, len(rows))
	for _, r := range rows {
		m[r.Label] = r.Count
	}
	return m
}

// histogramMap zero-fills keys 0..size-1
func histogramMap(rows []models.IntCount, size int) map[int]int64 {
	m := make(map[int]int64, size)
	for i := 0; i < size; i++ {
		m[i] = 0
	}
	for _, r := range rows {
		if r.Key >= 0 && r.Key < size {
			m[r.Key] = r.Count
		}
	}
	return m
}

// GetEnhancedStats returns per-dimension breakdowns for one QR code
// GET /api/qrcodes/:id/enhanced-stats
func (h *StatsHandler) GetEnhancedStats(c *gin.Context) {
	qr := h.resolve(c)
	if qr == nil {
		return
	}
	stats, err := h.enhanced(c.Request.Context(), qr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *StatsHandler) enhanced(ctx context.Context, qr *models.QRCode) (*EnhancedStats, error) {
	stats := &EnhancedStats{ID: qr.ID, Name: qr.Name, ShortCode: qr.ShortCode}

	buckets, err := h.statsRepo.ScanSeries(ctx, repositories.ScanFilter{QRCodeID: qr.ID}, repositories.GroupByDay)
	if err != nil {
		return nil, err
	}
	stats.DailyScans = make([]models.DateCount, 0, len(buckets))
	for _, b := range buckets {
		stats.DailyScans = append(stats.DailyScans, models.DateCount{
			Date:  b.Bucket.Format(bucketLayouts[repositories.GroupByDay]),
			Count: b.Count,
		})
	}

	breakdowns := []struct {
		column string
		dst    *map[string]int64
	}{
		{"country", &stats.ScansByCountry},
		{"device_type", &stats.ScansByDevice},
		{"os_family", &stats.ScansByOS},
		{"browser_family", &stats.ScansByBrowser},
	}
	for _, b := range breakdowns {
		rows, err := h.statsRepo.Breakdown(ctx, qr.ID, b.column, 0)
		if err != nil {
			return nil, err
		}
		*b.dst = labelMap(rows)
	}

	hours, err := h.statsRepo.HourHistogram(ctx, qr.ID)
	if err != nil {
		return nil, err
	}
	stats.ScansByHour = histogramMap(hours, 24)

	weekdays, err := h.statsRepo.WeekdayHistogram(ctx, qr.ID)
	if err != nil {
		return nil, err
	}
	stats.ScansByWeekday = histogramMap(weekdays, 7)

	engagement, err := h.statsRepo.Engagement(ctx, qr.ID)
	if err != nil {
		return nil, err
	}
	stats.TotalScans = engagement.TotalScans
	if engagement.AvgTimeOnPage != nil {
		stats.AvgTimeOnPage = math.Round(*engagement.AvgTimeOnPage*100) / 100
	}
	if engagement.TotalScans > 0 {
		stats.ScrollRate = math.Round(float64(engagement.ScrolledCount) / float64(engagement.TotalScans) * 100)
	}

	referrers, err := h.statsRepo.TopReferrers(ctx, qr.ID, topReferrersLimit)
	if err != nil {
		return nil, err
	}
	stats.TopReferrers = labelMap(referrers)

	if stats.Scans, err = h.scanRepo.ListByQRCode(ctx, qr.ID, recentScansInStats, 0); err != nil {
		return nil, err
	}
	return stats, nil
}
