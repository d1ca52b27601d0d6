package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
)

// Bucket granularities accepted by ScanSeries
const (
	GroupByHour  = "hour"
	GroupByDay   = "day"
	GroupByMonth = "month"
)

// breakdownColumns whitelists the scan columns that can be grouped on
var breakdownColumns = map[string]bool{
	"country":         true,
	"region":          true,
	"city":            true,
	"device_type":     true,
	"os_family":       true,
	"browser_family":  true,
	"referrer_domain": true,
	"scan_method":     true,
}

// ScanFilter narrows aggregate queries. Zero values mean "no restriction".
type ScanFilter struct {
	QRCodeID int64
	Folder   string
	Start    time.Time
	End      time.Time
}

// where renders the filter as SQL against scans s joined to qrcodes q
func (f ScanFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.QRCodeID > 0 {
		args = append(args, f.QRCodeID)
		conds = append(conds, fmt.Sprintf("s.qrcode_id = $%d", len(args)))
	}
	if !isAllFolders(f.Folder) {
		if f.Folder == models.UncategorizedFolder {
			conds = append(conds, "(q.folder IS NULL OR q.folder = '')")
		} else {
			args = append(args, f.Folder)
			conds = append(conds, fmt.Sprintf("q.folder = $%d", len(args)))
		}
	}
	if !f.Start.IsZero() {
		args = append(args, f.Start)
		conds = append(conds, fmt.Sprintf("s.timestamp >= $%d", len(args)))
	}
	if !f.End.IsZero() {
		args = append(args, f.End)
		conds = append(conds, fmt.Sprintf("s.timestamp <= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// StatsRepository runs the aggregate queries behind the dashboard and per-code statistics
type StatsRepository struct {
	db *sqlx.DB
}

// NewStatsRepository creates a new StatsRepository
func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountQRCodes counts QR codes in a folder ("" for all)
func (r *StatsRepository) CountQRCodes(ctx context.Context, folder string) (int64, error) {
	where, args := folderClause("q", folder, 1)
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM qrcodes q`+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count qr codes: %w", err)
	}
	return n, nil
}

// CountScans counts scans matching f
func (r *StatsRepository) CountScans(ctx context.Context, f ScanFilter) (int64, error) {
	where, args := f.where()
	var n int64
	query := `SELECT COUNT(*) FROM scans s JOIN qrcodes q ON q.id = s.qrcode_id` + where
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return n, nil
}

// FirstScanTime returns the timestamp of the oldest scan matching f, or nil when there are none
func (r *StatsRepository) FirstScanTime(ctx context.Context, f ScanFilter) (*time.Time, error) {
	where, args := f.where()
	var first sql.NullTime
	query := `SELECT MIN(s.timestamp) FROM scans s JOIN qrcodes q ON q.id = s.qrcode_id` + where
	if err := r.db.GetContext(ctx, &first, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load first scan time: %w", err)
	}
	if !first.Valid {
		return nil, nil
	}
	return &first.Time, nil
}

// ScanSeries groups matching scans into UTC buckets of the given granularity.
// Only non-empty buckets are returned; callers zero-fill the gaps.
func (r *StatsRepository) ScanSeries(ctx context.Context, f ScanFilter, groupBy string) ([]models.BucketCount, error) {
	switch groupBy {
	case GroupByHour, GroupByDay, GroupByMonth:
	default:
		return nil, fmt.Errorf("invalid grouping: %s", groupBy)
	}
	where, args := f.where()
	query := fmt.Sprintf(`
		SELECT date_trunc('%s', s.timestamp AT TIME ZONE 'UTC') AS bucket, COUNT(*) AS count
		FROM scans s JOIN qrcodes q ON q.id = s.qrcode_id%s
		GROUP BY bucket
		ORDER BY bucket`, groupBy, where)

	buckets := []models.BucketCount{}
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load scan series: %w", err)
	}
	return buckets, nil
}

// TopQRCodes returns the limit QR codes with the most scans matching f. The outer
// join keeps codes with zero scans in the ranking.
func (r *StatsRepository) TopQRCodes(ctx context.Context, f ScanFilter, limit int) ([]models.TopQRCode, error) {
	var joinConds []string
	var args []interface{}
	if !f.Start.IsZero() {
		args = append(args, f.Start)
		joinConds = append(joinConds, fmt.Sprintf("s.timestamp >= $%d", len(args)))
	}
	if !f.End.IsZero() {
		args = append(args, f.End)
		joinConds = append(joinConds, fmt.Sprintf("s.timestamp <= $%d", len(args)))
	}
	join := "LEFT JOIN scans s ON s.qrcode_id = q.id"
	if len(joinConds) > 0 {
		join += " AND " + strings.Join(joinConds, " AND ")
	}

	where, folderArgs := folderClause("q", f.Folder, len(args)+1)
	args = append(args, folderArgs...)
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT q.id, q.name, q.short_code, q.folder, COUNT(s.id) AS scan_count
		FROM qrcodes q
		%s%s
		GROUP BY q.id, q.name, q.short_code, q.folder
		ORDER BY scan_count DESC, q.id ASC
		LIMIT $%d`, join, where, len(args))

	top := []models.TopQRCode{}
	if err := r.db.SelectContext(ctx, &top, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load top qr codes: %w", err)
	}
	return top, nil
}

// Summary returns the headline numbers for one QR code. recentSince bounds RecentScans.
func (r *StatsRepository) Summary(ctx context.Context, qrcodeID int64, recentSince time.Time) (*models.QRCodeSummary, error) {
	query := `
		SELECT
			COUNT(*) AS total_scans,
			COUNT(*) FILTER (WHERE timestamp >= $2) AS recent_scans,
			MAX(timestamp) AS last_scan_time,
			COUNT(DISTINCT NULLIF(country, '')) AS unique_countries,
			COUNT(DISTINCT NULLIF(city, '')) AS unique_cities
		FROM scans
		WHERE qrcode_id = $1`

	var summary models.QRCodeSummary
	if err := r.db.GetContext(ctx, &summary, query, qrcodeID, recentSince); err != nil {
		return nil, fmt.Errorf("failed to load scan summary: %w", err)
	}
	return &summary, nil
}

// Breakdown counts a QR code's scans grouped by column, most frequent first.
// NULL and empty values are reported as "Unknown". A limit of 0 returns all groups.
func (r *StatsRepository) Breakdown(ctx context.Context, qrcodeID int64, column string, limit int) ([]models.LabelCount, error) {
	if !breakdownColumns[column] {
		return nil, fmt.Errorf("invalid breakdown column: %s", column)
	}
	query := fmt.Sprintf(`
		SELECT COALESCE(NULLIF(%s, ''), 'Unknown') AS label, COUNT(*) AS count
		FROM scans
		WHERE qrcode_id = $1
		GROUP BY label
		ORDER BY count DESC, label ASC`, column)
	args := []interface{}{qrcodeID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows := []models.LabelCount{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load %s breakdown: %w", column, err)
	}
	return rows, nil
}

// TopReferrers counts a QR code's scans by referrer domain, ignoring scans without one
func (r *StatsRepository) TopReferrers(ctx context.Context, qrcodeID int64, limit int) ([]models.LabelCount, error) {
	query := `
		SELECT referrer_domain AS label, COUNT(*) AS count
		FROM scans
		WHERE qrcode_id = $1 AND referrer_domain IS NOT NULL AND referrer_domain <> ''
		GROUP BY referrer_domain
		ORDER BY count DESC, label ASC
		LIMIT $2`

	rows := []models.LabelCount{}
	if err := r.db.SelectContext(ctx, &rows, query, qrcodeID, limit); err != nil {
		return nil, fmt.Errorf("failed to load top referrers: %w", err)
	}
	return rows, nil
}

// HourHistogram counts a QR code's scans by UTC hour of day (0-23)
func (r *StatsRepository) HourHistogram(ctx context.Context, qrcodeID int64) ([]models.IntCount, error) {
	return r.histogram(ctx, qrcodeID, "HOUR")
}

// WeekdayHistogram counts a QR code's scans by UTC weekday (0=Sunday..6=Saturday)
func (r *StatsRepository) WeekdayHistogram(ctx context.Context, qrcodeID int64) ([]models.IntCount, error) {
	return r.histogram(ctx, qrcodeID, "DOW")
}

func (r *StatsRepository) histogram(ctx context.Context, qrcodeID int64, field string) ([]models.IntCount, error) {
	query := fmt.Sprintf(`
		SELECT EXTRACT(%s FROM timestamp AT TIME ZONE 'UTC')::int AS key, COUNT(*) AS count
		FROM scans
		WHERE qrcode_id = $1
		GROUP BY key
		ORDER BY key`, field)

	rows := []models.IntCount{}
	if err := r.db.SelectContext(ctx, &rows, query, qrcodeID); err != nil {
		return nil, fmt.Errorf("failed to load %s histogram: %w", strings.ToLower(field), err)
	}
	return rows, nil
}

// Engagement averages time on page and counts scrolled scans for one QR code
func (r *StatsRepository) Engagement(ctx context.Context, qrcodeID int64) (*models.Engagement, error) {
	query := `
		SELECT
			AVG(time_on_page)::float8 AS avg_time_on_page,
			COUNT(*) FILTER (WHERE scrolled) AS scrolled_count,
			COUNT(*) AS total_scans
		FROM scans
		WHERE qrcode_id = $1`

	var e models.Engagement
	if err := r.db.GetContext(ctx, &e, query, qrcodeID); err != nil {
		return nil, fmt.Errorf("failed to load engagement: %w", err)
	}
	return &e, nil
}
