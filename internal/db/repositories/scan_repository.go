package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
)

const scanColumns = `s.id, s.qrcode_id, s.timestamp, s.ip_address, s.user_agent, s.device_type,
	s.os_family, s.browser_family, s.country, s.region, s.city, s.timezone,
	s.referrer_domain, s.time_on_page, s.scrolled, s.scan_method`

// ScanRepository handles scan database operations
type ScanRepository struct {
	db *sqlx.DB
}

// NewScanRepository creates a new ScanRepository
func NewScanRepository(db *sqlx.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create records a scan and fills in its ID and Timestamp
func (r *ScanRepository) Create(ctx context.Context, scan *models.Scan) error {
	if scan.ScanMethod == "" {
		scan.ScanMethod = models.ScanMethodQR
	}
	query := `
		INSERT INTO scans (qrcode_id, ip_address, user_agent, device_type, os_family, browser_family,
			country, region, city, timezone, referrer_domain, time_on_page, scrolled, scan_method)
		VALUES (:qrcode_id, :ip_address, :user_agent, :device_type, :os_family, :browser_family,
			:country, :region, :city, :timezone, :referrer_domain, :time_on_page, :scrolled, :scan_method)
		RETURNING id, timestamp
	`
	rows, err := r.db.NamedQueryContext(ctx, query, scan)
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to record scan: %w", err)
		}
		return fmt.Errorf("failed to record scan: no row returned")
	}
	if err := rows.Scan(&scan.ID, &scan.Timestamp); err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}

// ListByQRCode returns a page of a QR code's scans, newest first.
// A limit of 0 returns every scan.
func (r *ScanRepository) ListByQRCode(ctx context.Context, qrcodeID int64, limit, offset int) ([]models.Scan, error) {
	query := `SELECT ` + scanColumns + ` FROM scans s WHERE s.qrcode_id = $1 ORDER BY s.timestamp DESC, s.id DESC`
	args := []interface{}{qrcodeID}
	if limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	scans := []models.Scan{}
	if err := r.db.SelectContext(ctx, &scans, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

// EachByQRCode streams every scan of a QR code, newest first, to fn.
// Iteration stops at the first error returned by fn.
func (r *ScanRepository) EachByQRCode(ctx context.Context, qrcodeID int64, fn func(*models.Scan) error) error {
	query := `SELECT ` + scanColumns + ` FROM scans s WHERE s.qrcode_id = $1 ORDER BY s.timestamp DESC, s.id DESC`
	rows, err := r.db.QueryxContext(ctx, query, qrcodeID)
	if err != nil {
		return fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scan models.Scan
		if err := rows.StructScan(&scan); err != nil {
			return fmt.Errorf("failed to read scan: %w", err)
		}
		if err := fn(&scan); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EachForExport streams every scan joined with its QR code, newest first
func (r *ScanRepository) EachForExport(ctx context.Context, fn func(*models.ScanExportRow) error) error {
	query := `SELECT ` + scanColumns + `, q.name AS qrcode_name, q.short_code AS qrcode_short_code
		FROM scans s JOIN qrcodes q ON q.id = s.qrcode_id
		ORDER BY s.timestamp DESC, s.id DESC`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row models.ScanExportRow
		if err := rows.StructScan(&row); err != nil {
			return fmt.Errorf("failed to read scan: %w", err)
		}
		if err := fn(&row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DeleteOlderThan removes scans recorded before cutoff and returns how many were deleted
func (r *ScanRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scans WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune scans: %w", err)
	}
	return n, nil
}
