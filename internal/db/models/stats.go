package models

import "time"

// DateCount is one bucket of a scan time series
type DateCount struct {
	Date  string `db:"date" json:"date"`
	Count int64  `db:"count" json:"count"`
}

// LabelCount is one row of a GROUP BY breakdown (country, device, referrer, ...)
type LabelCount struct {
	Label string `db:"label" json:"label"`
	Count int64  `db:"count" json:"count"`
}

// BucketCount is a scan count keyed by a bucket start time
type BucketCount struct {
	Bucket time.Time `db:"bucket"`
	Count  int64     `db:"count"`
}

// TopQRCode is an entry in the dashboard's most-scanned list
type TopQRCode struct {
	ID        int64   `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	ShortCode string  `db:"short_code" json:"short_code"`
	Folder    *string `db:"folder" json:"folder"`
	ScanCount int64   `db:"scan_count" json:"scan_count"`
}

// QRCodeSummary holds the per-code headline numbers
type QRCodeSummary struct {
	TotalScans      int64      `db:"total_scans" json:"total_scans"`
	RecentScans     int64      `db:"recent_scans" json:"recent_scans"`
	LastScanTime    *time.Time `db:"last_scan_time" json:"last_scan_time"`
	UniqueCountries int64      `db:"unique_countries" json:"unique_countries"`
	UniqueCities    int64      `db:"unique_cities" json:"unique_cities"`
}

// Engagement holds averaged engagement fields across a code's scans
type Engagement struct {
	AvgTimeOnPage *float64 `db:"avg_time_on_page"`
	ScrolledCount int64    `db:"scrolled_count"`
	TotalScans    int64    `db:"total_scans"`
}

// IntCount is a scan count keyed by a small integer (hour of day, weekday)
type IntCount struct {
	Key   int   `db:"key"`
	Count int64 `db:"count"`
}
