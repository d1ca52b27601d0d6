package models

import "time"

// Scan methods accepted from the ?via= query parameter on redirects
const (
	ScanMethodQR     = "qr"
	ScanMethodLink   = "link"
	ScanMethodNFC    = "nfc"
	ScanMethodDirect = "direct"
)

// ValidScanMethod reports whether m is a known scan method
func ValidScanMethod(m string) bool {
	switch m {
	case ScanMethodQR, ScanMethodLink, ScanMethodNFC, ScanMethodDirect:
		return true
	}
	return false
}

// Scan is one logged redirect through a QR code's short link
type Scan struct {
	ID             int64     `db:"id" json:"id"`
	QRCodeID       int64     `db:"qrcode_id" json:"qrcode_id"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	IPAddress      *string   `db:"ip_address" json:"ip_address"`
	UserAgent      *string   `db:"user_agent" json:"user_agent"`
	DeviceType     *string   `db:"device_type" json:"device_type"`
	OSFamily       *string   `db:"os_family" json:"os_family"`
	BrowserFamily  *string   `db:"browser_family" json:"browser_family"`
	Country        *string   `db:"country" json:"country"`
	Region         *string   `db:"region" json:"region"`
	City           *string   `db:"city" json:"city"`
	Timezone       *string   `db:"timezone" json:"timezone"`
	ReferrerDomain *string   `db:"referrer_domain" json:"referrer_domain"`
	TimeOnPage     *int      `db:"time_on_page" json:"time_on_page"`
	Scrolled       bool      `db:"scrolled" json:"scrolled"`
	ScanMethod     string    `db:"scan_method" json:"scan_method"`
}

// ScanExportRow is a scan joined with its QR code, used by the global CSV export
type ScanExportRow struct {
	Scan
	QRCodeName      string `db:"qrcode_name"`
	QRCodeShortCode string `db:"qrcode_short_code"`
}
