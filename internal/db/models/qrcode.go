// Package models defines the records persisted by the QR tracker: QR codes,
// the scans logged against them, folders, and user accounts.
package models

import (
	"strings"
	"time"
)

// UncategorizedFolder is the pseudo-folder that matches QR codes with no folder label
const UncategorizedFolder = "Uncategorized"

// DefaultQRCodeName is used when a QR code is created without a name
const DefaultQRCodeName = "Untitled QR Code"

// QRCode is a short code that redirects to TargetURL
type QRCode struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	TargetURL string    `db:"target_url" json:"target_url"`
	ShortCode string    `db:"short_code" json:"short_code"`
	Folder    *string   `db:"folder" json:"folder"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`

	// ScanCount is populated by list/get queries that join scans
	ScanCount int64 `db:"scan_count" json:"scan_count"`
}

// QRCodeUpdate carries a partial update; nil fields are left unchanged
type QRCodeUpdate struct {
	Name      *string
	TargetURL *string
	// Folder set to a pointer to "" clears the folder
	Folder *string
}

// IsEmpty reports whether the update would change nothing
func (u *QRCodeUpdate) IsEmpty() bool {
	return u.Name == nil && u.TargetURL == nil && u.Folder == nil
}

// NormalizeFolder trims a folder label and maps blank labels to nil
func NormalizeFolder(folder *string) *string {
	if folder == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*folder)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
