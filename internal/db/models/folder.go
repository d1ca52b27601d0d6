package models

import "time"

// Folder is a named group of QR codes. Membership is the qrcodes.folder label;
// the folders table lets a folder exist before any QR code is filed in it.
type Folder struct {
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
