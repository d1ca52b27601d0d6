// Package checksum provides SHA-256 helpers used for QR image cache keys and
// HTTP ETags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the lowercase hex SHA256 of data
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Short returns the first n hex characters of SHA256Hex(data). n is clamped
// to the full 64-character digest.
func Short(data []byte, n int) string {
	h := SHA256Hex(data)
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}
