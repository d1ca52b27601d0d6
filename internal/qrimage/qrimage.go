// Package qrimage renders QR code PNGs and caches them in blob storage.
//
// Images encode the tracked short URL, never the target URL, so every scan
// passes through the redirect handler.
package qrimage

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const (
	MinSize     = 64
	MaxSize     = 1024
	DefaultSize = 256

	// ContentType of every rendered image
	ContentType = "image/png"

	// quietZone is the white border in modules required around a QR symbol
	quietZone = 4
)

// ErrInvalidSize is returned for sizes outside MinSize..MaxSize
var ErrInvalidSize = fmt.Errorf("size must be between %d and %d", MinSize, MaxSize)

// ValidateSize checks that size is within the supported range
func ValidateSize(size int) error {
	if size < MinSize || size > MaxSize {
		return ErrInvalidSize
	}
	return nil
}

// RenderPNG encodes content as a size×size PNG with a four-module quiet zone.
// Modules are scaled by the largest integer factor that fits and the symbol
// is centred, so edges stay crisp.
func RenderPNG(content string, size int) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr content is empty")
	}
	if err := ValidateSize(size); err != nil {
		return nil, err
	}

	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	modules := code.Bounds().Dx()
	scale := size / (modules + 2*quietZone)
	if scale < 1 {
		return nil, fmt.Errorf("content needs %d modules, too many for a %dpx image", modules, size)
	}

	inner := modules * scale
	scaled, err := barcode.Scale(code, inner, inner)
	if err != nil {
		return nil, fmt.Errorf("failed to scale qr code: %w", err)
	}

	canvas := image.NewGray(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	offset := (size - inner) / 2
	target := image.Rect(offset, offset, offset+inner, offset+inner)
	draw.Draw(canvas, target, scaled, scaled.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI wraps PNG bytes as a data:image/png;base64 URI
func DataURI(pngData []byte) string {
	return "data:" + ContentType + ";base64," + base64.StdEncoding.EncodeToString(pngData)
}
