package qrimage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qr-tracker/qr-tracker/internal/storage"
	"github.com/qr-tracker/qr-tracker/internal/telemetry"
	"github.com/qr-tracker/qr-tracker/pkg/checksum"
)

// Renderer serves PNGs from a storage cache, rendering on miss.
// A nil store disables caching.
type Renderer struct {
	store storage.Storage
}

// NewRenderer returns a Renderer backed by store
func NewRenderer(store storage.Storage) *Renderer {
	return &Renderer{store: store}
}

// Image is a rendered PNG plus its strong ETag
type Image struct {
	Data []byte
	ETag string
}

// CacheKey returns the storage path for a rendering. The content hash
// segment changes whenever the public URL changes, so stale images are
// never served after a host move.
func CacheKey(shortCode, content string, size int) string {
	return fmt.Sprintf("%s%s/%d.png", cachePrefix(shortCode), checksum.Short([]byte(content), 16), size)
}

func cachePrefix(shortCode string) string {
	return "qr/" + shortCode + "/"
}

// ETag returns a quoted strong validator for data
func ETag(data []byte) string {
	return `"` + checksum.Short(data, 32) + `"`
}

// PNG returns the image for shortCode encoding content at size.
// Cache read and write failures are logged and never fail the request.
func (r *Renderer) PNG(ctx context.Context, shortCode, content string, size int) (*Image, error) {
	if err := ValidateSize(size); err != nil {
		return nil, err
	}
	key := CacheKey(shortCode, content, size)

	if r.store != nil {
		data, err := r.store.Get(ctx, key)
		switch {
		case err == nil:
			telemetry.QRImageCacheTotal.WithLabelValues("hit").Inc()
			return &Image{Data: data, ETag: ETag(data)}, nil
		case errors.Is(err, storage.ErrNotFound):
			telemetry.QRImageCacheTotal.WithLabelValues("miss").Inc()
		default:
			telemetry.QRImageCacheTotal.WithLabelValues("error").Inc()
			slog.Warn("qr image cache read failed", "key", key, "error", err)
		}
	}

	data, err := RenderPNG(content, size)
	if err != nil {
		return nil, err
	}

	if r.store != nil {
		if err := r.store.Put(ctx, key, data, ContentType); err != nil {
			telemetry.QRImageCacheTotal.WithLabelValues("error").Inc()
			slog.Warn("qr image cache write failed", "key", key, "error", err)
		}
	}
	return &Image{Data: data, ETag: ETag(data)}, nil
}

// Invalidate drops every cached rendering of shortCode
func (r *Renderer) Invalidate(ctx context.Context, shortCode string) error {
	if r.store == nil || shortCode == "" {
		return nil
	}
	if err := r.store.DeletePrefix(ctx, cachePrefix(shortCode)); err != nil {
		return fmt.Errorf("failed to invalidate images for %s: %w", shortCode, err)
	}
	return nil
}

// Ping reports whether the backing store is reachable
func (r *Renderer) Ping(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	if _, err := r.store.Exists(ctx, "qr/.probe"); err != nil {
		return fmt.Errorf("storage probe failed: %w", err)
	}
	return nil
}
