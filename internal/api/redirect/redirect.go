// Package redirect implements the public short-link endpoint. It is unauthenticated
// because the URL is printed on posters and encoded in QR images; every hit is
// logged as a scan before the visitor is sent on to the target URL.
package redirect

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
	"github.com/qr-tracker/qr-tracker/internal/events"
	"github.com/qr-tracker/qr-tracker/internal/safego"
	"github.com/qr-tracker/qr-tracker/internal/telemetry"
	"github.com/qr-tracker/qr-tracker/internal/visitor"
)

// publishTimeout bounds one scans.recorded publish
const publishTimeout = 5 * time.Second

// ScanMethod returns the ?via= value when it names a known method, else "qr"
func ScanMethod(via string) string {
	if models.ValidScanMethod(via) {
		return via
	}
	return models.ScanMethodQR
}

// @Summary      Follow short link
// @Description  Logs a scan and redirects to the QR code's target URL.
// @Tags         Redirect
// @Param        short_code  path   string  true   "Short code"
// @Param        via         query  string  false  "Scan method: qr, link, nfc, direct"
// @Success      302  "Found; Location is the target URL"
// @Failure      404  {object}  map[string]interface{}  "QR code not found"
// @Failure      429  {object}  map[string]interface{}  "Rate limit exceeded"
// @Router       /r/{short_code} [get]
// RedirectHandler handles GET /r/:short_code
func RedirectHandler(db *sqlx.DB, publisher events.Publisher, cfg *config.Config) gin.HandlerFunc {
	qrRepo := repositories.NewQRCodeRepository(db)
	scanRepo := repositories.NewScanRepository(db)
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	return func(c *gin.Context) {
		shortCode := c.Param("short_code")

		qr, err := qrRepo.GetByShortCode(c.Request.Context(), shortCode)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if qr == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "QR code not found"})
			return
		}

		clientIP := c.ClientIP()
		if !(cfg.Tracking.IgnoreLoopback && visitor.IsLoopback(clientIP)) {
			scan := &models.Scan{QRCodeID: qr.ID, ScanMethod: ScanMethod(c.Query("via"))}
			info := visitor.FromRequest(c.Request, clientIP, cfg.Tracking.TrustProxyHeaders)
			info.ApplyTo(scan)

			// A lost scan must never cost the visitor their redirect
			if err := scanRepo.Create(c.Request.Context(), scan); err != nil {
				telemetry.ScanRecordFailuresTotal.Inc()
				slog.Error("failed to record scan", "short_code", shortCode, "error", err)
			} else {
				device := info.DeviceType
				if device == "" {
					device = "unknown"
				}
				telemetry.ScansTotal.WithLabelValues(scan.ScanMethod, device).Inc()
				publish(publisher, events.ScanRecorded{
					ScanID:     scan.ID,
					QRCodeID:   qr.ID,
					ShortCode:  qr.ShortCode,
					Timestamp:  scan.Timestamp,
					ScanMethod: scan.ScanMethod,
					DeviceType: info.DeviceType,
					Country:    info.Country,
				})
			}
		}

		c.Header("Cache-Control", "no-store")
		c.Redirect(http.StatusFound, qr.TargetURL)
	}
}

// publish sends ev in the background so broker latency never delays the redirect
func publish(publisher events.Publisher, ev events.ScanRecorded) {
	safego.GoNamed("publish-scan-event", func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := publisher.PublishScan(ctx, ev); err != nil {
			slog.Warn("failed to publish scan event", "scan_id", ev.ScanID, "error", err)
		}
	})
}
