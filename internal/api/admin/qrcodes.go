// qrcodes.go implements QR code CRUD, image rendering, and per-code scan listings.
package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/auth"
	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
	"github.com/qr-tracker/qr-tracker/internal/middleware"
	"github.com/qr-tracker/qr-tracker/internal/qrimage"
	"github.com/qr-tracker/qr-tracker/internal/telemetry"
)

// maxShortCodeAttempts bounds retries when a generated short code collides
const maxShortCodeAttempts = 5

// Scan page limits for GET /api/qrcodes/:id/scans
const (
	defaultScanPageSize = 50
	maxScanPageSize     = 500
)

// QRCodeHandlers handles QR code management endpoints
type QRCodeHandlers struct {
	cfg      *config.Config
	qrRepo   *repositories.QRCodeRepository
	scanRepo *repositories.ScanRepository
	renderer *qrimage.Renderer
}

// NewQRCodeHandlers creates a new QRCodeHandlers instance
func NewQRCodeHandlers(cfg *config.Config, db *sqlx.DB, renderer *qrimage.Renderer) *QRCodeHandlers {
	return &QRCodeHandlers{
		cfg:      cfg,
		qrRepo:   repositories.NewQRCodeRepository(db),
		scanRepo: repositories.NewScanRepository(db),
		renderer: renderer,
	}
}

// QRCodeResponse is a QR code as returned by the API
type QRCodeResponse struct {
	models.QRCode
	ShortURL    string `json:"short_url"`
	QRCodeImage string `json:"qr_code_image,omitempty"`
}

type createQRCodeRequest struct {
	Name      string  `json:"name"`
	TargetURL string  `json:"target_url"`
	Folder    *string `json:"folder"`
}

type updateQRCodeRequest struct {
	Name      *string `json:"name"`
	TargetURL *string `json:"target_url"`
	Folder    *string `json:"folder"`
}

// isReservedFolder reports whether folder names the pseudo-folder used to filter unfiled codes
func isReservedFolder(folder *string) bool {
	return folder != nil && strings.TrimSpace(*folder) == models.UncategorizedFolder
}

// ShortURL returns the public redirect URL for a short code
func ShortURL(cfg *config.Config, shortCode string) string {
	return cfg.Server.GetPublicURL() + "/r/" + shortCode
}

// validateTargetURL accepts absolute http and https URLs only
func validateTargetURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("target_url is not a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("target_url must use http or https")
	}
	if u.Host == "" {
		return errors.New("target_url must include a host")
	}
	return nil
}

func (h *QRCodeHandlers) response(qr *models.QRCode) QRCodeResponse {
	return QRCodeResponse{QRCode: *qr, ShortURL: ShortURL(h.cfg, qr.ShortCode)}
}

// withImage attaches the inline PNG. A rendering failure leaves the field empty.
func (h *QRCodeHandlers) withImage(c *gin.Context, qr *models.QRCode) QRCodeResponse {
	resp := h.response(qr)
	img, err := h.renderer.PNG(c.Request.Context(), qr.ShortCode, resp.ShortURL, h.defaultImageSize())
	if err != nil {
		slog.Warn("failed to render qr image", "short_code", qr.ShortCode, "error", err)
		return resp
	}
	resp.QRCodeImage = qrimage.DataURI(img.Data)
	return resp
}

func (h *QRCodeHandlers) defaultImageSize() int {
	if size := h.cfg.QRCode.DefaultImageSize; size > 0 {
		return size
	}
	return qrimage.DefaultSize
}

func (h *QRCodeHandlers) shortCodeLength() int {
	if n := h.cfg.QRCode.ShortCodeLength; n > 0 {
		return n
	}
	return 8
}

// resolve loads the QR code named by :id and writes the error response itself
// when it cannot. A nil return means the request has been answered.
func (h *QRCodeHandlers) resolve(c *gin.Context) *models.QRCode {
	qr, err := h.qrRepo.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil
	}
	if qr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "QR code not found"})
		return nil
	}
	return qr
}

// @Summary      Create QR code
// @Description  Creates a QR code with a generated short code that redirects to target_url.
// @Tags         QR Codes
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      201  {object}  QRCodeResponse
// @Failure      400  {object}  map[string]interface{}  "target_url missing or invalid"
// @Router       /api/qrcodes [post]
// CreateQRCodeHandler creates a QR code
// POST /api/qrcodes
func (h *QRCodeHandlers) CreateQRCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createQRCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		req.TargetURL = strings.TrimSpace(req.TargetURL)
		if req.TargetURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "target_url is required"})
			return
		}
		if err := validateTargetURL(req.TargetURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if isReservedFolder(req.Folder) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder name is reserved"})
			return
		}

		qr := &models.QRCode{
			Name:      strings.TrimSpace(req.Name),
			TargetURL: req.TargetURL,
			Folder:    models.NormalizeFolder(req.Folder),
		}
		if qr.Name == "" {
			qr.Name = models.DefaultQRCodeName
		}
		if user := middleware.CurrentUser(c); user != nil {
			qr.UserID = &user.ID
		}

		var err error
		for attempt := 0; attempt < maxShortCodeAttempts; attempt++ {
			qr.ShortCode, err = auth.GenerateShortCode(h.shortCodeLength())
			if err != nil {
				break
			}
			err = h.qrRepo.Create(c.Request.Context(), qr)
			if !errors.Is(err, repositories.ErrShortCodeTaken) {
				break
			}
			slog.Debug("short code collision, retrying", "attempt", attempt+1)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		telemetry.QRCodesCreatedTotal.Inc()
		c.JSON(http.StatusCreated, h.withImage(c, qr))
	}
}

// @Summary      List QR codes
// @Description  Lists QR codes newest first with their scan counts. folder=Uncategorized lists codes without a folder.
// @Tags         QR Codes
// @Security     Bearer
// @Produce      json
// @Param        folder  query  string  false  "Folder filter"
// @Success      200  {array}   QRCodeResponse
// @Router       /api/qrcodes [get]
// ListQRCodesHandler lists QR codes
// GET /api/qrcodes?folder=X
func (h *QRCodeHandlers) ListQRCodesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		qrcodes, err := h.qrRepo.List(c.Request.Context(), c.Query("folder"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		out := make([]QRCodeResponse, 0, len(qrcodes))
		for i := range qrcodes {
			out = append(out, h.response(&qrcodes[i]))
		}
		c.JSON(http.StatusOK, out)
	}
}

// GetQRCodeHandler returns one QR code with its inline image.
// :id is a short code or a numeric ID.
// GET /api/qrcodes/:id
func (h *QRCodeHandlers) GetQRCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		qr := h.resolve(c)
		if qr == nil {
			return
		}
		c.JSON(http.StatusOK, h.withImage(c, qr))
	}
}

// @Summary      Update QR code
// @Description  Partially updates name, target_url, and folder. An empty folder clears it.
// @Tags         QR Codes
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id  path  string  true  "Short code or numeric ID"
// @Success      200  {object}  QRCodeResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid field or empty update"
// @Failure      404  {object}  map[string]interface{}  "QR code not found"
// @Router       /api/qrcodes/{id} [put]
// UpdateQRCodeHandler updates a QR code
// PUT|PATCH /api/qrcodes/:id
func (h *QRCodeHandlers) UpdateQRCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateQRCodeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		if isReservedFolder(req.Folder) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder name is reserved"})
			return
		}
		upd := models.QRCodeUpdate{Folder: req.Folder}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "name cannot be empty"})
				return
			}
			upd.Name = &name
		}
		if req.TargetURL != nil {
			target := strings.TrimSpace(*req.TargetURL)
			if err := validateTargetURL(target); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			upd.TargetURL = &target
		}
		if upd.IsEmpty() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
			return
		}

		qr := h.resolve(c)
		if qr == nil {
			return
		}

		updated, err := h.qrRepo.Update(c.Request.Context(), qr.ID, upd)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if updated == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "QR code not found"})
			return
		}
		c.JSON(http.StatusOK, h.response(updated))
	}
}

// DeleteQRCodeHandler deletes a QR code, its scans, and its cached images
// DELETE /api/qrcodes/:id
func (h *QRCodeHandlers) DeleteQRCodeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		qr := h.resolve(c)
		if qr == nil {
			return
		}

		deleted, err := h.qrRepo.Delete(c.Request.Context(), qr.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "QR code not found"})
			return
		}

		if err := h.renderer.Invalidate(c.Request.Context(), qr.ShortCode); err != nil {
			slog.Warn("failed to invalidate cached images", "short_code", qr.ShortCode, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"message": "QR code deleted successfully"})
	}
}

// @Summary      QR code image
// @Description  Returns the QR code as a PNG encoding its short URL. Public; served from the blob cache when possible.
// @Tags         QR Codes
// @Produce      png
// @Param        id    path   string  true   "Short code or numeric ID"
// @Param        size  query  int     false  "Edge length in pixels (64-1024)"
// @Success      200  {file}  binary
// @Success      304  "Not Modified"
// @Failure      400  {object}  map[string]interface{}  "Invalid size"
// @Failure      404  {object}  map[string]interface{}  "QR code not found"
// @Router       /api/qrcodes/{id}/image [get]
// ImageHandler serves the PNG for a QR code
// GET /api/qrcodes/:id/image?size=N
func (h *QRCodeHandlers) ImageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		size := h.defaultImageSize()
		if raw := c.Query("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": qrimage.ErrInvalidSize.Error()})
				return
			}
			size = n
		}
		if err := qrimage.ValidateSize(size); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		qr := h.resolve(c)
		if qr == nil {
			return
		}

		img, err := h.renderer.PNG(c.Request.Context(), qr.ShortCode, ShortURL(h.cfg, qr.ShortCode), size)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.Header("ETag", img.ETag)
		c.Header("Cache-Control", "public, max-age=86400")
		if match := c.GetHeader("If-None-Match"); match != "" && match == img.ETag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Data(http.StatusOK, qrimage.ContentType, img.Data)
	}
}

// ListScansHandler returns a page of a QR code's scans, newest first
// GET /api/qrcodes/:id/scans?limit=50&offset=0
func (h *QRCodeHandlers) ListScansHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultScanPageSize)))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if limit < 1 || limit > maxScanPageSize {
			limit = defaultScanPageSize
		}
		if offset < 0 {
			offset = 0
		}

		qr := h.resolve(c)
		if qr == nil {
			return
		}

		scans, err := h.scanRepo.ListByQRCode(c.Request.Context(), qr.ID, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"qrcode_id":  qr.ID,
			"short_code": qr.ShortCode,
			"total":      qr.ScanCount,
			"limit":      limit,
			"offset":     offset,
			"scans":      scans,
		})
	}
}

// ExportScansCSVHandler streams every scan of a QR code as CSV
// GET /api/qrcodes/:id/scans.csv
func (h *QRCodeHandlers) ExportScansCSVHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		qr := h.resolve(c)
		if qr == nil {
			return
		}

		w := newCSVResponse(c, "scans_"+qr.ShortCode+".csv", scanCSVHeader)
		err := h.scanRepo.EachByQRCode(c.Request.Context(), qr.ID, func(s *models.Scan) error {
			return w.Write(scanCSVRecord(s))
		})
		w.finish(err)
	}
}
