package admin

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
)

var scanCSVHeader = []string{
	"ID", "Timestamp", "IP Address", "User Agent", "Country", "Region", "City",
	"Device Type", "OS", "Browser", "Referrer", "Time on Page", "Scrolled", "Scan Method",
}

var exportCSVHeader = []string{
	"Scan ID", "QR Code ID", "QR Code Name", "Short Code", "Timestamp", "IP Address",
	"Country", "Region", "City", "Device Type", "OS", "Browser", "Referrer", "Scan Method",
}

// csvResponse streams CSV rows into a gin response
type csvResponse struct {
	*csv.Writer
	c *gin.Context
}

// newCSVResponse sets download headers and writes the header row
func newCSVResponse(c *gin.Context, filename string, header []string) *csvResponse {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	w := &csvResponse{Writer: csv.NewWriter(c.Writer), c: c}
	_ = w.Write(header)
	return w
}

// finish flushes buffered rows. An error before anything reached the client
// becomes a 500; after that it can only be logged.
func (w *csvResponse) finish(err error) {
	if err != nil && !w.c.Writer.Written() {
		w.c.Header("Content-Disposition", "")
		w.c.Header("Content-Type", "")
		w.c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if err != nil {
		slog.Error("csv export failed", "path", w.c.Request.URL.Path, "error", err)
	}
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func scanCSVRecord(s *models.Scan) []string {
	timeOnPage := ""
	if s.TimeOnPage != nil {
		timeOnPage = strconv.Itoa(*s.TimeOnPage)
	}
	return []string{
		strconv.FormatInt(s.ID, 10),
		s.Timestamp.UTC().Format(time.RFC3339),
		str(s.IPAddress),
		str(s.UserAgent),
		str(s.Country),
		str(s.Region),
		str(s.City),
		str(s.DeviceType),
		str(s.OSFamily),
		str(s.BrowserFamily),
		str(s.ReferrerDomain),
		timeOnPage,
		strconv.FormatBool(s.Scrolled),
		s.ScanMethod,
	}
}

func exportCSVRecord(r *models.ScanExportRow) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		strconv.FormatInt(r.QRCodeID, 10),
		r.QRCodeName,
		r.QRCodeShortCode,
		r.Timestamp.UTC().Format(time.RFC3339),
		str(r.IPAddress),
		str(r.Country),
		str(r.Region),
		str(r.City),
		str(r.DeviceType),
		str(r.OSFamily),
		str(r.BrowserFamily),
		str(r.ReferrerDomain),
		r.ScanMethod,
	}
}
