// Package api wires together all HTTP routes for the QR tracker backend.
//
// Route grouping:
//   - /r/:short_code and /api/qrcodes/:id/image are public. Short links and QR
//     images end up on printed material and third-party pages, so they carry the
//     cross-origin security header profile and no authentication.
//   - /api/auth/register and /api/auth/login are public but rate limited.
//   - Everything else under /api requires a bearer token; the global scan export
//     additionally requires an administrator.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/api/admin"
	"github.com/qr-tracker/qr-tracker/internal/api/redirect"
	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
	"github.com/qr-tracker/qr-tracker/internal/events"
	"github.com/qr-tracker/qr-tracker/internal/jobs"
	"github.com/qr-tracker/qr-tracker/internal/middleware"
	"github.com/qr-tracker/qr-tracker/internal/qrimage"
	"github.com/qr-tracker/qr-tracker/internal/safego"
	"github.com/qr-tracker/qr-tracker/internal/storage"
	"github.com/redis/go-redis/v9"

	// Import storage backends to register them
	_ "github.com/qr-tracker/qr-tracker/internal/storage/azure"
	_ "github.com/qr-tracker/qr-tracker/internal/storage/gcs"
	_ "github.com/qr-tracker/qr-tracker/internal/storage/local"
	_ "github.com/qr-tracker/qr-tracker/internal/storage/s3"
)

// Version is reported by /version and /api/health. cmd/server overrides it.
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	retentionJob *jobs.ScanRetentionJob
	rateLimiters []*middleware.RateLimiter
	publisher    events.Publisher
	redisClient  *redis.Client
	storeCloser  io.Closer
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.retentionJob != nil {
		bg.retentionJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.publisher != nil {
		bg.publisher.Close()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if bg.storeCloser != nil {
		if err := bg.storeCloser.Close(); err != nil {
			slog.Warn("failed to close storage client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// rateLimitConfigs applies configured limits over the built-in presets
func rateLimitConfigs(cfg config.RateLimitingConfig) (redirectCfg, authCfg middleware.RateLimitConfig) {
	redirectCfg = middleware.RedirectRateLimitConfig()
	authCfg = middleware.AuthRateLimitConfig()
	if cfg.RedirectRequestsPerMinute > 0 {
		redirectCfg.RequestsPerMinute = cfg.RedirectRequestsPerMinute
	}
	if cfg.AuthRequestsPerMinute > 0 {
		authCfg.RequestsPerMinute = cfg.AuthRequestsPerMinute
	}
	if cfg.Burst > 0 {
		redirectCfg.BurstSize = cfg.Burst
	}
	return redirectCfg, authCfg
}

// newLimiters returns the redirect and auth limiters, backed by Redis when it
// is enabled and by in-process token buckets otherwise. Both are nil when rate
// limiting is disabled.
func newLimiters(cfg *config.Config, bg *BackgroundServices) (redirectLimiter, authLimiter middleware.Limiter) {
	if !cfg.Security.RateLimiting.Enabled {
		return nil, nil
	}
	redirectCfg, authCfg := rateLimitConfigs(cfg.Security.RateLimiting)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bg.redisClient = client
		slog.Info("rate limiting backed by redis", "addr", cfg.Redis.Addr)
		return middleware.NewRedisRateLimiter(client, "redirect", redirectCfg),
			middleware.NewRedisRateLimiter(client, "auth", authCfg)
	}

	redirectRL := middleware.NewRateLimiter(redirectCfg)
	authRL := middleware.NewRateLimiter(authCfg)
	bg.rateLimiters = append(bg.rateLimiters, redirectRL, authRL)
	return redirectRL, authRL
}

// limit returns the rate limit middleware for l, or a pass-through when l is nil
func limit(l middleware.Limiter) gin.HandlerFunc {
	if l == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimitMiddleware(l)
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Initialize storage backend for the QR image cache
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)
	if closer, ok := storageBackend.(io.Closer); ok {
		bg.storeCloser = closer
	}
	renderer := qrimage.NewRenderer(storageBackend)

	publisher, err := events.NewPublisher(cfg.Events)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize event publisher: %w", err)
	}
	bg.publisher = publisher

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sqlxDB := sqlx.NewDb(db, "postgres")

	// Initialize scan retention job
	retentionJob := jobs.NewScanRetentionJob(repositories.NewScanRepository(sqlxDB),
		cfg.Tracking.RetentionDays, cfg.Tracking.RetentionIntervalHours)
	if retentionJob.Enabled() {
		safego.GoNamed("scan-retention", func() { retentionJob.Start(context.Background()) })
		bg.retentionJob = retentionJob
	}

	redirectLimiter, authLimiter := newLimiters(cfg, bg)

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	publicAssets := middleware.SecurityHeadersMiddleware(middleware.PublicAssetSecurityHeadersConfig())

	// Health, readiness, and version endpoints
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, renderer))
	router.GET("/version", versionHandler())

	// Short links
	router.GET("/r/:short_code", publicAssets, limit(redirectLimiter),
		redirect.RedirectHandler(sqlxDB, publisher, cfg))

	authHandlers := admin.NewAuthHandlers(cfg, db)
	qrHandlers := admin.NewQRCodeHandlers(cfg, sqlxDB, renderer)
	folderHandlers := admin.NewFolderHandlers(sqlxDB, renderer)
	statsHandler := admin.NewStatsHandler(sqlxDB)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/health", apiHealthHandler())

		// QR images are public so they can be embedded anywhere
		apiGroup.GET("/qrcodes/:id/image", publicAssets, qrHandlers.ImageHandler())

		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/register", limit(authLimiter), middleware.OptionalAuthMiddleware(userRepo), authHandlers.RegisterHandler())
			authGroup.POST("/login", limit(authLimiter), authHandlers.LoginHandler())
			authGroup.GET("/me", middleware.AuthMiddleware(userRepo), authHandlers.MeHandler())
		}

		authenticated := apiGroup.Group("")
		authenticated.Use(middleware.AuthMiddleware(userRepo))
		{
			qrGroup := authenticated.Group("/qrcodes")
			{
				qrGroup.GET("", qrHandlers.ListQRCodesHandler())
				qrGroup.POST("", qrHandlers.CreateQRCodeHandler())
				qrGroup.GET("/:id", qrHandlers.GetQRCodeHandler())
				qrGroup.PUT("/:id", qrHandlers.UpdateQRCodeHandler())
				qrGroup.PATCH("/:id", qrHandlers.UpdateQRCodeHandler())
				qrGroup.DELETE("/:id", qrHandlers.DeleteQRCodeHandler())
				qrGroup.GET("/:id/scans", qrHandlers.ListScansHandler())
				qrGroup.GET("/:id/scans.csv", qrHandlers.ExportScansCSVHandler())
				qrGroup.GET("/:id/stats", statsHandler.GetQRCodeStats)
				qrGroup.GET("/:id/enhanced-stats", statsHandler.GetEnhancedStats)
			}

			folderGroup := authenticated.Group("/folders")
			{
				folderGroup.GET("", folderHandlers.ListFoldersHandler())
				folderGroup.POST("", folderHandlers.CreateFolderHandler())
				folderGroup.PUT("/:name", folderHandlers.RenameFolderHandler())
				folderGroup.DELETE("/:name", folderHandlers.DeleteFolderHandler())
			}

			statsGroup := authenticated.Group("/stats")
			{
				statsGroup.GET("/dashboard", statsHandler.GetDashboardStats)
				statsGroup.GET("/dashboard/export", statsHandler.ExportDashboardStats)
				statsGroup.GET("/daily-scans", statsHandler.GetDailyScans)
				statsGroup.GET("/export", middleware.RequireAdmin(), statsHandler.ExportAllScans)
			}
		}
	}

	return router, bg, nil
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// pinger is satisfied by *qrimage.Renderer
type pinger interface {
	Ping(ctx context.Context) error
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also probes the image cache backend.
func readinessHandler(db *sql.DB, store pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if err := store.Ping(c.Request.Context()); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// apiHealthHandler is the dependency-free health endpoint polled by the frontend
func apiHealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"version": Version,
			"time":    time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}
