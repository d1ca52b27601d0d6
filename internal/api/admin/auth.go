// auth.go implements account registration, password login, and the current-user endpoint.
package admin

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qr-tracker/qr-tracker/internal/auth"
	"github.com/qr-tracker/qr-tracker/internal/config"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
	"github.com/qr-tracker/qr-tracker/internal/middleware"
)

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg      *config.Config
	userRepo *repositories.UserRepository
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(cfg *config.Config, db *sql.DB) *AuthHandlers {
	return &AuthHandlers{
		cfg:      cfg,
		userRepo: repositories.NewUserRepository(db),
	}
}

// credentialsRequest is the body of register and login
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *credentialsRequest) complete() bool {
	r.Email = strings.TrimSpace(r.Email)
	return r.Email != "" && r.Password != ""
}

// @Summary      Register account
// @Description  Creates a user account. The first account becomes an administrator. When public signup is disabled, later accounts can only be created by an administrator.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Success      201  {object}  map[string]interface{}  "message, user: models.User"
// @Failure      400  {object}  map[string]interface{}  "Missing fields or email already registered"
// @Failure      403  {object}  map[string]interface{}  "Registration is restricted to administrators"
// @Router       /api/auth/register [post]
// RegisterHandler creates a user account
// POST /api/auth/register
func (h *AuthHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil || !req.complete() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
			return
		}
		if _, err := mail.ParseAddress(req.Email); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
			return
		}

		if !h.cfg.Auth.AllowPublicSignup {
			count, err := h.userRepo.CountUsers(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if current := middleware.CurrentUser(c); count > 0 && (current == nil || !current.IsAdmin) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Registration is restricted to administrators"})
				return
			}
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		user := &models.User{Email: req.Email, PasswordHash: hash}
		if err := h.userRepo.CreateUser(c.Request.Context(), user); err != nil {
			if errors.Is(err, repositories.ErrEmailTaken) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		slog.Info("user registered", "user_id", user.ID, "is_admin", user.IsAdmin)
		c.JSON(http.StatusCreated, gin.H{
			"message": "User registered successfully",
			"user":    user,
		})
	}
}

// @Summary      Log in
// @Description  Exchanges email and password for a bearer access token.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "access_token, token_type, expires_in, user"
// @Failure      400  {object}  map[string]interface{}  "Missing fields"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Router       /api/auth/login [post]
// LoginHandler issues an access token
// POST /api/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil || !req.complete() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
			return
		}

		user, err := h.userRepo.GetUserByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}

		expiry := h.cfg.Auth.JWTExpiry
		if expiry <= 0 {
			expiry = auth.DefaultTokenExpiry
		}
		token, err := auth.GenerateJWT(user.ID, user.Email, expiry)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token": token,
			"token_type":   "Bearer",
			"expires_in":   int(expiry.Seconds()),
			"user":         user,
		})
	}
}

// MeHandler returns the authenticated user
// GET /api/auth/me
func (h *AuthHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.JSON(http.StatusOK, user)
	}
}
