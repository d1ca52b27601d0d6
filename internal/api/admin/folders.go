// folders.go implements folder listing, creation, renaming, and deletion.
package admin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
	"github.com/qr-tracker/qr-tracker/internal/db/repositories"
	"github.com/qr-tracker/qr-tracker/internal/qrimage"
)

// FolderHandlers handles folder endpoints
type FolderHandlers struct {
	folderRepo *repositories.FolderRepository
	renderer   *qrimage.Renderer
}

// NewFolderHandlers creates a new FolderHandlers instance
func NewFolderHandlers(db *sqlx.DB, renderer *qrimage.Renderer) *FolderHandlers {
	return &FolderHandlers{
		folderRepo: repositories.NewFolderRepository(db),
		renderer:   renderer,
	}
}

type folderRequest struct {
	Name string `json:"name"`
}

// ListFoldersHandler returns every folder name, sorted
// GET /api/folders
func (h *FolderHandlers) ListFoldersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		folders, err := h.folderRepo.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, folders)
	}
}

// CreateFolderHandler creates an empty folder
// POST /api/folders
func (h *FolderHandlers) CreateFolderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req folderRequest
		_ = c.ShouldBindJSON(&req)
		name := strings.TrimSpace(req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder name is required"})
			return
		}
		if name == models.UncategorizedFolder {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder name is reserved"})
			return
		}

		exists, err := h.folderRepo.Exists(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if exists {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder already exists"})
			return
		}

		created, err := h.folderRepo.Create(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !created {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder already exists"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{"message": "Folder created successfully", "name": name})
	}
}

// RenameFolderHandler moves every QR code in a folder to a new name
// PUT /api/folders/:name
func (h *FolderHandlers) RenameFolderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		oldName := c.Param("name")

		var req folderRequest
		_ = c.ShouldBindJSON(&req)
		newName := strings.TrimSpace(req.Name)
		if newName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "New folder name is required"})
			return
		}
		if newName == oldName {
			c.JSON(http.StatusOK, gin.H{"message": "No changes made"})
			return
		}
		if newName == models.UncategorizedFolder {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Folder name is reserved"})
			return
		}

		exists, err := h.folderRepo.Exists(c.Request.Context(), newName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if exists {
			c.JSON(http.StatusBadRequest, gin.H{"error": "A folder with this name already exists"})
			return
		}

		moved, found, err := h.folderRepo.Rename(c.Request.Context(), oldName, newName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Folder not found"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Folder updated successfully",
			"name":    newName,
			"updated": moved,
		})
	}
}

// DeleteFolderHandler deletes a folder together with every QR code in it
// DELETE /api/folders/:name
func (h *FolderHandlers) DeleteFolderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		deleted, found, err := h.folderRepo.Delete(c.Request.Context(), name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "Folder not found"})
			return
		}

		for _, code := range deleted {
			if err := h.renderer.Invalidate(c.Request.Context(), code); err != nil {
				slog.Warn("failed to invalidate cached images", "short_code", code, "error", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message":         "Folder and all its QR codes deleted successfully",
			"deleted_qrcodes": len(deleted),
		})
	}
}
