package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// FolderRepository handles folder operations. A folder exists when it has a row in
// folders or when at least one QR code carries it as a label.
type FolderRepository struct {
	db *sqlx.DB
}

// NewFolderRepository creates a new FolderRepository
func NewFolderRepository(db *sqlx.DB) *FolderRepository {
	return &FolderRepository{db: db}
}

// List returns every folder name, sorted
func (r *FolderRepository) List(ctx context.Context) ([]string, error) {
	query := `
		SELECT name FROM folders WHERE name <> ''
		UNION
		SELECT DISTINCT folder FROM qrcodes WHERE folder IS NOT NULL AND folder <> ''
		ORDER BY 1
	`
	names := []string{}
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	return names, nil
}

// Exists reports whether a folder with this exact name exists
func (r *FolderRepository) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM folders WHERE name = $1)
		OR EXISTS (SELECT 1 FROM qrcodes WHERE folder = $1)`
	if err := r.db.GetContext(ctx, &exists, query, name); err != nil {
		return false, fmt.Errorf("failed to check folder: %w", err)
	}
	return exists, nil
}

// Create adds an empty folder. It reports false when the name was already taken.
func (r *FolderRepository) Create(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO folders (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return false, fmt.Errorf("failed to create folder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create folder: %w", err)
	}
	return n > 0, nil
}

// Rename moves every QR code labelled oldName to newName. found is false when
// neither a folder row nor any QR code had oldName.
func (r *FolderRepository) Rename(ctx context.Context, oldName, newName string) (moved int64, found bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to rename folder: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE name = $1`, oldName)
	if err != nil {
		return 0, false, fmt.Errorf("failed to rename folder: %w", err)
	}
	folderRows, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `UPDATE qrcodes SET folder = $1 WHERE folder = $2`, newName, oldName)
	if err != nil {
		return 0, false, fmt.Errorf("failed to rename folder: %w", err)
	}
	moved, _ = res.RowsAffected()

	if folderRows == 0 && moved == 0 {
		return 0, false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO folders (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, newName); err != nil {
		return 0, false, fmt.Errorf("failed to rename folder: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to rename folder: %w", err)
	}
	return moved, true, nil
}

// Delete removes the folder and every QR code filed in it (their scans cascade).
// It returns the short codes of the deleted QR codes; found is false when the
// folder did not exist.
func (r *FolderRepository) Delete(ctx context.Context, name string) (deleted []string, found bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to delete folder: %w", err)
	}
	defer tx.Rollback()

	deleted = []string{}
	if err := tx.SelectContext(ctx, &deleted,
		`DELETE FROM qrcodes WHERE folder = $1 RETURNING short_code`, name); err != nil {
		return nil, false, fmt.Errorf("failed to delete folder: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM folders WHERE name = $1`, name)
	if err != nil {
		return nil, false, fmt.Errorf("failed to delete folder: %w", err)
	}
	folderRows, _ := res.RowsAffected()

	if folderRows == 0 && len(deleted) == 0 {
		return nil, false, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to delete folder: %w", err)
	}
	return deleted, true, nil
}
