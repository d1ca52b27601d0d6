package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qr-tracker/qr-tracker/internal/db/models"
)

// ErrShortCodeTaken is returned by Create when the generated short code collides
var ErrShortCodeTaken = errors.New("short code already in use")

// qrSelect selects every QRCode column plus its scan count
const qrSelect = `
	SELECT q.id, q.name, q.target_url, q.short_code, q.folder, q.created_at, q.user_id,
		(SELECT COUNT(*) FROM scans s WHERE s.qrcode_id = q.id) AS scan_count
	FROM qrcodes q`

// QRCodeRepository handles QR code database operations
type QRCodeRepository struct {
	db *sqlx.DB
}

// NewQRCodeRepository creates a new QRCodeRepository
func NewQRCodeRepository(db *sqlx.DB) *QRCodeRepository {
	return &QRCodeRepository{db: db}
}

// Create inserts qr and fills in its ID and CreatedAt
func (r *QRCodeRepository) Create(ctx context.Context, qr *models.QRCode) error {
	query := `
		INSERT INTO qrcodes (name, target_url, short_code, folder, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		qr.Name, qr.TargetURL, qr.ShortCode, qr.Folder, qr.UserID,
	).Scan(&qr.ID, &qr.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrShortCodeTaken
		}
		return fmt.Errorf("failed to create qr code: %w", err)
	}
	return nil
}

// List returns QR codes newest first. An empty folder lists everything;
// models.UncategorizedFolder lists codes without a folder.
func (r *QRCodeRepository) List(ctx context.Context, folder string) ([]models.QRCode, error) {
	where, args := folderClause("q", folder, 1)
	query := qrSelect + where + ` ORDER BY q.created_at DESC, q.id DESC`

	qrcodes := []models.QRCode{}
	if err := r.db.SelectContext(ctx, &qrcodes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list qr codes: %w", err)
	}
	return qrcodes, nil
}

// GetByID retrieves a QR code by numeric ID
func (r *QRCodeRepository) GetByID(ctx context.Context, id int64) (*models.QRCode, error) {
	return r.getOne(ctx, qrSelect+` WHERE q.id = $1`, id)
}

// GetByShortCode retrieves a QR code by its short code
func (r *QRCodeRepository) GetByShortCode(ctx context.Context, code string) (*models.QRCode, error) {
	return r.getOne(ctx, qrSelect+` WHERE q.short_code = $1`, code)
}

// Resolve looks identifier up as a short code first and then as a numeric ID.
// Short codes are alphanumeric, so an all-digit code still wins over an ID.
func (r *QRCodeRepository) Resolve(ctx context.Context, identifier string) (*models.QRCode, error) {
	qr, err := r.GetByShortCode(ctx, identifier)
	if err != nil || qr != nil {
		return qr, err
	}
	id, convErr := strconv.ParseInt(identifier, 10, 64)
	if convErr != nil || id <= 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r *QRCodeRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.QRCode, error) {
	var qr models.QRCode
	err := r.db.GetContext(ctx, &qr, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load qr code: %w", err)
	}
	return &qr, nil
}

// Update applies the non-nil fields of upd and returns the updated row, or nil
// when no QR code has that ID.
func (r *QRCodeRepository) Update(ctx context.Context, id int64, upd models.QRCodeUpdate) (*models.QRCode, error) {
	if upd.IsEmpty() {
		return r.GetByID(ctx, id)
	}

	var sets []string
	var args []interface{}
	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.TargetURL != nil {
		add("target_url", *upd.TargetURL)
	}
	if upd.Folder != nil {
		add("folder", models.NormalizeFolder(upd.Folder))
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE qrcodes SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update qr code: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

// Delete removes a QR code and, via ON DELETE CASCADE, its scans.
// It reports whether a row was deleted.
func (r *QRCodeRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM qrcodes WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete qr code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete qr code: %w", err)
	}
	return n > 0, nil
}

// isAllFolders reports whether a folder filter means "no filter"
func isAllFolders(folder string) bool {
	f := strings.ToLower(strings.TrimSpace(folder))
	return f == "" || f == "all" || f == "all qr codes"
}

// folderClause builds a WHERE clause restricting alias.folder. argPos is the
// placeholder number to use for the folder argument.
func folderClause(alias, folder string, argPos int) (string, []interface{}) {
	switch {
	case isAllFolders(folder):
		return "", nil
	case folder == models.UncategorizedFolder:
		return fmt.Sprintf(` WHERE (%[1]s.folder IS NULL OR %[1]s.folder = '')`, alias), nil
	default:
		return fmt.Sprintf(` WHERE %s.folder = $%d`, alias, argPos), []interface{}{folder}
	}
}
