package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// BrandingRow mirrors the 'org_settings' table. Branding is the only
// setting today; the blob stays opaque JSON so adding fields never needs a
// migration.
type BrandingRow struct {
	OrgID     string
	Branding  json.RawMessage
	UpdatedAt time.Time
}

// BrandingRepo reads and writes per-org display settings.
type BrandingRepo struct{ DB *sql.DB }

func NewBrandingRepo(db *sql.DB) *BrandingRepo { return &BrandingRepo{DB: db} }

// Get returns the org's branding row, or sql.ErrNoRows when none was ever
// saved. Callers fall back to built-in defaults in that case.
func (r *BrandingRepo) Get(ctx context.Context, orgID string) (BrandingRow, error) {
	var (
		row BrandingRow
		raw []byte
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT org_id, branding, updated_at FROM org_settings WHERE org_id=? LIMIT 1",
		orgID).Scan(&row.OrgID, &raw, &row.UpdatedAt)
	if err != nil {
		return BrandingRow{}, err
	}
	row.Branding = raw
	return row, nil
}

// Upsert replaces the org's branding blob.
func (r *BrandingRepo) Upsert(ctx context.Context, orgID string, branding json.RawMessage) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO org_settings (org_id, branding, updated_at)
		VALUES (?,?,UTC_TIMESTAMP(3))
		ON DUPLICATE KEY UPDATE branding=VALUES(branding), updated_at=VALUES(updated_at)`,
		orgID, []byte(branding))
	return err
}
