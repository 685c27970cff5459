package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// StateRow mirrors the 'org_states' table: exactly one row per org holding
// the full serialized application state. The server never interprets the
// blob beyond validating that it is JSON; clients own the schema.
type StateRow struct {
	OrgID     string
	Data      json.RawMessage
	UpdatedAt time.Time
	UpdatedBy string
}

// StateRepo reads and writes the per-org state row.
type StateRepo struct{ DB *sql.DB }

func NewStateRepo(db *sql.DB) *StateRepo { return &StateRepo{DB: db} }

// Get returns the org's state row, or sql.ErrNoRows when the org has never
// pushed.
func (r *StateRepo) Get(ctx context.Context, orgID string) (StateRow, error) {
	var (
		row StateRow
		raw []byte
		by  sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT org_id, data, updated_at, updated_by FROM org_states WHERE org_id=? LIMIT 1",
		orgID).Scan(&row.OrgID, &raw, &row.UpdatedAt, &by)
	if err != nil {
		return StateRow{}, err
	}
	row.Data = raw
	row.UpdatedBy = by.String
	return row, nil
}

// Upsert replaces the org's state row and returns the server-assigned
// update timestamp. The timestamp is read back rather than computed here so
// the value clients store for last-write-wins comparison is exactly what
// the database recorded.
func (r *StateRepo) Upsert(ctx context.Context, orgID string, data json.RawMessage, updatedBy string) (time.Time, error) {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO org_states (org_id, data, updated_at, updated_by)
		VALUES (?,?,UTC_TIMESTAMP(3),?)
		ON DUPLICATE KEY UPDATE data=VALUES(data), updated_at=VALUES(updated_at), updated_by=VALUES(updated_by)`,
		orgID, []byte(data), updatedBy)
	if err != nil {
		return time.Time{}, err
	}
	var stamp time.Time
	err = r.DB.QueryRowContext(ctx,
		"SELECT updated_at FROM org_states WHERE org_id=? LIMIT 1",
		orgID).Scan(&stamp)
	if err != nil {
		return time.Time{}, err
	}
	return stamp, nil
}
