package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// BackupRow mirrors the 'backups' table. Rows are append-only: there is no
// update or delete path, which is what makes a backup trustworthy.
type BackupRow struct {
	ID        int64
	OrgID     string
	Snapshot  json.RawMessage
	CreatedAt time.Time
	CreatedBy string
}

// BackupRepo appends and lists server-side backup rows.
type BackupRepo struct{ DB *sql.DB }

func NewBackupRepo(db *sql.DB) *BackupRepo { return &BackupRepo{DB: db} }

// Insert appends a backup row and returns its id.
func (r *BackupRepo) Insert(ctx context.Context, orgID string, snapshot json.RawMessage, createdBy string) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO backups (org_id, snapshot, created_by) VALUES (?,?,?)",
		orgID, []byte(snapshot), createdBy)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListForOrg returns up to limit backups for the org, newest first.
func (r *BackupRepo) ListForOrg(ctx context.Context, orgID string, limit int) ([]BackupRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, org_id, snapshot, created_at, created_by FROM backups WHERE org_id=? ORDER BY created_at DESC, id DESC LIMIT ?",
		orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BackupRow{}
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Get loads one backup row by id, or sql.ErrNoRows.
func (r *BackupRepo) Get(ctx context.Context, id int64) (BackupRow, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT id, org_id, snapshot, created_at, created_by FROM backups WHERE id=? LIMIT 1", id)
	return scanBackup(row)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanBackup(s rowScanner) (BackupRow, error) {
	var (
		b   BackupRow
		raw []byte
		by  sql.NullString
	)
	if err := s.Scan(&b.ID, &b.OrgID, &raw, &b.CreatedAt, &by); err != nil {
		return BackupRow{}, err
	}
	b.Snapshot = raw
	b.CreatedBy = by.String
	return b, nil
}
