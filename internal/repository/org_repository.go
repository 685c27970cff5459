package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Org mirrors the 'orgs' table.
type Org struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Membership is one row of the caller's org list, joined with the org name.
type Membership struct {
	OrgID string
	Name  string
	Role  string
}

// OrgRepo manages organizations and the org_members join table.
type OrgRepo struct{ DB *sql.DB }

func NewOrgRepo(db *sql.DB) *OrgRepo { return &OrgRepo{DB: db} }

// CreateWithOwner inserts an org and its owner membership in one
// transaction, so a half-created org without an owner can never exist.
func (r *OrgRepo) CreateWithOwner(ctx context.Context, name, ownerID string) (Org, error) {
	name = strings.TrimSpace(name)
	org := Org{ID: uuid.NewString(), Name: name}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Org{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO orgs (id, name) VALUES (?,?)", org.ID, org.Name); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return Org{}, ErrConflict
		}
		return Org{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO org_members (org_id, user_id, role) VALUES (?,?,'owner')",
		org.ID, ownerID); err != nil {
		return Org{}, err
	}
	if err := tx.Commit(); err != nil {
		return Org{}, err
	}
	return org, nil
}

// MembershipsForUser lists the orgs the user belongs to, oldest org first so
// the agent's "first org becomes active" fallback is deterministic.
func (r *OrgRepo) MembershipsForUser(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT o.id, o.name, m.role
		FROM org_members m
		JOIN orgs o ON o.id = m.org_id
		WHERE m.user_id = ?
		ORDER BY o.created_at, o.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Membership{}
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrgID, &m.Name, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RoleInOrg returns the caller's role in the org, or ErrForbidden when the
// caller is not a member. Every tenant-scoped endpoint funnels through this.
func (r *OrgRepo) RoleInOrg(ctx context.Context, userID, orgID string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx,
		"SELECT role FROM org_members WHERE org_id=? AND user_id=? LIMIT 1",
		orgID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrForbidden
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// AddMember inserts or updates a membership row.
func (r *OrgRepo) AddMember(ctx context.Context, orgID, userID, role string) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO org_members (org_id, user_id, role) VALUES (?,?,?)
		ON DUPLICATE KEY UPDATE role=VALUES(role)`,
		orgID, userID, role)
	return err
}
