// Package remote defines the client side of the cloud store protocol: a
// whole-state upsert keyed by tenant, an append-only backup log, and
// membership/branding lookups. Whether a remote is configured at all is
// decided once at the session boundary; components receive either a
// working Client or nil and never probe configuration themselves.
package remote

import (
	"context"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
)

// StateRecord is the latest remote state row for a tenant.
type StateRecord struct {
	OrgID     string         `json:"org_id"`
	Data      model.AppState `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
	UpdatedBy string         `json:"updated_by,omitempty"`
}

// BackupRecord is one server-side backup row. Server backups are append
// only and immutable; they exist independently of the local ring.
type BackupRecord struct {
	ID        int64          `json:"id"`
	OrgID     string         `json:"org_id"`
	Snapshot  model.AppState `json:"snapshot"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by,omitempty"`
}

// Client is the remote store contract the sync engine programs against.
// Every call either succeeds or fails atomically on the server side.
type Client interface {
	// Me returns the authenticated principal behind the client's
	// credentials. Used to populate the device session.
	Me(ctx context.Context) (*model.User, error)

	// Memberships lists the organizations the principal belongs to.
	Memberships(ctx context.Context) ([]model.Org, error)

	// FetchLatestState returns the newest state row for the tenant, or
	// nil when the tenant has never synced.
	FetchLatestState(ctx context.Context, orgID string) (*StateRecord, error)

	// UpsertState replaces the tenant's state row and returns the
	// server-assigned update timestamp.
	UpsertState(ctx context.Context, orgID string, s model.AppState) (time.Time, error)

	// InsertBackup appends an immutable server-side backup row.
	InsertBackup(ctx context.Context, orgID string, s model.AppState) error

	// ListBackups returns up to limit backup rows, newest first.
	ListBackups(ctx context.Context, orgID string, limit int) ([]BackupRecord, error)

	// FetchBackup loads a single backup row by id.
	FetchBackup(ctx context.Context, id int64) (*BackupRecord, error)

	// FetchBranding returns the tenant's branding row, or nil when none
	// has been configured.
	FetchBranding(ctx context.Context, orgID string) (*model.Branding, error)

	// UpsertBranding stores the tenant's branding and returns the
	// canonical row.
	UpsertBranding(ctx context.Context, orgID string, b model.Branding) (*model.Branding, error)
}
