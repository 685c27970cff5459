package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/iliyamo/termin-manager/internal/model"
	"github.com/iliyamo/termin-manager/internal/remote"
	"github.com/iliyamo/termin-manager/internal/state"
)

var (
	errNotSignedIn   = errors.New("not signed in")
	errBackupMissing = errors.New("backup not found")
)

// Connect establishes the cloud session: resolve the authenticated user,
// refresh org memberships, pull the latest remote state and schedule a
// flush of anything still queued locally. Safe to call again on
// reconnect; each step degrades to a no-op when the remote is missing.
func (e *Engine) Connect(ctx context.Context) error {
	if e.client == nil {
		return nil
	}
	me, err := e.client.Me(ctx)
	if err != nil {
		return &SyncError{Op: "resolve user", Err: err}
	}
	if _, err := e.states.SetUser(ctx, me); err != nil {
		return err
	}
	if err := e.RefreshMembership(ctx); err != nil {
		return err
	}
	if err := e.PullLatestFromServer(ctx); err != nil {
		return err
	}
	e.ScheduleSync(0)
	return nil
}

// RefreshMembership reloads the caller's org list from the remote store,
// renormalizes the active tenant, refreshes branding for it and schedules
// a sync, since a membership change can make a previously stuck queue
// flushable.
func (e *Engine) RefreshMembership(ctx context.Context) error {
	if e.client == nil {
		return nil
	}
	orgs, err := e.client.Memberships(ctx)
	if err != nil {
		return &SyncError{Op: "memberships", Err: err}
	}
	next, err := e.states.SetOrgs(ctx, orgs)
	if err != nil {
		return err
	}
	if _, err := e.LoadBrandingForOrg(ctx, next.ActiveOrgID); err != nil {
		log.Printf("sync: branding refresh failed: %v", err)
	}
	e.ScheduleSync(0)
	return nil
}

// PullLatestFromServer fetches the newest remote state for the active
// tenant and merges it in when it is strictly newer than the local
// lastSyncAt stamp. Domain data (slots, bookings, meta) is replaced
// wholesale; orgs, user and the active tenant are device-scoped session
// data and stay local. An older, equal or absent remote means local is
// authoritative and is not an error.
func (e *Engine) PullLatestFromServer(ctx context.Context) error {
	current, err := e.states.GetState(ctx)
	if err != nil {
		return err
	}
	if !e.IsCloudReady(current) {
		return nil
	}

	rec, err := e.client.FetchLatestState(ctx, current.ActiveOrgID)
	if err != nil {
		return &SyncError{Op: "pull", Err: err}
	}
	if rec == nil {
		return nil
	}

	if current.Meta.LastSyncAt != nil && !rec.UpdatedAt.After(*current.Meta.LastSyncAt) {
		return nil
	}

	merged := rec.Data.Normalized()
	merged.Orgs = current.Orgs
	merged.User = current.User
	merged.ActiveOrgID = current.ActiveOrgID
	merged.Meta = current.Meta
	stamp := rec.UpdatedAt
	merged.Meta.LastSyncAt = &stamp
	merged.Meta.LastSyncError = ""
	if _, err := e.states.SaveState(ctx, merged, state.SaveOptions{}); err != nil {
		return err
	}
	e.notify("info", "cloud data loaded")
	return nil
}

// PushStateToServer upserts the full state under the tenant key. The
// server assigns updated_at; that stamp is written back into local
// meta.lastSyncAt and the last sync error is cleared. A server-side backup
// row is appended afterwards, best effort: its failure never fails the
// push.
func (e *Engine) PushStateToServer(ctx context.Context, s model.AppState) error {
	if !e.IsCloudReady(s) {
		return nil
	}

	payload := s.Clone()
	payload.Meta.LastSyncAt = nil // the server stamp is authoritative
	stamp, err := e.client.UpsertState(ctx, s.ActiveOrgID, payload)
	if err != nil {
		return &SyncError{Op: "push", Err: err}
	}

	next := s.Clone()
	next.Meta.LastSyncAt = &stamp
	next.Meta.LastSyncError = ""
	if _, err := e.states.SaveState(ctx, next, state.SaveOptions{SkipSnapshot: true}); err != nil {
		return err
	}

	if err := e.client.InsertBackup(ctx, s.ActiveOrgID, next); err != nil {
		log.Printf("sync: server backup failed: %v", err)
	}
	return nil
}

// FetchServerBackups lists the ten most recent server-side backup rows for
// the active tenant. Returns an empty list when the cloud is not ready.
func (e *Engine) FetchServerBackups(ctx context.Context) ([]remote.BackupRecord, error) {
	current, err := e.states.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if !e.IsCloudReady(current) {
		return []remote.BackupRecord{}, nil
	}
	rows, err := e.client.ListBackups(ctx, current.ActiveOrgID, 10)
	if err != nil {
		return nil, &SyncError{Op: "list backups", Err: err}
	}
	return rows, nil
}

// RestoreServerBackup imports a server backup through the shared import
// path and queues the restored state for push, so other devices converge
// on the restored data.
func (e *Engine) RestoreServerBackup(ctx context.Context, id int64) error {
	current, err := e.states.GetState(ctx)
	if err != nil {
		return err
	}
	if !e.IsCloudReady(current) {
		return &SyncError{Op: "restore backup", Err: errNotSignedIn}
	}
	rec, err := e.client.FetchBackup(ctx, id)
	if err != nil {
		return &SyncError{Op: "restore backup", Err: err}
	}
	if rec == nil {
		return &SyncError{Op: "restore backup", Err: errBackupMissing}
	}
	restored, err := e.states.ImportState(ctx, rec.Snapshot)
	if err != nil {
		return err
	}
	if err := e.QueueSet(ctx, restored); err != nil {
		return err
	}
	e.ScheduleSync(0)
	return nil
}

// LoadBrandingForOrg resolves branding for a tenant: remote when reachable
// (refreshing the cache), else the cached tenant record, else the cached
// default record, always merged over the built-in defaults. The resolved
// result is cached so the next offline start renders the same look.
func (e *Engine) LoadBrandingForOrg(ctx context.Context, orgID string) (model.Branding, error) {
	current, err := e.states.GetState(ctx)
	if err != nil {
		return model.DefaultBranding(), err
	}
	if orgID == "" {
		orgID = current.ActiveOrgID
	}

	var resolved *model.Branding
	if orgID != "" && e.opts.Online() && e.IsCloudReady(current) {
		fetched, err := e.client.FetchBranding(ctx, orgID)
		if err != nil {
			log.Printf("sync: remote branding load failed: %v", err)
		} else if fetched != nil {
			resolved = fetched
		}
	}
	if resolved == nil && orgID != "" {
		resolved = e.cachedBranding(ctx, orgID)
	}
	if resolved == nil {
		resolved = e.cachedBranding(ctx, "")
	}

	merged := model.DefaultBranding()
	if resolved != nil {
		merged = resolved.MergedOver(merged)
	}
	e.cacheBranding(ctx, orgID, merged)
	return merged, nil
}

func (e *Engine) cachedBranding(ctx context.Context, orgID string) *model.Branding {
	raw, err := e.local.Get(ctx, model.BrandingKey(orgID))
	if err != nil || raw == nil {
		return nil
	}
	var b model.Branding
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil
	}
	return &b
}

func (e *Engine) cacheBranding(ctx context.Context, orgID string, b model.Branding) {
	raw, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := e.local.Put(ctx, model.BrandingKey(orgID), raw); err != nil {
		log.Printf("sync: branding cache write failed: %v", err)
	}
}
