package sync

import (
	"context"
	"testing"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
	"github.com/iliyamo/termin-manager/internal/remote"
	"github.com/iliyamo/termin-manager/internal/state"
	"github.com/iliyamo/termin-manager/internal/store"
)

func TestConnectEstablishesSession(t *testing.T) {
	f := newFakeClient()
	e, states, _ := newTestEngine(t, f)
	ctx := context.Background()

	if err := e.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.User == nil || s.User.ID != f.user.ID {
		t.Fatalf("user not established: %+v", s.User)
	}
	if s.ActiveOrgID != f.orgs[0].ID {
		t.Fatalf("active org = %q, want %q", s.ActiveOrgID, f.orgs[0].ID)
	}
}

func TestPullReplacesDomainDataWhenRemoteNewer(t *testing.T) {
	f := newFakeClient()
	e, states, _ := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)

	remoteState := model.Defaults()
	remoteState.Slots = []model.Slot{{
		ID: model.NewID(), Title: "From the cloud",
		StartsAt: f.now.Add(time.Hour), EndsAt: f.now.Add(2 * time.Hour), Capacity: 9,
	}}
	f.state = &remote.StateRecord{
		OrgID: f.orgs[0].ID, Data: remoteState,
		UpdatedAt: f.now, UpdatedBy: f.user.ID,
	}

	if err := e.PullLatestFromServer(ctx); err != nil {
		t.Fatalf("PullLatestFromServer: %v", err)
	}
	s, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if len(s.Slots) != 1 || s.Slots[0].Title != "From the cloud" {
		t.Fatalf("domain data not replaced: %+v", s.Slots)
	}
	// Session data stays local.
	if s.User == nil || s.User.ID != f.user.ID {
		t.Fatalf("user lost on pull: %+v", s.User)
	}
	if s.ActiveOrgID != f.orgs[0].ID {
		t.Fatalf("active org lost on pull: %q", s.ActiveOrgID)
	}
	if s.Meta.LastSyncAt == nil || !s.Meta.LastSyncAt.Equal(f.state.UpdatedAt) {
		t.Fatalf("lastSyncAt = %v, want %v", s.Meta.LastSyncAt, f.state.UpdatedAt)
	}
}

func TestPullOlderOrEqualRemoteIsNoop(t *testing.T) {
	f := newFakeClient()
	e, states, _ := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)
	if _, err := states.CreateSlot(ctx, model.Slot{Title: "local", StartsAt: f.now.Add(time.Hour), EndsAt: f.now.Add(2 * time.Hour), Capacity: 1}); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	if err := e.FlushQueue(ctx); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	before, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	// The remote row now carries exactly the pushed stamp: not strictly
	// newer, so pulling must change nothing.
	stale := model.Defaults()
	f.state.Data = stale
	if err := e.PullLatestFromServer(ctx); err != nil {
		t.Fatalf("PullLatestFromServer: %v", err)
	}
	after, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !before.Equal(after) {
		t.Fatalf("equal-stamp pull modified local state")
	}
}

func TestPullAbsentRemoteIsNoop(t *testing.T) {
	f := newFakeClient()
	e, states, _ := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)
	before, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if err := e.PullLatestFromServer(ctx); err != nil {
		t.Fatalf("PullLatestFromServer: %v", err)
	}
	after, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !before.Equal(after) {
		t.Fatalf("never-synced tenant pull modified local state")
	}
}

func TestRestoreServerBackup(t *testing.T) {
	f := newFakeClient()
	e, states, local := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)

	snapshot := model.Defaults()
	snapshot.Slots = []model.Slot{{
		ID: model.NewID(), Title: "Restored",
		StartsAt: f.now.Add(time.Hour), EndsAt: f.now.Add(2 * time.Hour), Capacity: 4,
	}}
	if err := f.InsertBackup(ctx, f.orgs[0].ID, snapshot); err != nil {
		t.Fatalf("InsertBackup: %v", err)
	}

	if err := e.RestoreServerBackup(ctx, f.backups[0].ID); err != nil {
		t.Fatalf("RestoreServerBackup: %v", err)
	}
	s, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if len(s.Slots) != 1 || s.Slots[0].Title != "Restored" {
		t.Fatalf("backup not applied: %+v", s.Slots)
	}
	// The restored state is queued so other devices converge on it.
	n, err := local.QueueCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("QueueCount = %d, %v; want 1", n, err)
	}
}

func TestRestoreServerBackupUnknownID(t *testing.T) {
	f := newFakeClient()
	e, states, _ := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)
	if err := e.RestoreServerBackup(ctx, 404); err == nil {
		t.Fatalf("want error for unknown backup id")
	}
}

func TestFetchServerBackupsNotReadyIsEmpty(t *testing.T) {
	f := newFakeClient()
	e, _, _ := newTestEngine(t, f)

	rows, err := e.FetchServerBackups(context.Background())
	if err != nil {
		t.Fatalf("FetchServerBackups: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("signed-out listing returned %d rows", len(rows))
	}
}

func TestLoadBrandingFallsBackToCache(t *testing.T) {
	f := newFakeClient()
	orgID := f.orgs[0].ID
	f.branding[orgID] = &model.Branding{AppName: "Studio X"}

	local, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	states := state.New(local, state.Options{})
	online := true
	e := New(states, local, f, Options{Debounce: time.Hour, Online: func() bool { return online }})
	t.Cleanup(e.Close)
	ctx := context.Background()

	signIn(t, ctx, states, f)

	got, err := e.LoadBrandingForOrg(ctx, orgID)
	if err != nil {
		t.Fatalf("LoadBrandingForOrg: %v", err)
	}
	if got.AppName != "Studio X" {
		t.Fatalf("remote branding not applied: %+v", got)
	}
	// Unset fields fill from the defaults.
	if got.PrimaryColor != model.DefaultBranding().PrimaryColor {
		t.Fatalf("defaults not merged: %+v", got)
	}

	// Offline, the previously cached record still renders.
	online = false
	delete(f.branding, orgID)
	got, err = e.LoadBrandingForOrg(ctx, orgID)
	if err != nil {
		t.Fatalf("offline LoadBrandingForOrg: %v", err)
	}
	if got.AppName != "Studio X" {
		t.Fatalf("cache fallback failed: %+v", got)
	}
}
