package sync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
	"github.com/iliyamo/termin-manager/internal/remote"
	"github.com/iliyamo/termin-manager/internal/state"
	"github.com/iliyamo/termin-manager/internal/store"
)

// fakeClient is an in-memory remote store: one state row, an append-only
// backup log, and canned identity data.
type fakeClient struct {
	mu sync.Mutex

	user *model.User
	orgs []model.Org

	state    *remote.StateRecord
	branding map[string]*model.Branding
	backups  []remote.BackupRecord
	nextID   int64

	pushes   int
	failPush bool
	now      time.Time
}

func newFakeClient() *fakeClient {
	uid := model.NewID()
	oid := model.NewID()
	return &fakeClient{
		user:     &model.User{ID: uid, Email: "owner@example.com"},
		orgs:     []model.Org{{ID: oid, Name: "Studio", Role: "owner"}},
		branding: map[string]*model.Branding{},
		now:      time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeClient) Me(ctx context.Context) (*model.User, error) {
	return f.user, nil
}

func (f *fakeClient) Memberships(ctx context.Context) ([]model.Org, error) {
	return f.orgs, nil
}

func (f *fakeClient) FetchLatestState(ctx context.Context, orgID string) (*remote.StateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == nil || f.state.OrgID != orgID {
		return nil, nil
	}
	cp := *f.state
	return &cp, nil
}

func (f *fakeClient) UpsertState(ctx context.Context, orgID string, s model.AppState) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPush {
		return time.Time{}, errors.New("remote unavailable")
	}
	f.pushes++
	f.now = f.now.Add(time.Second)
	f.state = &remote.StateRecord{OrgID: orgID, Data: s.Clone(), UpdatedAt: f.now, UpdatedBy: f.user.ID}
	return f.now, nil
}

func (f *fakeClient) InsertBackup(ctx context.Context, orgID string, s model.AppState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.backups = append(f.backups, remote.BackupRecord{
		ID: f.nextID, OrgID: orgID, Snapshot: s.Clone(), CreatedAt: f.now, CreatedBy: f.user.ID,
	})
	return nil
}

func (f *fakeClient) ListBackups(ctx context.Context, orgID string, limit int) ([]remote.BackupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []remote.BackupRecord{}
	for i := len(f.backups) - 1; i >= 0 && len(out) < limit; i-- {
		if f.backups[i].OrgID == orgID {
			out = append(out, f.backups[i])
		}
	}
	return out, nil
}

func (f *fakeClient) FetchBackup(ctx context.Context, id int64) (*remote.BackupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.backups {
		if f.backups[i].ID == id {
			cp := f.backups[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeClient) FetchBranding(ctx context.Context, orgID string) (*model.Branding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.branding[orgID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeClient) UpsertBranding(ctx context.Context, orgID string, b model.Branding) (*model.Branding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := b
	f.branding[orgID] = &cp
	return &cp, nil
}

var _ remote.Client = (*fakeClient)(nil)

// newTestEngine wires a full stack over a temp store. The debounce is set
// far out so tests drive FlushQueue explicitly.
func newTestEngine(t *testing.T, client remote.Client) (*Engine, *state.Manager, *store.Store) {
	t.Helper()
	local, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	states := state.New(local, state.Options{})
	e := New(states, local, client, Options{Debounce: time.Hour})
	t.Cleanup(e.Close)
	return e, states, local
}

// signIn makes the session cloud-ready against the fake.
func signIn(t *testing.T, ctx context.Context, states *state.Manager, f *fakeClient) {
	t.Helper()
	if _, err := states.SetUser(ctx, f.user); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if _, err := states.SetOrgs(ctx, f.orgs); err != nil {
		t.Fatalf("SetOrgs: %v", err)
	}
}

func TestFlushQueueEmptyIsNoop(t *testing.T) {
	f := newFakeClient()
	e, _, _ := newTestEngine(t, f)
	if err := e.FlushQueue(context.Background()); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	if f.pushes != 0 {
		t.Fatalf("pushed %d times from an empty queue", f.pushes)
	}
}

func TestFlushQueueKeepsPayloadWhileSignedOut(t *testing.T) {
	f := newFakeClient()
	e, states, local := newTestEngine(t, f)
	ctx := context.Background()

	// A domain edit without a signed-in user queues but must not push.
	if _, err := states.CreateSlot(ctx, model.Slot{Title: "t", StartsAt: time.Now().UTC().Add(time.Hour), EndsAt: time.Now().UTC().Add(2 * time.Hour), Capacity: 1}); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	if err := e.FlushQueue(ctx); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	if f.pushes != 0 {
		t.Fatalf("pushed while signed out")
	}
	n, err := local.QueueCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("QueueCount = %d, %v; want 1", n, err)
	}
}

func TestFlushQueueRespectsOfflineSignal(t *testing.T) {
	f := newFakeClient()
	local, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	states := state.New(local, state.Options{})
	online := false
	e := New(states, local, f, Options{Debounce: time.Hour, Online: func() bool { return online }})
	t.Cleanup(e.Close)
	ctx := context.Background()

	signIn(t, ctx, states, f)
	if _, err := states.CreateSlot(ctx, model.Slot{Title: "t", StartsAt: time.Now().UTC().Add(time.Hour), EndsAt: time.Now().UTC().Add(2 * time.Hour), Capacity: 1}); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	if err := e.FlushQueue(ctx); err != nil {
		t.Fatalf("FlushQueue offline: %v", err)
	}
	if f.pushes != 0 {
		t.Fatalf("pushed while offline")
	}

	online = true
	e.HandleOnline()
	if err := e.FlushQueue(ctx); err != nil {
		t.Fatalf("FlushQueue online: %v", err)
	}
	if f.pushes != 1 {
		t.Fatalf("pushes = %d, want 1", f.pushes)
	}
}

func TestFlushQueuePushesAndClears(t *testing.T) {
	f := newFakeClient()
	e, states, local := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)
	if _, err := states.CreateSlot(ctx, model.Slot{Title: "t", StartsAt: time.Now().UTC().Add(time.Hour), EndsAt: time.Now().UTC().Add(2 * time.Hour), Capacity: 1}); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}

	if err := e.FlushQueue(ctx); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	if f.pushes != 1 {
		t.Fatalf("pushes = %d, want 1", f.pushes)
	}
	n, err := local.QueueCount(ctx)
	if err != nil || n != 0 {
		t.Fatalf("QueueCount = %d, %v; want 0", n, err)
	}

	// The server stamp lands in meta and the error field is clear.
	s, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.Meta.LastSyncAt == nil || !s.Meta.LastSyncAt.Equal(f.state.UpdatedAt) {
		t.Fatalf("lastSyncAt = %v, want server stamp %v", s.Meta.LastSyncAt, f.state.UpdatedAt)
	}
	if s.Meta.LastSyncError != "" {
		t.Fatalf("lastSyncError = %q, want empty", s.Meta.LastSyncError)
	}
	if len(f.backups) != 1 {
		t.Fatalf("server backups = %d, want 1", len(f.backups))
	}
	if e.Retries() != 0 {
		t.Fatalf("retries = %d, want 0", e.Retries())
	}
}

func TestFlushQueueCoalescesEdits(t *testing.T) {
	f := newFakeClient()
	e, states, _ := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)
	for i := 0; i < 4; i++ {
		if _, err := states.CreateSlot(ctx, model.Slot{Title: "t", StartsAt: time.Now().UTC().Add(time.Hour), EndsAt: time.Now().UTC().Add(2 * time.Hour), Capacity: i + 1}); err != nil {
			t.Fatalf("CreateSlot %d: %v", i, err)
		}
	}

	if err := e.FlushQueue(ctx); err != nil {
		t.Fatalf("FlushQueue: %v", err)
	}
	if f.pushes != 1 {
		t.Fatalf("pushes = %d, want 1 coalesced push", f.pushes)
	}
	// The transmitted state carries all four edits.
	if got := len(f.state.Data.Slots); got != 6 { // 2 seeded + 4 created
		t.Fatalf("remote slots = %d, want 6", got)
	}
}

func TestFlushQueueFailureBacksOff(t *testing.T) {
	f := newFakeClient()
	f.failPush = true
	e, states, local := newTestEngine(t, f)
	ctx := context.Background()

	signIn(t, ctx, states, f)
	if _, err := states.CreateSlot(ctx, model.Slot{Title: "t", StartsAt: time.Now().UTC().Add(time.Hour), EndsAt: time.Now().UTC().Add(2 * time.Hour), Capacity: 1}); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}

	if err := e.FlushQueue(ctx); err == nil {
		t.Fatalf("want push error")
	}
	if e.Retries() != 1 {
		t.Fatalf("retries = %d, want 1", e.Retries())
	}
	// Payload survives for the retry.
	n, err := local.QueueCount(ctx)
	if err != nil || n != 1 {
		t.Fatalf("QueueCount = %d, %v; want 1", n, err)
	}
	s, err := states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.Meta.LastSyncError == "" {
		t.Fatalf("lastSyncError not recorded")
	}

	// Recovery clears both the counter and the recorded error.
	f.failPush = false
	if err := e.FlushQueue(ctx); err != nil {
		t.Fatalf("FlushQueue after recovery: %v", err)
	}
	if e.Retries() != 0 {
		t.Fatalf("retries = %d after success, want 0", e.Retries())
	}
	s, err = states.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if s.Meta.LastSyncError != "" {
		t.Fatalf("lastSyncError = %q after success", s.Meta.LastSyncError)
	}
}

func TestIsCloudReady(t *testing.T) {
	f := newFakeClient()
	e, _, _ := newTestEngine(t, f)

	s := model.Defaults()
	if e.IsCloudReady(s) {
		t.Fatalf("ready without user and org")
	}
	s.User = f.user
	if e.IsCloudReady(s) {
		t.Fatalf("ready without active org")
	}
	s.ActiveOrgID = "not-a-uuid"
	if e.IsCloudReady(s) {
		t.Fatalf("ready with malformed org id")
	}
	s.ActiveOrgID = f.orgs[0].ID
	if !e.IsCloudReady(s) {
		t.Fatalf("not ready with user and valid org")
	}

	disabled, _, _ := newTestEngine(t, nil)
	if disabled.IsCloudReady(s) {
		t.Fatalf("ready without a configured client")
	}
}
