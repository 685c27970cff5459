package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
	"github.com/iliyamo/termin-manager/internal/store"
)

// testClock hands out strictly increasing timestamps so snapshot ordering
// is deterministic.
func testClock() func() time.Time {
	at := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

func newTestManager(t *testing.T, opts Options) (*Manager, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	if opts.Clock == nil {
		opts.Clock = testClock()
	}
	return New(st, opts), st
}

func TestGetStateSeedsEmptyInstall(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	s, err := m.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if len(s.Slots) != 2 {
		t.Fatalf("seeded %d slots, want 2", len(s.Slots))
	}
	if len(s.Bookings) != 0 {
		t.Fatalf("seeded %d bookings, want 0", len(s.Bookings))
	}
	if s.Meta.StoreVersion != model.CurrentStoreVersion {
		t.Fatalf("store version = %d, want %d", s.Meta.StoreVersion, model.CurrentStoreVersion)
	}

	snaps, err := m.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Reason != model.ReasonSeed {
		t.Fatalf("want one seed snapshot, got %+v", snaps)
	}
}

func TestGetStateReturnsCopies(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	a, err := m.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	a.Slots[0].Title = "mutated"

	b, err := m.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if b.Slots[0].Title == "mutated" {
		t.Fatalf("GetState handed out a shared reference")
	}
}

func TestMigrateLegacyFiles(t *testing.T) {
	legacyDir := t.TempDir()
	slot := model.Slot{ID: model.NewID(), Title: "Altbestand", StartsAt: time.Now().UTC(), EndsAt: time.Now().UTC().Add(time.Hour), Capacity: 5}
	booking := model.Booking{ID: model.NewID(), SlotID: slot.ID, Name: "Erika", Phone: "0171 111", Count: 2}

	writeJSON := func(name string, v any) {
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", name, err)
		}
		if err := os.WriteFile(filepath.Join(legacyDir, name), raw, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	writeJSON("seeyou_slots_v1.json", []model.Slot{slot})
	writeJSON("seeyou_bookings_v1.json", []model.Booking{booking})

	m, st := newTestManager(t, Options{LegacyDir: legacyDir})
	ctx := context.Background()

	s, err := m.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if len(s.Slots) != 1 || s.Slots[0].ID != slot.ID {
		t.Fatalf("migrated slots wrong: %+v", s.Slots)
	}
	if len(s.Bookings) != 1 || s.Bookings[0].ID != booking.ID {
		t.Fatalf("migrated bookings wrong: %+v", s.Bookings)
	}

	snaps, err := m.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Reason != model.ReasonMigration {
		t.Fatalf("want one migration snapshot, got %+v", snaps)
	}

	// A second session over the same store must not migrate again: the
	// durable state now wins over the legacy files.
	m2 := New(st, Options{LegacyDir: legacyDir, Clock: testClock()})
	s2, err := m2.GetState(ctx)
	if err != nil {
		t.Fatalf("second GetState: %v", err)
	}
	if len(s2.Slots) != 1 {
		t.Fatalf("second session re-migrated: %+v", s2.Slots)
	}
	snaps, err = m2.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("migration snapshot duplicated: %d entries", len(snaps))
	}
}

func TestMigrateLegacyCorruptFileSeedsInstead(t *testing.T) {
	legacyDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(legacyDir, "seeyou_slots_v1.json"), []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	m, _ := newTestManager(t, Options{LegacyDir: legacyDir})
	s, err := m.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	// Corrupt legacy data must not brick the start; the install seeds fresh.
	if len(s.Slots) != 2 {
		t.Fatalf("expected seeded slots, got %+v", s.Slots)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	if _, err := m.CreateSlot(ctx, model.Slot{Title: "Kurs", StartsAt: time.Now().UTC().Add(time.Hour), EndsAt: time.Now().UTC().Add(2 * time.Hour), Capacity: 4}); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	doc, err := m.ExportBackup(ctx)
	if err != nil {
		t.Fatalf("ExportBackup: %v", err)
	}
	if doc.Version != model.BackupFileVersion {
		t.Fatalf("export version = %d, want %d", doc.Version, model.BackupFileVersion)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal export: %v", err)
	}

	// Import into a fresh store and compare the domain data.
	m2, _ := newTestManager(t, Options{})
	got, err := m2.ImportBackup(ctx, raw)
	if err != nil {
		t.Fatalf("ImportBackup: %v", err)
	}
	if len(got.Slots) != len(doc.State.Slots) {
		t.Fatalf("imported %d slots, want %d", len(got.Slots), len(doc.State.Slots))
	}
	snaps, err := m2.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}
	if snaps[0].Reason != model.ReasonImport {
		t.Fatalf("newest snapshot reason = %s, want %s", snaps[0].Reason, model.ReasonImport)
	}
}

func TestImportBackupAcceptsBareState(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	raw := []byte(`{"slots":[],"bookings":[]}`)
	if _, err := m.ImportBackup(context.Background(), raw); err != nil {
		t.Fatalf("bare object import: %v", err)
	}
}

func TestImportBackupRejectsMalformed(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	before, err := m.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}

	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "{nope"},
		{"missing bookings", `{"slots":[]}`},
		{"slots not an array", `{"slots":{},"bookings":[]}`},
		{"wrapper with bad inner", `{"version":1,"state":{"slots":7,"bookings":[]}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.ImportBackup(ctx, []byte(tc.raw))
			var schemaErr *SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("want SchemaError, got %v", err)
			}
		})
	}

	after, err := m.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if !before.Equal(after) {
		t.Fatalf("rejected import modified state")
	}
}

func TestSnapshotRingIsBounded(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxLocalBackups: 3})
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := m.UpdateState(ctx, func(draft *model.AppState) {
			draft.UI.LastBackupDay = time.Now().Add(time.Duration(i) * time.Hour).Format("2006-01-02")
		}, UpdateOptions{SkipSync: true, SkipRender: true})
		if err != nil {
			t.Fatalf("UpdateState %d: %v", i, err)
		}
	}

	snaps, err := m.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("ring holds %d snapshots, want 3", len(snaps))
	}
	// The survivors must be the newest ones.
	for i := 1; i < len(snaps); i++ {
		if snaps[i].CreatedAt.After(snaps[i-1].CreatedAt) {
			t.Fatalf("pruning kept wrong entries: %+v", snaps)
		}
	}
}

func TestRestoreSnapshot(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	first, err := m.CreateSlot(ctx, model.Slot{Title: "Original", StartsAt: time.Now().UTC().Add(time.Hour), EndsAt: time.Now().UTC().Add(2 * time.Hour), Capacity: 3})
	if err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	snaps, err := m.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}
	target := snaps[0] // autosave of the state containing "Original"

	// Mutate further, then restore.
	if _, err := m.DeleteSlot(ctx, first.Slots[len(first.Slots)-1].ID); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	restored, err := m.RestoreSnapshot(ctx, target)
	if err != nil {
		t.Fatalf("RestoreSnapshot: %v", err)
	}
	if len(restored.Slots) != len(first.Slots) {
		t.Fatalf("restore returned %d slots, want %d", len(restored.Slots), len(first.Slots))
	}
}

func TestUpdateStateNotifiesRender(t *testing.T) {
	rendered := 0
	m, _ := newTestManager(t, Options{OnRender: func(model.AppState) { rendered++ }})
	ctx := context.Background()

	if _, err := m.UpdateState(ctx, func(*model.AppState) {}, UpdateOptions{SkipSync: true}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if rendered != 1 {
		t.Fatalf("render fired %d times, want 1", rendered)
	}
	if _, err := m.UpdateState(ctx, func(*model.AppState) {}, UpdateOptions{SkipSync: true, SkipRender: true}); err != nil {
		t.Fatalf("UpdateState: %v", err)
	}
	if rendered != 1 {
		t.Fatalf("SkipRender still fired the callback")
	}
}
