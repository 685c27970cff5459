package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
)

// setupSlot creates a manager with one future slot of the given capacity.
func setupSlot(t *testing.T, capacity int) (*Manager, model.Slot) {
	t.Helper()
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	s, err := m.CreateSlot(ctx, model.Slot{
		Title:    "Workshop",
		StartsAt: time.Now().UTC().Add(24 * time.Hour),
		EndsAt:   time.Now().UTC().Add(26 * time.Hour),
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	return m, s.Slots[len(s.Slots)-1]
}

func TestCreateSlotValidation(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()
	now := time.Now().UTC()

	cases := []struct {
		name string
		slot model.Slot
	}{
		{"missing title", model.Slot{StartsAt: now, EndsAt: now.Add(time.Hour), Capacity: 1}},
		{"zero capacity", model.Slot{Title: "t", StartsAt: now, EndsAt: now.Add(time.Hour)}},
		{"end before start", model.Slot{Title: "t", StartsAt: now.Add(time.Hour), EndsAt: now, Capacity: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.CreateSlot(ctx, tc.slot); !errors.Is(err, ErrInvalidSlot) {
				t.Fatalf("want ErrInvalidSlot, got %v", err)
			}
		})
	}
}

func TestPutBookingCapacity(t *testing.T) {
	m, slot := setupSlot(t, 3)
	ctx := context.Background()

	if _, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "A", Phone: "0171 1", Count: 2}, false); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "B", Phone: "0171 2", Count: 2}, false)
	var capErr *CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("want CapacityError, got %v", err)
	}
	if capErr.Left != 1 {
		t.Fatalf("Left = %d, want 1", capErr.Left)
	}

	// The exact remaining count fits.
	if _, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "B", Phone: "0171 2", Count: 1}, false); err != nil {
		t.Fatalf("fitting booking rejected: %v", err)
	}
}

func TestPutBookingEditExcludesOwnSeats(t *testing.T) {
	m, slot := setupSlot(t, 2)
	ctx := context.Background()

	s, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "A", Phone: "0171 1", Count: 2}, false)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	existing := s.Bookings[0]

	// Re-saving the full slot must not count the booking against itself.
	edited := existing
	edited.Notes = "window seat"
	next, err := m.PutBooking(ctx, edited, false)
	if err != nil {
		t.Fatalf("edit booking: %v", err)
	}
	if len(next.Bookings) != 1 {
		t.Fatalf("edit duplicated the booking: %d entries", len(next.Bookings))
	}
	if next.Bookings[0].Notes != "window seat" {
		t.Fatalf("edit not applied: %+v", next.Bookings[0])
	}
	if !next.Bookings[0].CreatedAt.Equal(existing.CreatedAt) {
		t.Fatalf("edit changed CreatedAt")
	}
}

func TestPutBookingDuplicatePhone(t *testing.T) {
	m, slot := setupSlot(t, 10)
	ctx := context.Background()

	if _, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "A", Phone: "0171 234 56 78", Count: 1}, false); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	// Same number in international notation trips the duplicate check.
	_, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "B", Phone: "+49 171 2345678", Count: 1}, false)
	var dupErr *DuplicateContactError
	if !errors.As(err, &dupErr) {
		t.Fatalf("want DuplicateContactError, got %v", err)
	}

	// Override accepts the duplicate knowingly.
	next, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "B", Phone: "+49 171 2345678", Count: 1}, true)
	if err != nil {
		t.Fatalf("override rejected: %v", err)
	}
	if len(next.Bookings) != 2 {
		t.Fatalf("override did not store the booking: %d entries", len(next.Bookings))
	}
}

func TestPutBookingOverrideBypassesCapacity(t *testing.T) {
	m, slot := setupSlot(t, 1)
	ctx := context.Background()

	if _, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "A", Phone: "0171 1", Count: 1}, false); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "B", Phone: "0171 2", Count: 5}, true); err != nil {
		t.Fatalf("override rejected: %v", err)
	}
}

func TestPutBookingUnknownSlot(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	_, err := m.PutBooking(context.Background(), model.Booking{SlotID: model.NewID(), Name: "A", Phone: "1", Count: 1}, false)
	if !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("want ErrSlotNotFound, got %v", err)
	}
}

func TestDeleteSlotCascadesBookings(t *testing.T) {
	m, slot := setupSlot(t, 5)
	ctx := context.Background()

	if _, err := m.PutBooking(ctx, model.Booking{SlotID: slot.ID, Name: "A", Phone: "0171 1", Count: 2}, false); err != nil {
		t.Fatalf("booking: %v", err)
	}
	next, err := m.DeleteSlot(ctx, slot.ID)
	if err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	if _, ok := model.FindSlot(next, slot.ID); ok {
		t.Fatalf("slot still present after delete")
	}
	if n := len(model.BookingsFor(next, slot.ID)); n != 0 {
		t.Fatalf("%d orphaned bookings left behind", n)
	}
}

func TestEditSlotPreservesArchivedFlag(t *testing.T) {
	m, slot := setupSlot(t, 5)
	ctx := context.Background()

	if _, err := m.ToggleArchive(ctx, slot.ID, true); err != nil {
		t.Fatalf("ToggleArchive: %v", err)
	}
	edited := slot
	edited.Title = "Renamed"
	next, err := m.EditSlot(ctx, edited)
	if err != nil {
		t.Fatalf("EditSlot: %v", err)
	}
	got, ok := model.FindSlot(next, slot.ID)
	if !ok {
		t.Fatalf("slot missing after edit")
	}
	if got.Title != "Renamed" || !got.Archived {
		t.Fatalf("edit dropped the archived flag: %+v", got)
	}
}

func TestEditSlotUnknownID(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	_, err := m.EditSlot(context.Background(), model.Slot{
		ID: model.NewID(), Title: "x",
		StartsAt: time.Now().UTC(), EndsAt: time.Now().UTC().Add(time.Hour), Capacity: 1,
	})
	if !errors.Is(err, ErrSlotNotFound) {
		t.Fatalf("want ErrSlotNotFound, got %v", err)
	}
}

func TestSessionWritesSkipSnapshotAndSync(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	enqueued := 0
	m.SetEnqueue(func(context.Context, model.AppState) { enqueued++ })

	if _, err := m.GetState(ctx); err != nil {
		t.Fatalf("GetState: %v", err)
	}
	before, err := m.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}

	if _, err := m.SetUser(ctx, &model.User{ID: model.NewID(), Email: "a@b.c"}); err != nil {
		t.Fatalf("SetUser: %v", err)
	}
	if _, err := m.SetCollapsed(ctx, false, true); err != nil {
		t.Fatalf("SetCollapsed: %v", err)
	}

	after, err := m.ListLocalBackups(ctx)
	if err != nil {
		t.Fatalf("ListLocalBackups: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("session writes took snapshots: %d -> %d", len(before), len(after))
	}
	if enqueued != 0 {
		t.Fatalf("session writes enqueued %d sync payloads", enqueued)
	}
}

func TestSetOrgsNormalizesActiveOrg(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	ctx := context.Background()

	orgs := []model.Org{
		{ID: model.NewID(), Name: "First", Role: "owner"},
		{ID: model.NewID(), Name: "Second", Role: "user"},
	}
	next, err := m.SetOrgs(ctx, orgs)
	if err != nil {
		t.Fatalf("SetOrgs: %v", err)
	}
	if next.ActiveOrgID != orgs[0].ID {
		t.Fatalf("active org = %q, want first membership %q", next.ActiveOrgID, orgs[0].ID)
	}

	// Removing the active org falls back to the remaining membership.
	next, err = m.SetOrgs(ctx, orgs[1:])
	if err != nil {
		t.Fatalf("SetOrgs: %v", err)
	}
	if next.ActiveOrgID != orgs[1].ID {
		t.Fatalf("active org = %q, want %q", next.ActiveOrgID, orgs[1].ID)
	}
}
