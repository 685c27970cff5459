package state

import (
	"context"
	"errors"

	"github.com/iliyamo/termin-manager/internal/model"
)

// Domain operations. Each one funnels through UpdateState so every write
// gets the same save, snapshot and enqueue ordering. Validation happens
// against the state read inside the same UpdateState critical section.

// ErrSlotNotFound is returned when an operation references a missing slot.
var ErrSlotNotFound = errors.New("slot not found")

// ErrInvalidSlot is returned when a slot fails basic validation.
var ErrInvalidSlot = errors.New("slot needs a title, a positive capacity and start before end")

// ErrInvalidBooking is returned when a booking misses required fields.
var ErrInvalidBooking = errors.New("booking needs a name, a phone number and a positive count")

// CreateSlot validates and appends a new slot. A missing id is assigned.
func (m *Manager) CreateSlot(ctx context.Context, slot model.Slot) (model.AppState, error) {
	if slot.Title == "" || slot.Capacity <= 0 || !slot.StartsAt.Before(slot.EndsAt) {
		return model.AppState{}, ErrInvalidSlot
	}
	if slot.ID == "" {
		slot.ID = model.NewID()
	}
	return m.UpdateState(ctx, func(draft *model.AppState) {
		draft.Slots = append(draft.Slots, slot)
		now := m.opts.Clock()
		draft.Meta.LastSaveAt = &now
	}, UpdateOptions{})
}

// EditSlot replaces title, capacity and times of an existing slot. Editing
// capacity below the already booked total is allowed: the invariant is
// checked at booking write time, not continuously.
func (m *Manager) EditSlot(ctx context.Context, slot model.Slot) (model.AppState, error) {
	if slot.Title == "" || slot.Capacity <= 0 || !slot.StartsAt.Before(slot.EndsAt) {
		return model.AppState{}, ErrInvalidSlot
	}
	found := false
	next, err := m.UpdateState(ctx, func(draft *model.AppState) {
		for i := range draft.Slots {
			if draft.Slots[i].ID == slot.ID {
				archived := draft.Slots[i].Archived
				draft.Slots[i] = slot
				draft.Slots[i].Archived = archived
				found = true
				break
			}
		}
		now := m.opts.Clock()
		draft.Meta.LastSaveAt = &now
	}, UpdateOptions{})
	if err != nil {
		return model.AppState{}, err
	}
	if !found {
		return model.AppState{}, ErrSlotNotFound
	}
	return next, nil
}

// ToggleArchive sets the archived flag of a slot.
func (m *Manager) ToggleArchive(ctx context.Context, slotID string, archived bool) (model.AppState, error) {
	return m.UpdateState(ctx, func(draft *model.AppState) {
		for i := range draft.Slots {
			if draft.Slots[i].ID == slotID {
				draft.Slots[i].Archived = archived
				break
			}
		}
		now := m.opts.Clock()
		draft.Meta.LastSaveAt = &now
	}, UpdateOptions{})
}

// DeleteSlot removes a slot together with all bookings that depend on it.
func (m *Manager) DeleteSlot(ctx context.Context, slotID string) (model.AppState, error) {
	return m.UpdateState(ctx, func(draft *model.AppState) {
		slots := draft.Slots[:0]
		for _, s := range draft.Slots {
			if s.ID != slotID {
				slots = append(slots, s)
			}
		}
		draft.Slots = slots
		bookings := draft.Bookings[:0]
		for _, b := range draft.Bookings {
			if b.SlotID != slotID {
				bookings = append(bookings, b)
			}
		}
		draft.Bookings = bookings
		now := m.opts.Clock()
		draft.Meta.LastSaveAt = &now
	}, UpdateOptions{})
}

// PutBooking creates or edits a booking. Editing is detected by an existing
// booking id; the previous seat count of the edited booking is excluded
// from the capacity check. Two soft validations guard the write:
//
//   - capacity: the new count must fit into the remaining seats, else a
//     CapacityError is returned;
//   - duplicate contact: the same normalized phone number on the same slot
//     returns a DuplicateContactError.
//
// Both are skipped when the caller sets override, which lets a user
// knowingly accept the warning for this one booking.
func (m *Manager) PutBooking(ctx context.Context, booking model.Booking, override bool) (model.AppState, error) {
	if booking.Name == "" || booking.Phone == "" || booking.Count <= 0 {
		return model.AppState{}, ErrInvalidBooking
	}
	current, err := m.GetState(ctx)
	if err != nil {
		return model.AppState{}, err
	}
	slot, ok := model.FindSlot(current, booking.SlotID)
	if !ok {
		return model.AppState{}, ErrSlotNotFound
	}

	var old *model.Booking
	for i := range current.Bookings {
		if current.Bookings[i].ID == booking.ID {
			old = &current.Bookings[i]
			break
		}
	}
	if booking.ID == "" {
		booking.ID = model.NewID()
	}
	if old != nil {
		booking.CreatedAt = old.CreatedAt
	} else if booking.CreatedAt.IsZero() {
		booking.CreatedAt = m.opts.Clock()
	}

	if !override {
		norm := model.NormalizePhone(booking.Phone)
		for _, b := range current.Bookings {
			if b.SlotID == slot.ID && (old == nil || b.ID != old.ID) && model.NormalizePhone(b.Phone) == norm {
				return model.AppState{}, &DuplicateContactError{SlotID: slot.ID, Phone: norm}
			}
		}
		booked := model.BookedCount(current, slot.ID)
		if old != nil {
			booked -= old.Count
		}
		if left := slot.Capacity - booked; booking.Count > left {
			return model.AppState{}, &CapacityError{SlotID: slot.ID, Left: left}
		}
	}

	return m.UpdateState(ctx, func(draft *model.AppState) {
		replaced := false
		for i := range draft.Bookings {
			if draft.Bookings[i].ID == booking.ID {
				draft.Bookings[i] = booking
				replaced = true
				break
			}
		}
		if !replaced {
			draft.Bookings = append(draft.Bookings, booking)
		}
		now := m.opts.Clock()
		draft.Meta.LastSaveAt = &now
	}, UpdateOptions{})
}

// DeleteBooking removes a booking by id. Unknown ids are a no-op.
func (m *Manager) DeleteBooking(ctx context.Context, bookingID string) (model.AppState, error) {
	return m.UpdateState(ctx, func(draft *model.AppState) {
		bookings := draft.Bookings[:0]
		for _, b := range draft.Bookings {
			if b.ID != bookingID {
				bookings = append(bookings, b)
			}
		}
		draft.Bookings = bookings
		now := m.opts.Clock()
		draft.Meta.LastSaveAt = &now
	}, UpdateOptions{})
}

// SetUser records the authenticated principal. Session data is device
// scoped, so the write neither snapshots nor syncs.
func (m *Manager) SetUser(ctx context.Context, user *model.User) (model.AppState, error) {
	return m.UpdateState(ctx, func(draft *model.AppState) {
		draft.User = user
	}, UpdateOptions{SkipSync: true, SkipSnapshot: true, SkipRender: true})
}

// SetOrgs replaces the membership list and renormalizes the active tenant.
// Like SetUser this is session data: no snapshot, no sync.
func (m *Manager) SetOrgs(ctx context.Context, orgs []model.Org) (model.AppState, error) {
	return m.UpdateState(ctx, func(draft *model.AppState) {
		draft.Orgs = orgs
		draft.ActiveOrgID = model.NormalizeActiveOrgID(draft.ActiveOrgID, orgs)
		if len(orgs) > 0 && draft.ActiveOrgID == "" {
			draft.ActiveOrgID = orgs[0].ID
		}
	}, UpdateOptions{SkipSync: true, SkipSnapshot: true, SkipRender: true})
}

// SetActiveOrg switches the tenant scope. The id goes through the same
// normalization as every save, so an id outside the known memberships
// falls back rather than sticking. Session data: no snapshot, no sync.
func (m *Manager) SetActiveOrg(ctx context.Context, orgID string) (model.AppState, error) {
	return m.UpdateState(ctx, func(draft *model.AppState) {
		draft.ActiveOrgID = model.NormalizeActiveOrgID(orgID, draft.Orgs)
	}, UpdateOptions{SkipSync: true, SkipSnapshot: true, SkipRender: true})
}

// SetCollapsed persists a panel collapse flag without snapshot, sync or
// re-render: it is presentation state only.
func (m *Manager) SetCollapsed(ctx context.Context, archive, collapsed bool) (model.AppState, error) {
	return m.UpdateState(ctx, func(draft *model.AppState) {
		if archive {
			draft.UI.CollapsedArchive = collapsed
		} else {
			draft.UI.CollapsedActive = collapsed
		}
	}, UpdateOptions{SkipSync: true, SkipSnapshot: true, SkipRender: true})
}
