package model

import "time"

// Slot is a bookable time window with a maximum capacity.
//
// Fields:
//  ID       – UUID identifier.
//  Title    – display title chosen by the operator.
//  StartsAt – when the window opens.
//  EndsAt   – when the window closes (after StartsAt).
//  Capacity – maximum number of seats, must be positive.
//  Archived – archived slots are hidden from active listings but keep
//             their bookings.
type Slot struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Capacity int       `json:"capacity"`
	Archived bool      `json:"archived"`
}

// SlotStatus classifies a slot for display and filtering.
type SlotStatus string

const (
	StatusOpen     SlotStatus = "open"
	StatusFull     SlotStatus = "full"
	StatusPast     SlotStatus = "past"
	StatusArchived SlotStatus = "archived"
)

// Status derives the slot's state at the given instant. Archived wins over
// everything, then past, then full.
func (s Slot) Status(state AppState, now time.Time) SlotStatus {
	if s.Archived {
		return StatusArchived
	}
	if s.EndsAt.Before(now) {
		return StatusPast
	}
	if s.Capacity-BookedCount(state, s.ID) <= 0 {
		return StatusFull
	}
	return StatusOpen
}

// FindSlot returns the slot with the given id, or false when absent.
func FindSlot(state AppState, id string) (Slot, bool) {
	for _, s := range state.Slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// SeedSlots builds the two example future slots written on first start of
// an empty installation: tomorrow at 17:00 and in three days at 10:00,
// both two hours long.
func SeedSlots(now time.Time) []Slot {
	s1 := time.Date(now.Year(), now.Month(), now.Day(), 17, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	s2 := time.Date(now.Year(), now.Month(), now.Day(), 10, 0, 0, 0, now.Location()).AddDate(0, 0, 3)
	return []Slot{
		{ID: NewID(), Title: "Workshop Termin", StartsAt: s1, EndsAt: s1.Add(2 * time.Hour), Capacity: 10},
		{ID: NewID(), Title: "Workshop Termin", StartsAt: s2, EndsAt: s2.Add(2 * time.Hour), Capacity: 8},
	}
}
