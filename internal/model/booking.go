package model

import (
	"strings"
	"time"
)

// Booking reserves a number of seats against a slot.
//
// Fields:
//  ID         – UUID identifier.
//  SlotID     – the slot this booking belongs to.
//  Salutation – greeting used in confirmation messages.
//  Name       – contact name.
//  Phone      – contact phone number as entered; duplicate detection
//               compares normalized forms.
//  Notes      – free-form notes.
//  Count      – number of seats, must be positive.
//  Channel    – how the booking arrived (Instagram, WhatsApp, ...).
//  CreatedAt  – creation timestamp, preserved across edits.
type Booking struct {
	ID         string    `json:"id"`
	SlotID     string    `json:"slotId"`
	Salutation string    `json:"salutation,omitempty"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone"`
	Notes      string    `json:"notes,omitempty"`
	Count      int       `json:"count"`
	Channel    string    `json:"channel,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// BookingsFor returns all bookings attached to a slot, in state order.
func BookingsFor(state AppState, slotID string) []Booking {
	out := make([]Booking, 0)
	for _, b := range state.Bookings {
		if b.SlotID == slotID {
			out = append(out, b)
		}
	}
	return out
}

// BookedCount sums the seat counts of all bookings for a slot.
func BookedCount(state AppState, slotID string) int {
	total := 0
	for _, b := range state.Bookings {
		if b.SlotID == slotID {
			total += b.Count
		}
	}
	return total
}

// NormalizePhone reduces a phone number to digits with a German country
// prefix, so that "0171 234" and "+49 171 234" compare equal.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if strings.HasPrefix(d, "00") {
		d = d[2:]
	} else if strings.HasPrefix(d, "0") {
		d = "49" + d[1:]
	}
	return d
}
