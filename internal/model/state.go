package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CurrentStoreVersion gates schema upgrades of the local durable store.
// Bumping it triggers an idempotent upgrade on next open; upgrades never
// remove tables or records they do not know about.
const CurrentStoreVersion = 3

// AppState is the single source of truth for one device + tenant pair.
// It is owned exclusively by the state manager; every other component
// receives deep copies and must never mutate a shared reference.
//
// Fields:
//  Slots       – bookable time windows, unique by ID.
//  Bookings    – reservations against slots, unique by ID.
//  UI          – persisted presentation flags (collapse states).
//  Meta        – operational bookkeeping (sync/save timestamps, errors).
//  ActiveOrgID – tenant scope for remote sync; empty when no tenant is
//                selected. Always either empty or a member of Orgs.
//  Orgs        – organizations the current user belongs to.
//  User        – authenticated principal, nil when signed out.
type AppState struct {
	Slots       []Slot    `json:"slots"`
	Bookings    []Booking `json:"bookings"`
	UI          UIFlags   `json:"ui"`
	Meta        Meta      `json:"meta"`
	ActiveOrgID string    `json:"activeOrgId,omitempty"`
	Orgs        []Org     `json:"orgs"`
	User        *User     `json:"user,omitempty"`
}

// UIFlags carries panel collapse state between sessions. The flags are
// persisted alongside the domain data but have no semantic weight in
// snapshots or sync decisions.
type UIFlags struct {
	CollapsedActive  bool   `json:"collapsedActive"`
	CollapsedArchive bool   `json:"collapsedArchive"`
	LastBackupDay    string `json:"lastBackupDay,omitempty"`
}

// Meta records operational bookkeeping for the state blob.
type Meta struct {
	LastSyncAt    *time.Time `json:"lastSyncAt"`
	LastSaveAt    *time.Time `json:"lastSaveAt"`
	LastSyncError string     `json:"lastSyncError,omitempty"`
	StoreVersion  int        `json:"storeVersion"`
}

// Org is one organization membership of the current user. Role is the
// caller's role within that organization (owner, admin or user).
type Org struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// User identifies the authenticated principal on this device.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Defaults returns a fresh AppState with empty collections, the archive
// panel collapsed and the current store version stamped into Meta.
func Defaults() AppState {
	return AppState{
		Slots:    []Slot{},
		Bookings: []Booking{},
		UI:       UIFlags{CollapsedArchive: true},
		Meta:     Meta{StoreVersion: CurrentStoreVersion},
		Orgs:     []Org{},
	}
}

// Clone returns a deep copy of the state via a JSON round trip. The state
// consists of plain data types only, so marshalling cannot fail; a zero
// value is returned in the impossible error case to keep call sites simple.
func (s AppState) Clone() AppState {
	raw, err := json.Marshal(s)
	if err != nil {
		return Defaults()
	}
	var out AppState
	if err := json.Unmarshal(raw, &out); err != nil {
		return Defaults()
	}
	return out
}

// Equal reports whether two states serialize identically. Used for
// read-after-write verification and reconciliation no-op detection.
func (s AppState) Equal(other AppState) bool {
	a, err1 := json.Marshal(s)
	b, err2 := json.Marshal(other)
	return err1 == nil && err2 == nil && string(a) == string(b)
}

// Normalized returns a copy with nil collections replaced by empty ones,
// the store version stamped and ActiveOrgID reduced to a valid value:
// empty unless it is a well-formed UUID, and reset to the first known org
// when memberships exist but do not contain it.
func (s AppState) Normalized() AppState {
	out := s.Clone()
	if out.Slots == nil {
		out.Slots = []Slot{}
	}
	if out.Bookings == nil {
		out.Bookings = []Booking{}
	}
	if out.Orgs == nil {
		out.Orgs = []Org{}
	}
	out.Meta.StoreVersion = CurrentStoreVersion
	out.ActiveOrgID = NormalizeActiveOrgID(out.ActiveOrgID, out.Orgs)
	return out
}

// NormalizeActiveOrgID enforces the tenant invariant: the id must be a
// UUID and, when memberships are known, one of them. A stale id falls
// back to the first membership so the device keeps syncing somewhere
// sensible after an org is removed.
func NormalizeActiveOrgID(id string, orgs []Org) string {
	if !IsUUID(id) {
		return ""
	}
	if len(orgs) == 0 {
		return id
	}
	for _, o := range orgs {
		if o.ID == id {
			return id
		}
	}
	return orgs[0].ID
}

// IsUUID reports whether v looks like a canonical 36-character UUID.
func IsUUID(v string) bool {
	return len(v) == 36 && uuid.Validate(v) == nil
}

// NewID returns a fresh UUID string for slots and bookings.
func NewID() string {
	return uuid.NewString()
}
