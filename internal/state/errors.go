package state

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// SchemaError rejects a malformed import payload before any write. The
// original state is untouched when this is returned.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string { return "backup schema invalid: " + e.Reason }

// CapacityError blocks a booking write that would push the seat total of a
// slot past its capacity. Left reports how many seats remain so the caller
// can surface it. The write is blocked, state is not corrupted.
type CapacityError struct {
	SlotID string
	Left   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("slot %s: only %d seats left", e.SlotID, e.Left)
}

// DuplicateContactError flags a booking whose normalized phone number is
// already booked on the same slot. The caller may override and proceed.
type DuplicateContactError struct {
	SlotID string
	Phone  string
}

func (e *DuplicateContactError) Error() string {
	return fmt.Sprintf("slot %s: phone %s already booked", e.SlotID, e.Phone)
}

// maxDiagnostics bounds the in-memory error ring.
const maxDiagnostics = 50

// Diagnostic is one caught error kept for inspection.
type Diagnostic struct {
	Time    time.Time
	Context string
	Message string
}

// errorRing keeps the most recent caught errors. Local-data errors are
// fatal to the operation but never to the process, so everything caught at
// a boundary ends up here instead of panicking.
type errorRing struct {
	mu      sync.Mutex
	entries []Diagnostic
}

func (r *errorRing) record(clock func() time.Time, context string, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Diagnostic{Time: clock(), Context: context, Message: err.Error()})
	if len(r.entries) > maxDiagnostics {
		r.entries = r.entries[len(r.entries)-maxDiagnostics:]
	}
	log.Printf("%s: %v", context, err)
}

func (r *errorRing) list() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.entries))
	copy(out, r.entries)
	return out
}
