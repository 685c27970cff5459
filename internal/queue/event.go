// Package queue defines message payloads exchanged over the message broker.
package queue

// StatePushedEvent is published whenever an agent uploads a new state blob.
// It contains enough information for downstream consumers to log or audit
// the push without querying the primary database. The state itself is not
// included; consumers that need it read the org_states row.
type StatePushedEvent struct {
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	Slots     int    `json:"slots"`
	Bookings  int    `json:"bookings"`
	SizeBytes int    `json:"size_bytes"`
	UpdatedAt string `json:"updated_at"`
}
