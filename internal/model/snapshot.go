package model

import "time"

// Snapshot reasons written by the state manager. They describe why a local
// backup was taken and show up in the backup listing.
const (
	ReasonSeed      = "seed"
	ReasonMigration = "migration"
	ReasonImport    = "import"
	ReasonAutosave  = "autosave"
)

// Snapshot is one entry of the local backup ring: an immutable point-in-time
// copy of the whole state. Entries are only ever removed by pruning.
//
// Fields:
//  ID        – auto-increment id assigned by the durable store; the
//              tie-breaker when two snapshots share a timestamp.
//  CreatedAt – when the snapshot was taken.
//  Reason    – one of the Reason* constants.
//  State     – the full state copy.
type Snapshot struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Reason    string    `json:"reason"`
	State     AppState  `json:"state"`
}

// QueuedPush is the single pending outbound sync payload. The queue is a
// one-slot mailbox: enqueueing replaces whatever was there, because remote
// storage is a whole-state upsert and only the latest state matters.
type QueuedPush struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	State     AppState  `json:"state"`
	OrgID     string    `json:"org_id,omitempty"`
}

// BackupFileVersion is the format version of exported backup documents.
const BackupFileVersion = 1

// BackupFile is the user-facing export document. Import also accepts a bare
// object carrying slots/bookings arrays directly, for older exports.
type BackupFile struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	State      AppState  `json:"state"`
}
