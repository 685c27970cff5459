// Package state owns the canonical in-memory application state. All reads
// hand out deep copies and all writes funnel through UpdateState, which
// guarantees the save-then-snapshot-then-enqueue ordering the sync engine
// relies on.
package state

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
	"github.com/iliyamo/termin-manager/internal/store"
)

// stateKey is the kv record holding the singleton current-state blob.
const stateKey = "state"

// Options configures a Manager. The zero value is usable; defaults are
// filled in by New.
type Options struct {
	// MaxLocalBackups bounds the local snapshot ring (default 10).
	MaxLocalBackups int
	// ReadVerify re-reads the state after every write and logs a warning
	// on mismatch. Off by default; the freshly written in-memory value is
	// kept either way, never a stale one.
	ReadVerify bool
	// LegacyDir is searched for the flat-format files of the previous
	// storage generation. Empty disables migration.
	LegacyDir string
	// Clock supplies timestamps, overridable in tests.
	Clock func() time.Time
	// OnRender is invoked with the fresh state after every unsuppressed
	// UpdateState, so a UI layer can repaint. May be nil.
	OnRender func(model.AppState)
}

// Manager is the single owner of the application state for one session.
// It lazy-loads from the durable store on first access, applies the legacy
// migration path, seeds defaults when empty, and hands out copies only.
type Manager struct {
	store *store.Store
	opts  Options

	mu    sync.Mutex
	cache *model.AppState

	// enqueue hands a freshly saved state to the sync engine. Wired after
	// construction to break the manager/engine cycle; nil means no sync.
	enqueue func(context.Context, model.AppState)

	diag errorRing
}

// New returns a Manager over the given durable store.
func New(st *store.Store, opts Options) *Manager {
	if opts.MaxLocalBackups <= 0 {
		opts.MaxLocalBackups = 10
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{store: st, opts: opts}
}

// SetEnqueue wires the sync engine's enqueue hook. Must be called before
// concurrent use of UpdateState.
func (m *Manager) SetEnqueue(fn func(context.Context, model.AppState)) {
	m.enqueue = fn
}

// Diagnostics returns the bounded ring of recently caught errors.
func (m *Manager) Diagnostics() []Diagnostic { return m.diag.list() }

// GetState returns a deep copy of the current state. Resolution order:
// in-memory cache, durable store, legacy migration, seeded defaults. The
// fallback chain is deterministic and runs at most once per cold start
// because its result is cached.
func (m *Manager) GetState(ctx context.Context) (model.AppState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getStateLocked(ctx)
}

func (m *Manager) getStateLocked(ctx context.Context) (model.AppState, error) {
	if m.cache != nil {
		return m.cache.Clone(), nil
	}

	raw, err := m.store.Get(ctx, stateKey)
	if err != nil {
		return model.AppState{}, err
	}
	if raw != nil {
		stored := model.Defaults()
		if err := json.Unmarshal(raw, &stored); err != nil {
			return model.AppState{}, &store.StorageError{Op: "decode state", Err: err}
		}
		normalized := stored.Normalized()
		m.cache = &normalized
		// Persist back when normalization changed anything, without
		// polluting the backup ring.
		if !stored.Equal(normalized) {
			if _, err := m.saveStateLocked(ctx, normalized, SaveOptions{SkipSnapshot: true}); err != nil {
				return model.AppState{}, err
			}
		}
		return normalized.Clone(), nil
	}

	migrated, err := m.migrateLegacy(ctx)
	if err != nil {
		return model.AppState{}, err
	}
	if migrated != nil {
		m.addSnapshotLocked(ctx, model.ReasonMigration, *migrated)
		return migrated.Clone(), nil
	}

	seeded := model.Defaults()
	seeded.Slots = model.SeedSlots(m.opts.Clock())
	if err := m.writeStateLocked(ctx, seeded); err != nil {
		return model.AppState{}, err
	}
	m.cache = &seeded
	m.addSnapshotLocked(ctx, model.ReasonSeed, seeded)
	return seeded.Clone(), nil
}

// SaveOptions tunes a single save.
type SaveOptions struct {
	// SkipSnapshot suppresses the autosave entry in the backup ring.
	SkipSnapshot bool
}

// SaveState normalizes, persists and caches the given state, appends an
// autosave snapshot unless suppressed, and returns the canonical copy.
func (m *Manager) SaveState(ctx context.Context, s model.AppState, opts SaveOptions) (model.AppState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveStateLocked(ctx, s, opts)
}

func (m *Manager) saveStateLocked(ctx context.Context, s model.AppState, opts SaveOptions) (model.AppState, error) {
	safe := s.Normalized()
	if err := m.writeStateLocked(ctx, safe); err != nil {
		return model.AppState{}, err
	}
	if m.opts.ReadVerify {
		raw, err := m.store.Get(ctx, stateKey)
		if err != nil {
			log.Printf("state: read-after-write check failed: %v", err)
		} else {
			readback := model.Defaults()
			if err := json.Unmarshal(raw, &readback); err != nil || !safe.Equal(readback) {
				log.Printf("state: read-after-write mismatch, keeping written value")
			}
		}
	}
	m.cache = &safe
	if !opts.SkipSnapshot {
		m.addSnapshotLocked(ctx, model.ReasonAutosave, safe)
	}
	return safe.Clone(), nil
}

func (m *Manager) writeStateLocked(ctx context.Context, s model.AppState) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return &store.StorageError{Op: "encode state", Err: err}
	}
	return m.store.Put(ctx, stateKey, raw)
}

// UpdateOptions tunes a single UpdateState call.
type UpdateOptions struct {
	// SkipSync leaves the sync queue untouched.
	SkipSync bool
	// SkipSnapshot suppresses the autosave snapshot.
	SkipSnapshot bool
	// SkipRender suppresses the OnRender notification.
	SkipRender bool
}

// UpdateState is the single write path for all mutations. It reads the
// current state, applies the mutator to a private working copy, saves the
// result, then enqueues it for sync and signals a re-render unless
// suppressed. The mutator must be pure: it sees and edits only its copy.
func (m *Manager) UpdateState(ctx context.Context, mutate func(*model.AppState), opts UpdateOptions) (model.AppState, error) {
	m.mu.Lock()
	current, err := m.getStateLocked(ctx)
	if err != nil {
		m.mu.Unlock()
		return model.AppState{}, err
	}
	mutate(&current)
	saved, err := m.saveStateLocked(ctx, current, SaveOptions{SkipSnapshot: opts.SkipSnapshot})
	m.mu.Unlock()
	if err != nil {
		return model.AppState{}, err
	}
	if !opts.SkipSync && m.enqueue != nil {
		m.enqueue(ctx, saved)
	}
	if !opts.SkipRender && m.opts.OnRender != nil {
		m.opts.OnRender(saved)
	}
	return saved, nil
}

// ExportBackup wraps the current state in the versioned export document.
func (m *Manager) ExportBackup(ctx context.Context) (model.BackupFile, error) {
	current, err := m.GetState(ctx)
	if err != nil {
		return model.BackupFile{}, err
	}
	return model.BackupFile{
		Version:    model.BackupFileVersion,
		ExportedAt: m.opts.Clock(),
		State:      current,
	}, nil
}

// ImportBackup validates and applies a backup document. Both the versioned
// wrapper and a bare object carrying slots/bookings arrays are accepted.
// Malformed payloads are rejected with a SchemaError before any write. A
// successful import replaces slots/bookings/meta via merge-over-defaults
// and snapshots with reason "import".
func (m *Manager) ImportBackup(ctx context.Context, raw []byte) (model.AppState, error) {
	var probe struct {
		State json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return model.AppState{}, &SchemaError{Reason: "not a JSON object"}
	}
	payload := raw
	if len(probe.State) > 0 && string(probe.State) != "null" {
		payload = probe.State
	}
	if err := validateStateShape(payload); err != nil {
		return model.AppState{}, err
	}
	next := model.Defaults()
	if err := json.Unmarshal(payload, &next); err != nil {
		return model.AppState{}, &SchemaError{Reason: err.Error()}
	}
	return m.ImportState(ctx, next)
}

// ImportState applies an already-decoded state through the import path.
// Restoring a snapshot uses this same entry point so restore and import
// share one set of invariants.
func (m *Manager) ImportState(ctx context.Context, next model.AppState) (model.AppState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved, err := m.saveStateLocked(ctx, next, SaveOptions{SkipSnapshot: true})
	if err != nil {
		return model.AppState{}, err
	}
	m.addSnapshotLocked(ctx, model.ReasonImport, saved)
	return saved, nil
}

// validateStateShape requires slots and bookings to be present as arrays.
func validateStateShape(raw []byte) error {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return &SchemaError{Reason: "not a JSON object"}
	}
	for _, key := range []string{"slots", "bookings"} {
		val, ok := shape[key]
		if !ok || len(val) == 0 || val[0] != '[' {
			return &SchemaError{Reason: key + " must be an array"}
		}
	}
	return nil
}
