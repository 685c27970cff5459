package state

import (
	"context"

	"github.com/iliyamo/termin-manager/internal/model"
)

// AddLocalSnapshot appends a timestamped snapshot of the given state to the
// backup ring and prunes the ring to its bound. Snapshot failures are
// recorded in the diagnostics ring but never fail the surrounding save:
// losing a backup is preferable to losing the write.
func (m *Manager) AddLocalSnapshot(ctx context.Context, reason string, s model.AppState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addSnapshotLocked(ctx, reason, s)
}

func (m *Manager) addSnapshotLocked(ctx context.Context, reason string, s model.AppState) {
	entry := model.Snapshot{
		CreatedAt: m.opts.Clock(),
		Reason:    reason,
		State:     s.Clone(),
	}
	if _, err := m.store.AppendSnapshot(ctx, entry); err != nil {
		m.diag.record(m.opts.Clock, "snapshot", err)
		return
	}
	if err := m.pruneBackupsLocked(ctx); err != nil {
		m.diag.record(m.opts.Clock, "prune", err)
	}
}

// pruneBackupsLocked keeps the MaxLocalBackups most recent snapshots and
// deletes the remainder by id. Ordering comes from the store: newest-first
// with the auto-increment id breaking timestamp ties.
func (m *Manager) pruneBackupsLocked(ctx context.Context) error {
	items, err := m.store.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(items) <= m.opts.MaxLocalBackups {
		return nil
	}
	stale := make([]int64, 0, len(items)-m.opts.MaxLocalBackups)
	for _, snap := range items[m.opts.MaxLocalBackups:] {
		stale = append(stale, snap.ID)
	}
	return m.store.DeleteSnapshots(ctx, stale)
}

// ListLocalBackups returns all snapshots newest-first, for display and for
// restore selection.
func (m *Manager) ListLocalBackups(ctx context.Context) ([]model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ListSnapshots(ctx)
}

// RestoreSnapshot re-applies a snapshot's state through the import path.
func (m *Manager) RestoreSnapshot(ctx context.Context, snap model.Snapshot) (model.AppState, error) {
	return m.ImportState(ctx, snap.State)
}
