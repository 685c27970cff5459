package state

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/iliyamo/termin-manager/internal/model"
)

// Fixed file names of the previous storage generation: two independently
// stored flat sequences. They are consumed once during migration and never
// written again.
const (
	legacySlotsFile    = "seeyou_slots_v1.json"
	legacyBookingsFile = "seeyou_bookings_v1.json"
)

// migrateLegacy reads the flat-format slot and booking lists of the older
// storage generation and merges them into a fresh AppState. It returns
// (nil, nil) when no legacy data exists. A parse failure is logged and
// treated as "no legacy data" so a corrupt leftover file cannot brick a
// cold start. The migrated state is persisted and cached; the caller takes
// the migration snapshot.
func (m *Manager) migrateLegacy(ctx context.Context) (*model.AppState, error) {
	if m.opts.LegacyDir == "" {
		return nil, nil
	}
	slotsRaw, slotsErr := os.ReadFile(filepath.Join(m.opts.LegacyDir, legacySlotsFile))
	bookingsRaw, bookingsErr := os.ReadFile(filepath.Join(m.opts.LegacyDir, legacyBookingsFile))
	if errors.Is(slotsErr, fs.ErrNotExist) && errors.Is(bookingsErr, fs.ErrNotExist) {
		return nil, nil
	}

	migrated := model.Defaults()
	if len(slotsRaw) > 0 {
		if err := json.Unmarshal(slotsRaw, &migrated.Slots); err != nil {
			log.Printf("state: legacy migration failed: %v", err)
			return nil, nil
		}
	}
	if len(bookingsRaw) > 0 {
		if err := json.Unmarshal(bookingsRaw, &migrated.Bookings); err != nil {
			log.Printf("state: legacy migration failed: %v", err)
			return nil, nil
		}
	}

	if err := m.writeStateLocked(ctx, migrated); err != nil {
		return nil, err
	}
	m.cache = &migrated
	return &migrated, nil
}
