// Package store implements the local durable key-value database backing the
// offline-first state. It exposes three logical tables over one diskv tree:
//
//	kv       – singleton "state" record plus cached branding records
//	backups  – append-only snapshot log with auto-increment ids
//	queue    – at-most-one pending outbound sync payload
//
// Every exported operation is transactional per call: a store-level mutex
// serializes writers, so a call is either fully applied or not applied at
// all from the point of view of other callers.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterbourgon/diskv/v3"

	"github.com/iliyamo/termin-manager/internal/model"
)

const (
	tableKV      = "kv"
	tableBackups = "backups"
	tableQueue   = "queue"
	tableMeta    = "meta"

	versionKey   = tableMeta + "/version"
	backupSeqKey = tableMeta + "/backup_seq"
	queueSeqKey  = tableMeta + "/queue_seq"
	queueSlotKey = tableQueue + "/latest"
)

// StorageError wraps any failure of the local durable store (quota,
// corruption, blocked upgrade). Callers must treat it as fatal to the
// operation but never to the process: log it, surface a notification and
// keep the in-memory state they had before the attempted write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Store is the durable store handle. Open it once per session.
type Store struct {
	mu sync.Mutex
	d  *diskv.Diskv
}

// Open initializes the diskv tree under baseDir and runs any pending schema
// upgrade. Upgrades are idempotent and gated by a monotonic version record;
// an upgrade never touches records it does not know about, so opening an
// old data directory with a newer binary is always safe.
func Open(baseDir string) (*Store, error) {
	d := diskv.New(diskv.Options{
		BasePath:          baseDir,
		AdvancedTransform: keyToPath,
		InverseTransform:  pathToKey,
		CacheSizeMax:      1024 * 1024, // 1MB
	})
	s := &Store{d: d}
	if err := s.upgrade(); err != nil {
		return nil, storageErr("open", err)
	}
	return s, nil
}

// upgrade brings the version record up to model.CurrentStoreVersion. The
// individual steps only ever add records, matching the contract that a
// schema upgrade never deletes pre-existing data.
func (s *Store) upgrade() error {
	current := 0
	if raw, err := s.d.Read(versionKey); err == nil {
		if n, err2 := strconv.Atoi(strings.TrimSpace(string(raw))); err2 == nil {
			current = n
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if current >= model.CurrentStoreVersion {
		return nil
	}
	// Versions 1..3 only introduced new tables; creating the directories
	// lazily on first write is enough, so the upgrade reduces to stamping
	// the version record.
	return s.d.Write(versionKey, []byte(strconv.Itoa(model.CurrentStoreVersion)))
}

// Version returns the schema version currently stamped on disk.
func (s *Store) Version(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.d.Read(versionKey)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, storageErr("version", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, storageErr("version", err)
	}
	return n, nil
}

// ----- kv table -----

// Get reads a kv record. A missing key yields (nil, nil) rather than an
// error, mirroring the "value or null" contract.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.d.Read(tableKV + "/" + key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get "+key, err)
	}
	return raw, nil
}

// Put writes a kv record, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.d.Write(tableKV+"/"+key, value); err != nil {
		return storageErr("put "+key, err)
	}
	return nil
}

// ----- backups table -----

// AppendSnapshot assigns the next auto-increment id, stamps it into the
// entry and writes the snapshot. The returned id is the pruning tie-breaker
// for snapshots sharing a timestamp: a later id is newer.
func (s *Store) AppendSnapshot(ctx context.Context, entry model.Snapshot) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.nextSeq(backupSeqKey)
	if err != nil {
		return 0, storageErr("append snapshot", err)
	}
	entry.ID = id
	raw, err := json.Marshal(entry)
	if err != nil {
		return 0, storageErr("append snapshot", err)
	}
	if err := s.d.Write(backupKey(id), raw); err != nil {
		return 0, storageErr("append snapshot", err)
	}
	return id, nil
}

// ListSnapshots returns all snapshots sorted newest-first: by created_at
// descending, then by id descending for entries sharing a timestamp.
func (s *Store) ListSnapshots(ctx context.Context) ([]model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Snapshot, 0)
	for key := range s.d.Keys(ctx.Done()) {
		if !strings.HasPrefix(key, tableBackups+"/") {
			continue
		}
		raw, err := s.d.Read(key)
		if err != nil {
			return nil, storageErr("list snapshots", err)
		}
		var snap model.Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, storageErr("list snapshots", err)
		}
		out = append(out, snap)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteSnapshots removes the snapshots with the given ids. Missing ids are
// ignored so pruning can be retried safely.
func (s *Store) DeleteSnapshots(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if err := s.d.Erase(backupKey(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return storageErr("delete snapshot", err)
		}
	}
	return nil
}

// ----- queue table -----

// QueuePut replaces the single queue slot with the given payload. The slot
// is a mailbox, not a log: intermediate states are coalesced because the
// remote store is a whole-state upsert.
func (s *Store) QueuePut(ctx context.Context, p model.QueuedPush) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.nextSeq(queueSeqKey)
	if err != nil {
		return storageErr("queue put", err)
	}
	p.ID = id
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return storageErr("queue put", err)
	}
	if err := s.d.Write(queueSlotKey, raw); err != nil {
		return storageErr("queue put", err)
	}
	return nil
}

// QueueGetLatest reads the pending payload, or nil when the slot is empty.
func (s *Store) QueueGetLatest(ctx context.Context) (*model.QueuedPush, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := s.d.Read(queueSlotKey)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("queue get", err)
	}
	var p model.QueuedPush
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, storageErr("queue get", err)
	}
	return &p, nil
}

// QueueClear empties the queue slot. Clearing an empty slot is a no-op.
func (s *Store) QueueClear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.d.Erase(queueSlotKey); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("queue clear", err)
	}
	return nil
}

// QueueCount reports 0 or 1, the number of pending payloads.
func (s *Store) QueueCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.d.Has(queueSlotKey) {
		return 1, nil
	}
	return 0, nil
}

// ----- internals -----

// nextSeq increments and persists a named counter. Callers hold s.mu.
func (s *Store) nextSeq(key string) (int64, error) {
	var cur int64
	raw, err := s.d.Read(key)
	if err == nil {
		cur, err = strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
		if err != nil {
			return 0, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, err
	}
	next := cur + 1
	if err := s.d.Write(key, []byte(strconv.FormatInt(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}

func backupKey(id int64) string {
	return fmt.Sprintf("%s/%012d", tableBackups, id)
}

// keyToPath splits "table/name" into a directory per logical table. Only
// the first separator is structural; record names may contain anything.
func keyToPath(key string) *diskv.PathKey {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) == 1 {
		return &diskv.PathKey{Path: []string{}, FileName: parts[0]}
	}
	return &diskv.PathKey{Path: []string{parts[0]}, FileName: parts[1]}
}

func pathToKey(pk *diskv.PathKey) string {
	if len(pk.Path) == 0 {
		return pk.FileName
	}
	return strings.Join(pk.Path, "/") + "/" + pk.FileName
}
