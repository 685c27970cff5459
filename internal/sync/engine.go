// Package sync moves local state to and from the remote store. Outbound
// changes are coalesced into a single-slot queue and flushed behind a
// debounce timer with exponential backoff on failure; inbound state is
// reconciled by whole-state last-write-wins timestamp comparison.
//
// The engine deliberately does not merge concurrent edits field by field:
// the remote store is a whole-state upsert and the newest writer wins.
// That makes it unsuitable for true multi-writer concurrent editing, which
// is an accepted limitation of the design.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iliyamo/termin-manager/internal/model"
	"github.com/iliyamo/termin-manager/internal/remote"
	"github.com/iliyamo/termin-manager/internal/state"
	"github.com/iliyamo/termin-manager/internal/store"
)

// SyncError wraps a remote push/pull failure. It is always recoverable:
// the failed payload stays queued and the engine retries with backoff.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string { return fmt.Sprintf("sync: %s: %v", e.Op, e.Err) }
func (e *SyncError) Unwrap() error { return e.Err }

// Notifier receives user-facing sync notifications ("success", "error",
// "info"). Typically wired to a toast in the UI layer; may be nil.
type Notifier func(kind, message string)

// Options configures an Engine.
type Options struct {
	// Debounce is the quiet period before a queued change is flushed
	// (default 1200ms). Every new enqueue restarts it.
	Debounce time.Duration
	// MaxBackoff caps the retry delay (default 30s).
	MaxBackoff time.Duration
	// Online reports device connectivity. Defaults to always-online; the
	// transport's own errors then drive the backoff path.
	Online func() bool
	// Clock supplies timestamps, overridable in tests.
	Clock func() time.Time
	// Notify receives user-facing notifications. May be nil.
	Notify Notifier
}

// Engine owns the outbound queue, the debounce timer and the retry state
// for one session. The flushInFlight flag is the only mutual exclusion
// around flushing: concurrent flush attempts are no-ops, which prevents
// double-sending the same payload.
type Engine struct {
	states *state.Manager
	local  *store.Store
	client remote.Client // nil when no remote is configured
	opts   Options

	mu            sync.Mutex
	timer         *time.Timer
	flushInFlight bool
	retries       int
}

// New wires an engine over the state manager and durable store. A nil
// client disables every remote operation while keeping the app fully
// usable offline.
func New(states *state.Manager, local *store.Store, client remote.Client, opts Options) *Engine {
	if opts.Debounce <= 0 {
		opts.Debounce = 1200 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.Online == nil {
		opts.Online = func() bool { return true }
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	e := &Engine{states: states, local: local, client: client, opts: opts}
	states.SetEnqueue(e.enqueue)
	return e
}

// enqueue is the state manager's hook: replace the queue slot with the
// freshly saved state and restart the debounce timer.
func (e *Engine) enqueue(ctx context.Context, s model.AppState) {
	if err := e.QueueSet(ctx, s); err != nil {
		e.notify("error", "queueing sync payload failed: "+err.Error())
		return
	}
	e.ScheduleSync(0)
}

// QueueSet replaces the single queue slot with the given state. Only the
// most recent desired state is ever transmitted; intermediate states are
// coalesced, which is correct because the remote stores whole snapshots.
func (e *Engine) QueueSet(ctx context.Context, s model.AppState) error {
	return e.local.QueuePut(ctx, model.QueuedPush{
		CreatedAt: e.opts.Clock(),
		State:     s.Clone(),
		OrgID:     s.ActiveOrgID,
	})
}

// ScheduleSync (re)starts the debounce timer. A zero delay means the
// configured default. Any pending timer is cancelled first, so bursts of
// edits collapse into one flush.
func (e *Engine) ScheduleSync(delay time.Duration) {
	if delay <= 0 {
		delay = e.opts.Debounce
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(delay, func() {
		// Timer callbacks run on their own goroutine; flush errors are
		// already recorded in state and rescheduled, nothing to do here.
		_ = e.FlushQueue(context.Background())
	})
}

// HandleOnline is the connectivity-restored trigger: it simply schedules a
// flush of whatever is still queued.
func (e *Engine) HandleOnline() { e.ScheduleSync(0) }

// Close stops the debounce timer. Queued payloads stay in the durable
// store and are picked up by the next session.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Retries reports the current retry counter.
func (e *Engine) Retries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.retries
}

// FlushQueue pushes the queued payload to the remote store. Guards, in
// order: a flush already in flight, an empty queue, an offline device, and
// a session that is not cloud-ready. All four cases return nil and leave
// the queue as it is. A push failure records the error into
// meta.lastSyncError and reschedules with exponential backoff.
func (e *Engine) FlushQueue(ctx context.Context) error {
	e.mu.Lock()
	if e.flushInFlight {
		e.mu.Unlock()
		return nil
	}
	e.flushInFlight = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.flushInFlight = false
		e.mu.Unlock()
	}()

	queued, err := e.local.QueueGetLatest(ctx)
	if err != nil {
		return err
	}
	if queued == nil {
		return nil
	}
	if !e.opts.Online() {
		return nil
	}
	current, err := e.states.GetState(ctx)
	if err != nil {
		return err
	}
	if !e.IsCloudReady(current) {
		return nil
	}

	if err := e.PushStateToServer(ctx, queued.State); err != nil {
		e.recordSyncError(ctx, err)
		e.mu.Lock()
		e.retries++
		delay := time.Duration(1<<e.retries) * time.Second
		if delay > e.opts.MaxBackoff {
			delay = e.opts.MaxBackoff
		}
		e.mu.Unlock()
		e.notify("error", "cloud sync failed: "+err.Error())
		e.ScheduleSync(delay)
		return err
	}

	if err := e.local.QueueClear(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.retries = 0
	e.mu.Unlock()
	e.notify("success", "cloud backup saved")
	return nil
}

// IsCloudReady requires a configured remote client, an authenticated user
// and a syntactically valid tenant id. Any missing piece silently disables
// remote operations; local usage is unaffected.
func (e *Engine) IsCloudReady(s model.AppState) bool {
	return e.client != nil && s.User != nil && model.IsUUID(s.ActiveOrgID)
}

// recordSyncError stores the failure message in meta.lastSyncError without
// snapshotting or re-queueing.
func (e *Engine) recordSyncError(ctx context.Context, cause error) {
	_, err := e.states.UpdateState(ctx, func(draft *model.AppState) {
		draft.Meta.LastSyncError = cause.Error()
	}, state.UpdateOptions{SkipSync: true, SkipSnapshot: true, SkipRender: true})
	if err != nil {
		e.notify("error", "recording sync error failed: "+err.Error())
	}
}

func (e *Engine) notify(kind, message string) {
	if e.opts.Notify != nil {
		e.opts.Notify(kind, message)
	}
}
