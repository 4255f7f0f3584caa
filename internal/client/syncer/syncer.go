// Package syncer reconciles the local mirror with the authoritative server
// store. All user mutations go through the orchestrator: they commit locally
// first (synced=false), then push opportunistically. A periodic reconciler
// and a connectivity watcher catch everything that could not push inline.
//
// Conflict policy is last writer wins on the producer-local updatedAt clock,
// with one guard: a pull never overwrites a local record that is both
// unsynced and newer than the remote copy.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KossiPascal/atlas-kanban/internal/client/store"
	"github.com/KossiPascal/atlas-kanban/internal/common"
	"github.com/KossiPascal/atlas-kanban/internal/logging"
	"github.com/KossiPascal/atlas-kanban/internal/models"
)

// Gateway is the server surface the orchestrator needs.
type Gateway interface {
	Ping(ctx context.Context) error
	List(ctx context.Context, table models.Table, includeAll bool) ([]models.Record, error)
	BulkCreate(ctx context.Context, table models.Table, recs []models.Record) ([]models.Record, error)
	BulkDelete(ctx context.Context, table models.Table, ids []string) error
}

// Emitter publishes realtime hints to other clients. Emission failures are
// never fatal; peers converge through their own pulls regardless.
type Emitter interface {
	Emit(ctx context.Context, event string, data any) error
}

// Principal identifies the authenticated user driving this client.
type Principal struct {
	UserID string
	Admin  bool
}

// Orchestrator owns the push and pull passes and the background loops.
type Orchestrator struct {
	store   *store.Store
	gateway Gateway
	emitter Emitter
	log     logging.Logger

	mu        sync.RWMutex
	principal Principal

	online atomic.Bool

	// syncMu serializes full sync passes so the reconciler, the connectivity
	// watcher and manual triggers never interleave.
	syncMu sync.Mutex
}

// New returns an orchestrator over the given store and gateway. emitter may
// be nil when no realtime link exists.
func New(s *store.Store, g Gateway, e Emitter, log logging.Logger) *Orchestrator {
	return &Orchestrator{store: s, gateway: g, emitter: e, log: log}
}

// SetPrincipal records the authenticated user. Sync passes are scoped to it.
func (o *Orchestrator) SetPrincipal(p Principal) {
	o.mu.Lock()
	o.principal = p
	o.mu.Unlock()
}

// Principal returns the current authenticated user.
func (o *Orchestrator) Principal() Principal {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.principal
}

// Online reports the last observed connectivity state.
func (o *Orchestrator) Online() bool {
	return o.online.Load()
}

func (o *Orchestrator) emit(ctx context.Context, table models.Table, kind string, data any) {
	if o.emitter == nil {
		return
	}
	if err := o.emitter.Emit(ctx, fmt.Sprintf("%s:%s", table, kind), data); err != nil {
		o.log.Debug(ctx, "realtime emit dropped", "table", table, "kind", kind, "error", err)
	}
}

// PushTable uploads the table's unsynced records. Tombstones become server
// deletes and are then purged locally; live records go up as idempotent bulk
// upserts and flip to synced. Both directions split at the per-call batch
// limit. No-op while offline.
func (o *Orchestrator) PushTable(ctx context.Context, table models.Table) error {
	if !o.Online() {
		return nil
	}
	unsynced, err := o.store.GetUnsynced(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to read unsynced records: %w", err)
	}
	if len(unsynced) == 0 {
		return nil
	}

	var live []models.Record
	var dead []string
	for _, r := range unsynced {
		if r.Deleted {
			dead = append(dead, r.ID)
		} else {
			live = append(live, r)
		}
	}

	for start := 0; start < len(dead); start += common.MaxBatchSize {
		end := min(start+common.MaxBatchSize, len(dead))
		batch := dead[start:end]
		if err := o.gateway.BulkDelete(ctx, table, batch); err != nil {
			return fmt.Errorf("failed to push deletions: %w", err)
		}
		if err := o.store.BulkDelete(ctx, table, batch); err != nil {
			return fmt.Errorf("failed to purge tombstones: %w", err)
		}
	}
	if len(dead) > 0 {
		o.emit(ctx, table, "deleted", map[string]any{"ids": dead})
	}

	for start := 0; start < len(live); start += common.MaxBatchSize {
		end := min(start+common.MaxBatchSize, len(live))
		batch := live[start:end]
		if _, err := o.gateway.BulkCreate(ctx, table, batch); err != nil {
			return fmt.Errorf("failed to push records: %w", err)
		}
		for _, r := range batch {
			if err := o.store.MarkSynced(ctx, table, r.ID); err != nil {
				return fmt.Errorf("failed to mark record synced: %w", err)
			}
		}
	}
	if len(live) > 0 {
		o.emit(ctx, table, "synced", map[string]any{"count": len(live)})
	}

	o.log.Info(ctx, "push complete", "table", table, "pushed", len(live), "purged", len(dead))
	return nil
}

// PullTable downloads the caller's visible set and reconciles it into the
// local mirror. Remote records land synced=true with their remote clocks
// intact; local synced records missing from the visible set were deleted
// elsewhere and are purged. No-op while offline.
func (o *Orchestrator) PullTable(ctx context.Context, table models.Table) error {
	if !o.Online() {
		return nil
	}
	p := o.Principal()
	remote, err := o.gateway.List(ctx, table, p.Admin)
	if err != nil {
		return fmt.Errorf("failed to fetch remote records: %w", err)
	}

	local, err := o.store.List(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to read local records: %w", err)
	}
	localByID := make(map[string]models.Record, len(local))
	for _, r := range local {
		localByID[r.ID] = r
	}

	seen := make(map[string]struct{}, len(remote))
	var keep []models.Record
	var purge []string
	for _, r := range remote {
		seen[r.ID] = struct{}{}

		if r.Deleted {
			// A remote tombstone; drop our copy if we have one.
			if _, ok := localByID[r.ID]; ok {
				purge = append(purge, r.ID)
			}
			continue
		}

		if cur, ok := localByID[r.ID]; ok && !cur.Synced && cur.UpdatedAt > r.UpdatedAt {
			// A pending local edit newer than the server copy survives the
			// pull; the next push will win on the server too.
			continue
		}

		r.Synced = true
		keep = append(keep, r)
	}

	for _, r := range local {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		if r.Synced {
			// Known to the server before, gone from the visible set now:
			// deleted (or unshared) elsewhere.
			purge = append(purge, r.ID)
		}
	}

	if err := o.store.BulkPut(ctx, table, keep); err != nil {
		return fmt.Errorf("failed to persist pulled records: %w", err)
	}
	if len(purge) > 0 {
		if err := o.store.BulkDelete(ctx, table, purge); err != nil {
			return fmt.Errorf("failed to purge removed records: %w", err)
		}
	}

	o.log.Info(ctx, "pull complete", "table", table, "received", len(remote), "kept", len(keep), "purged", len(purge))
	return nil
}

// SyncTable runs one push+pull round for a table.
func (o *Orchestrator) SyncTable(ctx context.Context, table models.Table) error {
	if err := o.PushTable(ctx, table); err != nil {
		return err
	}
	return o.PullTable(ctx, table)
}

// SyncAll reconciles every standard table. Columns sync before tasks so
// pulled tasks never reference a column the mirror has not seen yet.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	o.syncMu.Lock()
	defer o.syncMu.Unlock()

	var errs []error
	for _, table := range models.Tables {
		if err := o.SyncTable(ctx, table); err != nil {
			o.log.Warn(ctx, "table sync failed", "table", table, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", table, err))
		}
	}
	return errors.Join(errs...)
}

// tryPush attempts an inline push after a local mutation. Failures are
// logged and left to the reconciler.
func (o *Orchestrator) tryPush(ctx context.Context, table models.Table) {
	if !o.Online() {
		return
	}
	if err := o.PushTable(ctx, table); err != nil {
		o.log.Debug(ctx, "inline push deferred", "table", table, "error", err)
	}
}

// Save commits a record locally and pushes opportunistically. The returned
// record carries the assigned id and stamps.
func (o *Orchestrator) Save(ctx context.Context, table models.Table, r models.Record) (models.Record, error) {
	r.Synced = false
	if r.Owner == "" {
		r.Owner = o.Principal().UserID
	}
	saved, err := o.store.Save(ctx, table, r)
	if err != nil {
		return saved, err
	}
	o.emit(ctx, table, "created", saved)
	o.tryPush(ctx, table)
	return saved, nil
}

// BulkSave commits a batch locally and pushes opportunistically.
func (o *Orchestrator) BulkSave(ctx context.Context, table models.Table, recs []models.Record) ([]models.Record, error) {
	owner := o.Principal().UserID
	for i := range recs {
		recs[i].Synced = false
		if recs[i].Owner == "" {
			recs[i].Owner = owner
		}
	}
	saved, err := o.store.BulkSave(ctx, table, recs)
	if err != nil {
		return nil, err
	}
	o.emit(ctx, table, "created", map[string]any{"count": len(saved)})
	o.tryPush(ctx, table)
	return saved, nil
}

// Update commits an edit locally and pushes opportunistically.
func (o *Orchestrator) Update(ctx context.Context, table models.Table, r models.Record) (models.Record, error) {
	r.Synced = false
	updated, err := o.store.Update(ctx, table, r)
	if err != nil {
		return updated, err
	}
	o.emit(ctx, table, "updated", updated)
	o.tryPush(ctx, table)
	return updated, nil
}

// BulkUpdate commits a batch of edits locally and pushes opportunistically.
func (o *Orchestrator) BulkUpdate(ctx context.Context, table models.Table, recs []models.Record) ([]models.Record, error) {
	for i := range recs {
		recs[i].Synced = false
	}
	updated, err := o.store.BulkUpdate(ctx, table, recs)
	if err != nil {
		return nil, err
	}
	o.emit(ctx, table, "updated", map[string]any{"count": len(updated)})
	o.tryPush(ctx, table)
	return updated, nil
}

// Delete tombstones a record locally and pushes opportunistically. The
// physical purge happens once the deletion round-trips.
func (o *Orchestrator) Delete(ctx context.Context, table models.Table, id string) error {
	rec, err := o.store.Get(ctx, table, id)
	if err != nil {
		return err
	}
	rec.Deleted = true
	rec.Synced = false
	if _, err := o.store.Update(ctx, table, *rec); err != nil {
		return err
	}
	o.emit(ctx, table, "deleted", map[string]any{"ids": []string{id}})
	o.tryPush(ctx, table)
	return nil
}

// BulkDelete tombstones a batch locally and pushes opportunistically.
func (o *Orchestrator) BulkDelete(ctx context.Context, table models.Table, ids []string) error {
	recs := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := o.store.Get(ctx, table, id)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return err
		}
		rec.Deleted = true
		rec.Synced = false
		recs = append(recs, *rec)
	}
	if len(recs) == 0 {
		return nil
	}
	if _, err := o.store.BulkUpdate(ctx, table, recs); err != nil {
		return err
	}
	o.emit(ctx, table, "deleted", map[string]any{"ids": ids})
	o.tryPush(ctx, table)
	return nil
}

// probeTimeout bounds a single connectivity check.
const probeTimeout = 3 * time.Second

// checkOnline probes the server once and records the result. It returns true
// on an offline-to-online transition.
func (o *Orchestrator) checkOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	now := o.gateway.Ping(ctx) == nil
	was := o.online.Swap(now)
	if now != was {
		o.log.Info(ctx, "connectivity changed", "online", now)
	}
	return now && !was
}

// StartOnlineWatcher probes connectivity on a fixed interval and triggers a
// full sync whenever the server becomes reachable again. Blocks until ctx
// is cancelled.
func (o *Orchestrator) StartOnlineWatcher(ctx context.Context, interval time.Duration) {
	if o.checkOnline(ctx) {
		if err := o.SyncAll(ctx); err != nil {
			o.log.Warn(ctx, "initial sync failed", "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.checkOnline(ctx) {
				if err := o.SyncAll(ctx); err != nil {
					o.log.Warn(ctx, "reconnect sync failed", "error", err)
				}
			}
		}
	}
}

// RunReconciler runs a full sync on a fixed interval while online. Blocks
// until ctx is cancelled.
func (o *Orchestrator) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !o.Online() {
				continue
			}
			if err := o.SyncAll(ctx); err != nil {
				o.log.Warn(ctx, "periodic sync failed", "error", err)
			}
		}
	}
}
