// Package replicator implements R-way replication across the ring's
// successor list, grounded on original_source/server/chord/replicator.py
// (set/get/remove, replicate_set/replicate_remove, resolve_data,
// replicate_all_data/set_partition, fix_storage), reimplemented in the
// teacher's fire-and-forget-async idiom (operation.go's
// transferResourcesAsync: replicate in the background, log partial
// failures, never fail the local write because a backup was slow).
package replicator

import (
	"context"
	"sync"
	"time"

	"KoordeDHT/internal/client"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/election"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/storage"
)

// Replicator owns the local store and keeps it in sync with the
// replicas living on this node's in-list successors.
type Replicator struct {
	lgr   logger.Logger
	rt    *ring.RoutingTable
	pool  *client.Pool
	store storage.Storage
	timer *election.Timer
}

// New creates a Replicator over store, using rt/pool to reach the
// current successor list and timer to stamp locally-originated
// versions (spec.md §4.5's logical-clock version numbers).
func New(rt *ring.RoutingTable, pool *client.Pool, store storage.Storage, timer *election.Timer, lgr logger.Logger) *Replicator {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Replicator{lgr: lgr, rt: rt, pool: pool, store: store, timer: timer}
}

// Put writes rawKey locally at a fresh version and, if replicate is
// set and this node has successors other than itself, fans the write
// out asynchronously (replicator.py's set/replicate_set).
func (r *Replicator) Put(ctx context.Context, sp domain.Space, rawKey string, value []byte, replicate bool) domain.LocalRecord {
	rec := domain.LocalRecord{
		Key:     sp.NewIdFromString(rawKey),
		RawKey:  rawKey,
		Value:   value,
		Version: r.timer.Now(),
		Live:    true,
	}
	r.store.Put(rec)
	if replicate {
		go r.replicateSet(context.Background(), rec)
	}
	return rec
}

// Get returns the local record for rawKey, if any live one exists.
func (r *Replicator) Get(sp domain.Space, rawKey string) (domain.LocalRecord, bool) {
	rec, err := r.store.Get(sp.NewIdFromString(rawKey))
	if err != nil || !rec.Live {
		return domain.LocalRecord{}, false
	}
	return rec, true
}

// Remove tombstones rawKey locally and, if replicate is set, fans the
// tombstone out asynchronously.
func (r *Replicator) Remove(ctx context.Context, sp domain.Space, rawKey string, replicate bool) {
	version := r.timer.Now()
	id := sp.NewIdFromString(rawKey)
	_ = r.store.Remove(id, rawKey, version)
	if replicate {
		go r.replicateRemove(context.Background(), rawKey, version)
	}
}

// replicateSet pushes rec to every node in this node's successor list
// (excluding self), skipping replication on the remote end to avoid a
// cascade (spec.md §4.6's STORE_KEY replicate flag).
func (r *Replicator) replicateSet(ctx context.Context, rec domain.LocalRecord) {
	self := r.rt.Self()
	var wg sync.WaitGroup
	for _, s := range r.rt.Successors().Snapshot() {
		if s.ID.Equal(self.ID) {
			continue
		}
		wg.Add(1)
		go func(target domain.NodeRef) {
			defer wg.Done()
			if err := r.storeAt(ctx, target, rec); err != nil {
				r.lgr.Warn("replicateSet: failed to replicate", logger.FNode("target", target), logger.FRecord("record", rec), logger.F("err", err))
			}
		}(s)
	}
	wg.Wait()
}

func (r *Replicator) replicateRemove(ctx context.Context, rawKey string, version int64) {
	self := r.rt.Self()
	for _, s := range r.rt.Successors().Snapshot() {
		if s.ID.Equal(self.ID) {
			continue
		}
		cli, err := r.pool.AddRef(s.Addr)
		if err != nil {
			r.lgr.Warn("replicateRemove: cannot reach successor", logger.FNode("target", s), logger.F("err", err))
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
		_, err = cli.DeleteKey(callCtx, rawKey, version, false)
		cancel()
		r.pool.Release(s.Addr)
		if err != nil {
			r.lgr.Warn("replicateRemove: delete failed", logger.FNode("target", s), logger.F("err", err))
		}
	}
}

func (r *Replicator) storeAt(ctx context.Context, target domain.NodeRef, rec domain.LocalRecord) error {
	cli, err := r.pool.AddRef(target.Addr)
	if err != nil {
		return err
	}
	defer r.pool.Release(target.Addr)
	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel()
	_, err = cli.StoreKey(callCtx, rec, false)
	return err
}

// SetPartition is the SET_PARTITION opcode handler: blanket-apply a
// bulk snapshot with no version negotiation, used for backup
// repopulation (replicator.py's set_partition).
func (r *Replicator) SetPartition(values []domain.LocalRecord, tombstones map[string]int64) {
	r.store.SetAll(values)
	r.store.RemoveAll(tombstones)
}

// ReplicateAllData pushes this node's own range (P[0], self] to target
// as a fire-and-forget SET_PARTITION, used when the successor list
// rotates or a new backup appears (replicator.py's
// replicate_all_data).
func (r *Replicator) ReplicateAllData(ctx context.Context, target domain.NodeRef) {
	self := r.rt.Self()
	pred := r.rt.FirstPredecessor()
	recs, err := r.store.Between(pred.ID, self.ID)
	if err != nil {
		r.lgr.Warn("ReplicateAllData: Between failed", logger.F("err", err))
		return
	}

	live := make([]domain.LocalRecord, 0, len(recs))
	tombstones := make(map[string]int64)
	for _, rec := range recs {
		if rec.Live {
			live = append(live, rec)
		} else {
			tombstones[rec.RawKey] = rec.Version
		}
	}

	cli, err := r.pool.AddRef(target.Addr)
	if err != nil {
		r.lgr.Warn("ReplicateAllData: cannot reach target", logger.FNode("target", target), logger.F("err", err))
		return
	}
	defer r.pool.Release(target.Addr)
	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel()
	if _, err := cli.SetPartition(callCtx, live, tombstones); err != nil {
		r.lgr.Warn("ReplicateAllData: SetPartition RPC failed", logger.FNode("target", target), logger.F("err", err))
	}
}

// ResolveData is the RESOLVE_DATA opcode handler. For every incoming
// record, if the local store holds a strictly newer version (or a
// tombstone at the same version as an incoming live record), that
// record (or tombstone) is handed back to the caller as "you're
// stale"; otherwise the incoming record is applied locally
// (replicator.py's resolve_data).
func (r *Replicator) ResolveData(values []domain.LocalRecord, tombstones map[string]int64) ([]domain.LocalRecord, map[string]int64) {
	staleValues := make([]domain.LocalRecord, 0)
	staleTombstones := make(map[string]int64)

	apply := func(rec domain.LocalRecord) {
		local, err := r.store.Get(rec.Key)
		// At equal versions the tombstone wins regardless of which
		// side (local or incoming) holds it, per spec.md's P4 tie rule.
		localWins := err == nil && (local.Version > rec.Version ||
			(local.Version == rec.Version && !local.Live && rec.Live))
		if localWins {
			if local.Live {
				staleValues = append(staleValues, local)
			} else {
				staleTombstones[local.RawKey] = local.Version
			}
			return
		}
		if rec.Live {
			r.store.Put(rec)
		} else {
			_ = r.store.Remove(rec.Key, rec.RawKey, rec.Version)
		}
	}

	for _, v := range values {
		apply(v)
	}
	for rawKey, version := range tombstones {
		ts := domain.LocalRecord{RawKey: rawKey, Version: version, Live: false}
		// Tombstones arrive keyed by raw key only: take the hashed key
		// from the local copy (live or tombstoned) so apply finds it, or
		// hash the raw key when there is no local copy.
		for _, l := range append(r.store.GetAll(), r.store.GetRemoveAll()...) {
			if l.RawKey == rawKey {
				ts.Key = l.Key
				break
			}
		}
		if ts.Key == nil && r.rt != nil {
			ts.Key = r.rt.Space().NewIdFromString(rawKey)
		}
		apply(ts)
	}

	return staleValues, staleTombstones
}

// HandleNewPredecessor hands off the range (oldPredPred, newPred] to
// newPred via RESOLVE_DATA, per replicator.py's
// handle_new_predecessor.
func (r *Replicator) HandleNewPredecessor(ctx context.Context, newPred, oldPredPred domain.NodeRef) {
	recs, err := r.store.Between(oldPredPred.ID, newPred.ID)
	if err != nil {
		r.lgr.Warn("HandleNewPredecessor: Between failed", logger.F("err", err))
		return
	}
	live := make([]domain.LocalRecord, 0, len(recs))
	tombstones := make(map[string]int64)
	for _, rec := range recs {
		if rec.Live {
			live = append(live, rec)
		} else {
			tombstones[rec.RawKey] = rec.Version
		}
	}

	cli, err := r.pool.AddRef(newPred.Addr)
	if err != nil {
		r.lgr.Warn("HandleNewPredecessor: cannot reach new predecessor", logger.FNode("predecessor", newPred), logger.F("err", err))
		return
	}
	defer r.pool.Release(newPred.Addr)
	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel()
	if _, _, err := cli.ResolveData(callCtx, live, tombstones); err != nil {
		r.lgr.Warn("HandleNewPredecessor: ResolveData RPC failed", logger.FNode("predecessor", newPred), logger.F("err", err))
	}
}

// FixStorageLoop is the GC step of spec.md §4.5: trims the predecessor
// list to len(successors), then removes any local key that has fallen
// outside the replication horizon (Q, self], where Q is the predecessor
// of the last predecessor still tracked.
func (r *Replicator) FixStorageLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.fixStorageOnce(ctx)
		}
	}
}

func (r *Replicator) fixStorageOnce(ctx context.Context) {
	self := r.rt.Self()
	preds := r.rt.Predecessors()
	succCount := r.rt.Successors().Len()
	if preds.Len() > succCount {
		// trim from the tail (replicator.py trims len(P) down to len(S))
		trimmed := preds.Snapshot()
		if succCount < len(trimmed) {
			preds.ReplaceAll(trimmed[:succCount])
		}
	}

	last, ok := preds.Get(preds.Len() - 1)
	if !ok || last.ID.Equal(self.ID) {
		return
	}

	var qPred domain.NodeRef
	cli, err := r.pool.AddRef(last.Addr)
	if err != nil {
		r.lgr.Warn("fixStorage: cannot reach last predecessor", logger.FNode("last", last), logger.F("err", err))
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	qPred, err = cli.GetPredecessor(callCtx)
	cancel()
	r.pool.Release(last.Addr)
	if err != nil {
		r.lgr.Warn("fixStorage: GetPredecessor on last predecessor failed", logger.FNode("last", last), logger.F("err", err))
		return
	}

	version := r.timer.Now()
	for _, rec := range r.store.GetAll() {
		if !rec.Key.Between(qPred.ID, self.ID) {
			_ = r.store.Remove(rec.Key, rec.RawKey, version)
		}
	}
}
