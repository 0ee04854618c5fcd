// Package kv is the client-facing GET/PUT/DELETE surface (spec.md
// §4.6's data-flow summary), grounded in the teacher's
// internal/node/operation.go Put/Get/Delete path: hash the key, route
// to its owner via the router, and either apply locally or forward
// over the peer RPC endpoint.
package kv

import (
	"context"
	"fmt"

	"KoordeDHT/internal/client"
	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/replicator"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/router"
)

// Facade exposes Get/Put/Delete to external clients, owned by a
// running node.Node.
type Facade struct {
	lgr    logger.Logger
	rt     *ring.RoutingTable
	pool   *client.Pool
	router *router.Router
	repl   *replicator.Replicator
}

// New creates a Facade over the given ring state.
func New(rt *ring.RoutingTable, pool *client.Pool, rtr *router.Router, repl *replicator.Replicator, lgr logger.Logger) *Facade {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Facade{lgr: lgr, rt: rt, pool: pool, router: rtr, repl: repl}
}

// Put stores rawKey/value in the DHT, replicating to the owner's
// successor list. Returns an error only on routing/RPC failure.
func (f *Facade) Put(ctx context.Context, rawKey string, value []byte) error {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return err
	}
	sp := f.rt.Space()
	id := sp.NewIdFromString(rawKey)

	owner, err := f.router.FindSuccessor(ctx, id)
	if err != nil {
		return fmt.Errorf("kv: put: routing to owner of %s: %w", rawKey, err)
	}

	self := f.rt.Self()
	if owner.ID.Equal(self.ID) {
		f.repl.Put(ctx, sp, rawKey, value, true)
		return nil
	}

	cli, err := f.pool.AddRef(owner.Addr)
	if err != nil {
		return fmt.Errorf("kv: put: connecting to owner %s: %w", owner.Addr, err)
	}
	defer f.pool.Release(owner.Addr)
	rec := domain.LocalRecord{Key: id, RawKey: rawKey, Value: value}
	ok, err := cli.StoreKey(ctx, rec, true)
	if err != nil {
		return fmt.Errorf("kv: put: StoreKey at %s: %w", owner.Addr, err)
	}
	if !ok {
		return fmt.Errorf("kv: put: owner %s rejected the write", owner.Addr)
	}
	return nil
}

// Get returns the value for rawKey, matching spec.md's "empty on
// failure" contract: ok is false on any routing/RPC/not-found outcome.
func (f *Facade) Get(ctx context.Context, rawKey string) (value string, ok bool) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return "", false
	}
	sp := f.rt.Space()
	id := sp.NewIdFromString(rawKey)

	owner, err := f.router.FindSuccessor(ctx, id)
	if err != nil {
		f.lgr.Warn("kv: get: routing failed", logger.F("key", rawKey), logger.F("err", err))
		return "", false
	}

	self := f.rt.Self()
	if owner.ID.Equal(self.ID) {
		rec, found := f.repl.Get(sp, rawKey)
		if !found {
			return "", false
		}
		return string(rec.Value), true
	}

	cli, err := f.pool.AddRef(owner.Addr)
	if err != nil {
		f.lgr.Warn("kv: get: connecting to owner failed", logger.FNode("owner", owner), logger.F("err", err))
		return "", false
	}
	defer f.pool.Release(owner.Addr)
	rec, err := cli.RetrieveKey(ctx, rawKey)
	if err != nil || !rec.Live {
		return "", false
	}
	return string(rec.Value), true
}

// Delete removes rawKey from the DHT. Returns true on success.
func (f *Facade) Delete(ctx context.Context, rawKey string) bool {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return false
	}
	sp := f.rt.Space()
	id := sp.NewIdFromString(rawKey)

	owner, err := f.router.FindSuccessor(ctx, id)
	if err != nil {
		f.lgr.Warn("kv: delete: routing failed", logger.F("key", rawKey), logger.F("err", err))
		return false
	}

	self := f.rt.Self()
	if owner.ID.Equal(self.ID) {
		f.repl.Remove(ctx, sp, rawKey, true)
		return true
	}

	cli, err := f.pool.AddRef(owner.Addr)
	if err != nil {
		f.lgr.Warn("kv: delete: connecting to owner failed", logger.FNode("owner", owner), logger.F("err", err))
		return false
	}
	defer f.pool.Release(owner.Addr)
	ok, err := cli.DeleteKey(ctx, rawKey, 0, true)
	if err != nil {
		f.lgr.Warn("kv: delete: DeleteKey RPC failed", logger.FNode("owner", owner), logger.F("err", err))
		return false
	}
	return ok
}
