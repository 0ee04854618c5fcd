// Package stabilizer runs the periodic ring-maintenance loops of
// spec.md §4.2/§4.3/§4.4: stabilize, check_predecessor, check_successor,
// fix_successors and fix_fingers. Grounded on the teacher's
// internal/node/worker.go (stabilizeSuccessor/fixSuccessorList/
// checkPredecessor), generalized from a single chord+de-Bruijn pair of
// loops into the five independent loops the finger-table design needs,
// and extended with check_successor / replication handoff calls the
// Koorde teacher never needed.
package stabilizer

import (
	"context"
	"time"

	"KoordeDHT/internal/client"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/replicator"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/router"
)

// Stabilizer owns the periodic maintenance of one node's routing
// table.
type Stabilizer struct {
	lgr    logger.Logger
	rt     *ring.RoutingTable
	pool   *client.Pool
	router *router.Router
	repl   *replicator.Replicator

	fingerCursor int
}

// New creates a Stabilizer over rt, using pool for RPCs, rtr to resolve
// finger-table lookups and repl to trigger handoff/repopulation when
// successor/predecessor pointers move.
func New(rt *ring.RoutingTable, pool *client.Pool, rtr *router.Router, repl *replicator.Replicator, lgr logger.Logger) *Stabilizer {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Stabilizer{lgr: lgr, rt: rt, pool: pool, router: rtr, repl: repl}
}

// Start spawns the five maintenance loops, each cancelled by ctx.
func (s *Stabilizer) Start(ctx context.Context, stabilizeInterval, fingerInterval, checkInterval time.Duration) {
	go s.loop(ctx, stabilizeInterval, s.Stabilize)
	go s.loop(ctx, fingerInterval, s.FixFingers)
	go s.loop(ctx, checkInterval, s.CheckPredecessor)
	go s.loop(ctx, checkInterval, s.CheckSuccessor)
	go s.loop(ctx, stabilizeInterval, s.FixSuccessors)
}

func (s *Stabilizer) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Stabilize asks the current successor for its predecessor; if that
// predecessor is a better fit than the one we have on file, adopt it,
// then notify the (possibly updated) successor (spec.md §4.2).
func (s *Stabilizer) Stabilize(ctx context.Context) {
	self := s.rt.Self()
	succ := s.rt.FirstSuccessor()
	if succ.ID.Equal(self.ID) {
		return
	}

	cli, err := s.pool.AddRef(succ.Addr)
	if err != nil {
		s.lgr.Warn("stabilize: cannot reach successor", logger.FNode("succ", succ), logger.F("err", err))
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	pred, err := cli.GetPredecessor(callCtx)
	cancel()
	s.pool.Release(succ.Addr)
	if err != nil {
		s.lgr.Warn("stabilize: GetPredecessor failed", logger.FNode("succ", succ), logger.F("err", err))
		return
	}

	if !pred.ID.Equal(self.ID) && pred.ID.Between(self.ID, succ.ID) {
		s.rt.Successors().Set(0, pred)
		succ = pred
	}

	if succ.ID.Equal(self.ID) {
		return
	}
	cli, err = s.pool.AddRef(succ.Addr)
	if err != nil {
		s.lgr.Warn("stabilize: cannot reach successor to notify", logger.FNode("succ", succ), logger.F("err", err))
		return
	}
	defer s.pool.Release(succ.Addr)
	notifyCtx, cancel2 := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel2()
	if err := cli.Notify(notifyCtx, self); err != nil {
		s.lgr.Warn("stabilize: Notify RPC failed", logger.FNode("succ", succ), logger.F("err", err))
	}
}

// Notify handles an inbound claim that candidate might be our
// predecessor (spec.md §4.2): if it fits better than what we have, it
// is adopted, and the range it now owns is handed off to it.
func (s *Stabilizer) Notify(ctx context.Context, candidate domain.NodeRef) {
	self := s.rt.Self()
	if candidate.ID.Equal(self.ID) {
		return
	}
	current := s.rt.FirstPredecessor()
	if !current.ID.Equal(self.ID) && !candidate.ID.Between(current.ID, self.ID) {
		return
	}

	oldPred := current
	s.rt.Predecessors().Set(0, candidate)
	s.lgr.Info("notify: predecessor updated", logger.FNode("new", candidate), logger.FNode("old", oldPred))

	if s.repl != nil {
		go s.repl.HandleNewPredecessor(context.Background(), candidate, oldPred)
	}
}

// FixSuccessors walks every index of the successor list, probing the
// current S[i] with the combined GetSuccessorAndNotify RPC and
// recording its reply as candidate S[i+1] — erasing index i outright
// if S[i] turns out dead (spec.md §4.2's fix_successors, grounded in
// original_source/server/chord/node.py's fix_successor(index)). Unlike
// CheckSuccessor (index 0 only, liveness-driven), this is what detects
// and repairs a dead backup beyond the immediate successor.
func (s *Stabilizer) FixSuccessors(ctx context.Context) {
	self := s.rt.Self()
	list := s.rt.Successors()
	capacity := list.Capacity()

	var lastFixed domain.NodeRef
	fixedAny := false

	for i := 0; i < capacity; i++ {
		cur, ok := list.Get(i)
		if !ok || cur.ID.Equal(self.ID) {
			continue
		}

		cli, err := s.pool.AddRef(cur.Addr)
		if err != nil {
			s.lgr.Warn("fixSuccessors: successor unreachable, erasing", logger.FNode("succ", cur), logger.F("index", i), logger.F("err", err))
			list.Erase(i)
			continue
		}
		callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
		next, err := cli.GetSuccessorAndNotify(callCtx, i, self)
		cancel()
		s.pool.Release(cur.Addr)

		if err != nil {
			s.lgr.Warn("fixSuccessors: GetSuccessorAndNotify failed, erasing", logger.FNode("succ", cur), logger.F("index", i), logger.F("err", err))
			list.Erase(i)
			continue
		}

		if i+1 < capacity && !next.ID.Equal(self.ID) {
			list.Set(i+1, next)
			lastFixed = next
			fixedAny = true
		}
	}

	if s.repl != nil && fixedAny {
		go s.repl.ReplicateAllData(context.Background(), lastFixed)
	}
}

// CheckPredecessor pings the current predecessor; if unreachable, it
// is cleared (spec.md §4.4).
func (s *Stabilizer) CheckPredecessor(ctx context.Context) {
	self := s.rt.Self()
	pred := s.rt.FirstPredecessor()
	if pred.ID.Equal(self.ID) {
		return
	}
	cli, err := s.pool.AddRef(pred.Addr)
	if err != nil {
		s.lgr.Warn("checkPredecessor: predecessor unreachable, clearing", logger.FNode("pred", pred))
		s.rt.Predecessors().Erase(0)
		return
	}
	defer s.pool.Release(pred.Addr)
	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel()
	if err := cli.Ping(callCtx); err != nil {
		s.lgr.Warn("checkPredecessor: predecessor unresponsive, clearing", logger.FNode("pred", pred), logger.F("err", err))
		s.rt.Predecessors().Erase(0)
	}
}

// CheckSuccessor pings the current successor; on failure, promotes the
// next backup candidate, or falls back to single-node mode if the
// whole list is exhausted (spec.md §4.4).
func (s *Stabilizer) CheckSuccessor(ctx context.Context) {
	self := s.rt.Self()
	succ := s.rt.FirstSuccessor()
	if succ.ID.Equal(self.ID) {
		return
	}
	cli, err := s.pool.AddRef(succ.Addr)
	if err == nil {
		callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
		err = cli.Ping(callCtx)
		cancel()
		s.pool.Release(succ.Addr)
		if err == nil {
			return
		}
	}

	s.lgr.Warn("checkSuccessor: successor unresponsive, promoting candidate", logger.FNode("succ", succ), logger.F("err", err))
	for i := 1; i < s.rt.Successors().Capacity(); i++ {
		if candidate, ok := s.rt.Successors().Get(i); ok {
			s.rt.PromoteSuccessorCandidate(i)
			s.lgr.Info("checkSuccessor: promoted candidate", logger.FNode("new", candidate))
			return
		}
	}
	s.lgr.Warn("checkSuccessor: no candidates left, reverting to single-node ring")
	s.rt.InitSingleNode()
}

// FixFingers advances a round-robin cursor over the finger table,
// refreshing one entry per call via the router's find_successor
// (spec.md §4.3). A self-pointing result in a multi-node ring means
// the table has gone stale from here on, so the remaining entries are
// cleared and the sweep restarts at 0.
func (s *Stabilizer) FixFingers(ctx context.Context) {
	fingers := s.rt.Fingers()
	i := s.fingerCursor
	s.fingerCursor = (s.fingerCursor + 1) % fingers.Len()

	start, err := fingers.Start(i)
	if err != nil {
		s.lgr.Warn("fixFingers: failed to compute start", logger.F("index", i), logger.F("err", err))
		return
	}

	succ, err := s.router.FindSuccessor(ctx, start)
	if err != nil {
		s.lgr.Warn("fixFingers: find_successor failed", logger.F("index", i), logger.F("err", err))
		return
	}
	fingers.Set(i, succ)

	self := s.rt.Self()
	if succ.ID.Equal(self.ID) && i > 0 && !s.rt.FirstSuccessor().ID.Equal(self.ID) {
		fingers.ClearFrom(i + 1)
		s.fingerCursor = 0
	}
}
