package election

import (
	"context"
	"sync"
	"time"

	"KoordeDHT/internal/client"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/ring"
)

// Elector runs the ring-traversal, highest-id-wins leader election
// described in original_source/server/chord/elector.py: every node
// believes in a current leader; on suspected failure it calls for
// election by forwarding a candidacy message around the successor
// ring until it returns to its origin.
type Elector struct {
	lgr  logger.Logger
	rt   *ring.RoutingTable
	pool *client.Pool

	mu     sync.RWMutex
	leader domain.NodeRef
}

// New creates an Elector that initially considers self the leader
// (true for the node that calls CreateNewDHT; a joining node overwrites
// this with the outcome of the election round Join runs through its
// successor).
func New(rt *ring.RoutingTable, pool *client.Pool, lgr logger.Logger) *Elector {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Elector{lgr: lgr, rt: rt, pool: pool, leader: rt.Self()}
}

// Leader returns the node currently believed to be the leader.
func (e *Elector) Leader() domain.NodeRef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader
}

// SetLeader installs leader as the currently known leader, e.g. after
// learning it from a ring-merge handshake during discovery.
func (e *Elector) SetLeader(leader domain.NodeRef) {
	e.mu.Lock()
	e.leader = leader
	e.mu.Unlock()
}

// IsLeader reports whether self is the currently known leader.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader.ID.Equal(e.rt.Self().ID)
}

// CheckLeaderLoop periodically verifies the leader is reachable
// (elector.py's check_leader): if self is the leader, it is trivially
// alive; otherwise ping it, and on failure call an election.
func (e *Elector) CheckLeaderLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.checkLeaderOnce(ctx)
		}
	}
}

func (e *Elector) checkLeaderOnce(ctx context.Context) {
	if e.IsLeader() {
		return
	}
	leader := e.Leader()
	cli, err := e.pool.AddRef(leader.Addr)
	if err != nil {
		e.lgr.Warn("checkLeader: cannot reach leader, calling election", logger.FNode("leader", leader), logger.F("err", err))
		e.CallForElection(ctx)
		return
	}
	defer e.pool.Release(leader.Addr)

	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel()
	if err := cli.Ping(callCtx); err != nil {
		e.lgr.Warn("checkLeader: leader did not respond, calling election", logger.FNode("leader", leader), logger.F("err", err))
		e.CallForElection(ctx)
	}
}

// CallForElection starts a new election round (elector.py's
// call_for_election): if self is its own first successor, self wins
// outright (ring of one). Otherwise try to ping the first successor;
// if unreachable, self claims leadership (it is now the surviving node
// closest to where the dead link was). Otherwise forward an ELECTION
// message carrying self as the initial candidate.
func (e *Elector) CallForElection(ctx context.Context) {
	self := e.rt.Self()
	succ := e.rt.FirstSuccessor()

	if succ.ID.Equal(self.ID) {
		e.becomeLeader()
		return
	}

	cli, err := e.pool.AddRef(succ.Addr)
	if err != nil {
		e.lgr.Warn("election: successor unreachable, claiming leadership", logger.FNode("successor", succ))
		e.becomeLeader()
		return
	}
	defer e.pool.Release(succ.Addr)

	callCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel()
	if err := cli.Ping(callCtx); err != nil {
		e.lgr.Warn("election: successor failed to respond, claiming leadership", logger.FNode("successor", succ))
		e.becomeLeader()
		return
	}

	forwardCtx, cancel2 := context.WithTimeout(ctx, client.FailureTimeout)
	defer cancel2()
	newLeader, err := cli.Election(forwardCtx, self.ID, self)
	if err != nil {
		e.lgr.Warn("election: forward to successor failed", logger.FNode("successor", succ), logger.F("err", err))
		return
	}
	e.SetLeader(newLeader)
	e.lgr.Info("election: round completed", logger.FNode("newLeader", newLeader))
}

func (e *Elector) becomeLeader() {
	self := e.rt.Self()
	e.SetLeader(self)
	e.lgr.Info("election: self elected leader", logger.FNode("self", self))
}

// HandleElection implements the ELECTION opcode server-side
// (elector.py's election): given the first candidate's id and the
// current candidate (cand), forward the higher-id of {self, cand} to
// our own successor, unless the ring has come back around to the
// first candidate — in which case that candidate is the elected
// leader and the round terminates.
func (e *Elector) HandleElection(ctx context.Context, firstID domain.ID, candidate domain.NodeRef) (domain.NodeRef, error) {
	self := e.rt.Self()

	winner := candidate
	if self.ID.Cmp(candidate.ID) > 0 {
		winner = self
	}

	succ := e.rt.FirstSuccessor()
	if succ.ID.Equal(self.ID) || succ.ID.Equal(firstID) {
		// ring of one, or the round has returned to its origin: winner
		// (the highest id seen) is the new leader.
		e.SetLeader(winner)
		return winner, nil
	}

	cli, err := e.pool.AddRef(succ.Addr)
	if err != nil {
		// successor unreachable: terminate the round here with the
		// best candidate seen so far.
		e.SetLeader(winner)
		return winner, nil
	}
	defer e.pool.Release(succ.Addr)

	return cli.Election(ctx, firstID, winner)
}
