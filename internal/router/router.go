// Package router implements the Chord lookup protocol of spec.md §4.1:
// closest_preceding_finger, find_predecessor and find_successor. It is
// grounded on the teacher's internal/node/operation.go
// FindSuccessorInit/FindSuccessorStep pair, reshaped from a de Bruijn
// graph walk into a finger-table walk with a bounded hop count instead
// of an imaginary-node recursion.
package router

import (
	"context"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"KoordeDHT/internal/client"
	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/ring"
)

// maxHops bounds a single lookup so a routing-table inconsistency (e.g.
// a stale finger pointing into a cycle) can never spin forever; it is
// generous relative to log2(2^160) since the ring is expected to be
// far smaller than the full identifier space.
const maxHops = 256

// Router resolves "who owns id" queries by walking the finger table of
// rt, hopping to remote peers through pool as needed.
type Router struct {
	lgr  logger.Logger
	rt   *ring.RoutingTable
	pool *client.Pool
}

// New creates a Router over rt, issuing remote hops through pool.
func New(rt *ring.RoutingTable, pool *client.Pool, lgr logger.Logger) *Router {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Router{lgr: lgr, rt: rt, pool: pool}
}

// ClosestPrecedingFinger returns the node from this node's finger table
// (or successor list) closest to, but not past, target. It never
// leaves the local node (spec.md §4.1).
func (r *Router) ClosestPrecedingFinger(target domain.ID) domain.NodeRef {
	self := r.rt.Self()
	candidate := r.rt.Fingers().ClosestPrecedingFinger(target)
	if !candidate.ID.Equal(self.ID) {
		return candidate
	}
	// fall back through the successor list, closest-first, before
	// admitting self is the best known predecessor.
	for _, s := range r.rt.Successors().Snapshot() {
		if s.ID.Between(self.ID, target) && !s.ID.Equal(target) {
			return s
		}
	}
	return self
}

// FindPredecessor walks the ring, hop by hop, to the node whose
// successor's range contains id: the predecessor of id.
func (r *Router) FindPredecessor(ctx context.Context, id domain.ID) (domain.NodeRef, error) {
	self := r.rt.Self()
	n := self

	for hop := 0; hop < maxHops; hop++ {
		if err := ctxutil.CheckContext(ctx); err != nil {
			return domain.NodeRef{}, err
		}

		var succ domain.NodeRef
		var err error
		if n.ID.Equal(self.ID) {
			succ = r.rt.FirstSuccessor()
		} else {
			succ, err = r.remoteSuccessor(ctx, n)
			if err != nil {
				return domain.NodeRef{}, fmt.Errorf("router: FindPredecessor: successor of %s: %w", n.Addr, err)
			}
		}

		if id.Between(n.ID, succ.ID) || id.Equal(succ.ID) {
			return n, nil
		}

		var next domain.NodeRef
		if n.ID.Equal(self.ID) {
			next = r.ClosestPrecedingFinger(id)
		} else {
			next, err = r.remoteClosestPrecedingFinger(ctx, n, id)
			if err != nil {
				return domain.NodeRef{}, fmt.Errorf("router: FindPredecessor: closest_preceding_finger at %s: %w", n.Addr, err)
			}
		}
		if next.ID.Equal(n.ID) {
			// n believes itself closest to id but id isn't in (n, succ]:
			// routing table is stale relative to id; stop here rather
			// than loop.
			return n, nil
		}
		n = next
	}
	return domain.NodeRef{}, status.Error(codes.DeadlineExceeded, "router: FindPredecessor exceeded max hop count")
}

// FindSuccessor resolves the node responsible for id (spec.md §4.1).
func (r *Router) FindSuccessor(ctx context.Context, id domain.ID) (domain.NodeRef, error) {
	self := r.rt.Self()
	if firstSucc := r.rt.FirstSuccessor(); id.Between(self.ID, firstSucc.ID) || id.Equal(firstSucc.ID) {
		return firstSucc, nil
	}

	pred, err := r.FindPredecessor(ctx, id)
	if err != nil {
		return domain.NodeRef{}, err
	}
	if pred.ID.Equal(self.ID) {
		return r.rt.FirstSuccessor(), nil
	}
	succ, err := r.remoteSuccessor(ctx, pred)
	if err != nil {
		return domain.NodeRef{}, fmt.Errorf("router: FindSuccessor: successor of predecessor %s: %w", pred.Addr, err)
	}
	return succ, nil
}

func (r *Router) remoteSuccessor(ctx context.Context, n domain.NodeRef) (domain.NodeRef, error) {
	cli, err := r.pool.AddRef(n.Addr)
	if err != nil {
		return domain.NodeRef{}, err
	}
	defer r.pool.Release(n.Addr)
	return cli.GetSuccessor(ctx)
}

func (r *Router) remoteClosestPrecedingFinger(ctx context.Context, n domain.NodeRef, id domain.ID) (domain.NodeRef, error) {
	cli, err := r.pool.AddRef(n.Addr)
	if err != nil {
		return domain.NodeRef{}, err
	}
	defer r.pool.Release(n.Addr)
	return cli.ClosestPrecedingFinger(ctx, id)
}
