// Package node wires the ring, router, stabilizer, replicator, election
// and storage packages into one running participant, and answers the
// fifteen peer opcodes of spec.md §4.6 by delegating to them. Grounded
// in the teacher's internal/node package (the Node type owning a
// *routingtable.RoutingTable and exposing the hop/RPC surface), adapted
// from a single de-Bruijn-aware struct into a supervisor over the
// separate chord-era packages.
package node

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"KoordeDHT/internal/bootstrap"
	"KoordeDHT/internal/client"
	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/election"
	"KoordeDHT/internal/kv"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/peerrpc"
	"KoordeDHT/internal/replicator"
	"KoordeDHT/internal/ring"
	"KoordeDHT/internal/router"
	"KoordeDHT/internal/stabilizer"
	"KoordeDHT/internal/storage"
)

// Intervals bundles the tick rates of every background loop the
// supervisor spawns (spec.md §5).
type Intervals struct {
	Stabilize      time.Duration
	FixFingers     time.Duration
	CheckLiveness  time.Duration
	CheckLeader    time.Duration
	FixStorage     time.Duration
	ClockTick      time.Duration
	DiscoverRejoin time.Duration
}

// DefaultIntervals matches the teacher's config defaults in
// magnitude (single-digit-second periods for a small test ring).
func DefaultIntervals() Intervals {
	return Intervals{
		Stabilize:      1 * time.Second,
		FixFingers:     1 * time.Second,
		CheckLiveness:  1 * time.Second,
		CheckLeader:    2 * time.Second,
		FixStorage:     5 * time.Second,
		ClockTick:      1 * time.Second,
		DiscoverRejoin: 10 * time.Second,
	}
}

// Node is the lifecycle supervisor for one ring participant: it owns
// the routing table, the storage engine, the client pool, and every
// background loop, and implements peerrpc.Server to answer inbound
// RPCs from other nodes.
type Node struct {
	lgr logger.Logger

	rt    *ring.RoutingTable
	pool  *client.Pool
	store storage.Storage

	router *router.Router
	stab   *stabilizer.Stabilizer
	repl   *replicator.Replicator
	timer  *election.Timer
	elect  *election.Elector
	facade *kv.Facade

	disc bootstrap.Bootstrap

	cancel context.CancelFunc
}

// Option configures a Node at construction time.
type Option func(*Node)

// WithLogger installs lgr in place of the no-op default.
func WithLogger(lgr logger.Logger) Option {
	return func(n *Node) {
		if lgr != nil {
			n.lgr = lgr
		}
	}
}

// WithBootstrap installs the discovery/registration strategy used by
// the periodic discovery loop Start launches (multicast, static list,
// or DNS/Route53).
func WithBootstrap(disc bootstrap.Bootstrap) Option {
	return func(n *Node) { n.disc = disc }
}

// SetBootstrap installs disc after construction, for bootstrap
// strategies (e.g. the multicast discoverer) that need to close over
// the constructed Node's Self/Leader before they can be built.
func (n *Node) SetBootstrap(disc bootstrap.Bootstrap) { n.disc = disc }

// IsLeader reports whether self is currently believed to be the
// ring's leader.
func (n *Node) IsLeader() bool { return n.elect.IsLeader() }

// Leader returns the node currently believed to be the ring's leader.
func (n *Node) Leader() domain.NodeRef { return n.elect.Leader() }

// New assembles a Node around self's routing table, dialing peers
// through pool and persisting data in store.
func New(rt *ring.RoutingTable, pool *client.Pool, store storage.Storage, opts ...Option) *Node {
	n := &Node{
		rt:    rt,
		pool:  pool,
		store: store,
		lgr:   &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(n)
	}

	n.timer = election.NewTimer()
	n.router = router.New(rt, pool, n.lgr.Named("router"))
	n.repl = replicator.New(rt, pool, store, n.timer, n.lgr.Named("replicator"))
	n.elect = election.New(rt, pool, n.lgr.Named("elector"))
	n.stab = stabilizer.New(rt, pool, n.router, n.repl, n.lgr.Named("stabilizer"))
	n.facade = kv.New(rt, pool, n.router, n.repl, n.lgr.Named("kv"))
	return n
}

// Facade exposes the client-facing GET/PUT/DELETE surface.
func (n *Node) Facade() *kv.Facade { return n.facade }

// Self returns this node's own identity.
func (n *Node) Self() domain.NodeRef { return n.rt.Self() }

// CreateNewDHT starts a brand-new ring of one: self is its own
// successor, predecessor and leader.
func (n *Node) CreateNewDHT() {
	n.rt.InitSingleNode()
	n.elect.SetLeader(n.rt.Self())
	n.lgr.Info("created new ring", logger.FNode("self", n.rt.Self()))
}

// Join contacts introducerAddr to locate self's successor, notifies
// that successor, and runs an election round through it, adopting the
// winner as leader (grounded in the teacher's operation.go join path —
// here hop-resolved through the router instead of a de Bruijn probe).
// The predecessor list and finger table are left to the stabilizer
// loops to fill.
func (n *Node) Join(ctx context.Context, introducerAddr string) error {
	self := n.rt.Self()

	cli, err := n.pool.AddRef(introducerAddr)
	if err != nil {
		return fmt.Errorf("node: join: connecting to introducer %s: %w", introducerAddr, err)
	}
	succ, err := cli.FindSuccessor(ctx, self.ID)
	n.pool.Release(introducerAddr)
	if err != nil {
		return fmt.Errorf("node: join: find_successor via %s: %w", introducerAddr, err)
	}

	n.rt.Successors().Set(0, succ)

	if !succ.ID.Equal(self.ID) {
		succCli, err := n.pool.AddRef(succ.Addr)
		if err != nil {
			return fmt.Errorf("node: join: connecting to successor %s: %w", succ.Addr, err)
		}
		defer n.pool.Release(succ.Addr)
		if err := succCli.Notify(ctx, self); err != nil {
			n.lgr.Warn("join: notify successor failed", logger.FNode("successor", succ), logger.F("err", err))
		}
		leaderCtx, cancel := context.WithTimeout(ctx, client.FailureTimeout)
		defer cancel()
		firstID := self.ID
		leader, err := succCli.Election(leaderCtx, firstID, self)
		if err == nil {
			n.elect.SetLeader(leader)
		}
	}

	n.lgr.Info("joined ring", logger.FNode("self", self), logger.FNode("successor", succ))
	return nil
}

// Start spawns the background loops (stabilize, fix_fingers,
// check_predecessor/check_successor, fix_successors, fix_storage, the
// logical clock tick, check_leader) under one cancellable context, and
// begins periodic ring discovery if a Bootstrap was configured. No
// separate check_for_election loop is started. It returns immediately;
// call Stop to tear the loops down.
func (n *Node) Start(ctx context.Context, iv Intervals) {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.stab.Start(runCtx, iv.Stabilize, iv.FixFingers, iv.CheckLiveness)
	go n.timer.AdvanceLoop(runCtx.Done())
	go n.repl.FixStorageLoop(runCtx, iv.FixStorage)
	go n.elect.CheckLeaderLoop(runCtx, iv.CheckLeader)
	if n.disc != nil {
		go n.discoverLoop(runCtx, iv.DiscoverRejoin)
		if responder, ok := n.disc.(interface {
			ListenAndRespond(context.Context) error
		}); ok {
			go func() {
				if err := responder.ListenAndRespond(runCtx); err != nil {
					n.lgr.Warn("discover: listener stopped", logger.F("err", err))
				}
			}()
		}
	}
}

// Stop cancels every loop Start spawned.
func (n *Node) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
}

// discoverLoop mirrors discoverer.py's discover_and_join: only the
// current leader (or an isolated single node, which is always its own
// leader) re-announces, and it joins the first discovered address other
// than its own that accepts the join. It does not compare the
// discovered ring's leader id with self's id before joining.
func (n *Node) discoverLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !n.elect.IsLeader() {
				continue
			}
			peers, err := n.disc.Discover(ctx)
			if err != nil {
				n.lgr.Warn("discover: lookup failed", logger.F("err", err))
				continue
			}
			self := n.rt.Self()
			for _, addr := range peers {
				if addr == self.Addr {
					continue
				}
				if err := n.Join(ctx, addr); err == nil {
					break
				}
			}
		}
	}
}

// ---- peerrpc.Server ----

func (n *Node) FindPredecessor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := n.decodeID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	pred, err := n.router.FindPredecessor(ctx, id)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return peerrpc.EncodeNode(pred), nil
}

func (n *Node) FindSuccessor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := n.decodeID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	succ, err := n.router.FindSuccessor(ctx, id)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return peerrpc.EncodeNode(succ), nil
}

func (n *Node) GetPredecessor(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	return peerrpc.EncodeNode(n.rt.FirstPredecessor()), nil
}

func (n *Node) GetSuccessor(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	return peerrpc.EncodeNode(n.rt.FirstSuccessor()), nil
}

func (n *Node) ClosestPrecedingFinger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := n.decodeID(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return peerrpc.EncodeNode(n.router.ClosestPrecedingFinger(id)), nil
}

func (n *Node) Notify(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	candidate, err := peerrpc.DecodeNode(n.rt.Space(), req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	n.stab.Notify(ctx, candidate)
	return &emptypb.Empty{}, nil
}

func (n *Node) GetSuccessorAndNotify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	candidate, err := peerrpc.DecodeNode(n.rt.Space(), req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	n.stab.Notify(ctx, candidate)
	return peerrpc.EncodeNode(n.rt.FirstSuccessor()), nil
}

func (n *Node) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	return wrapperspb.String("pong"), nil
}

func (n *Node) PingLeader(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	senderID := req.Fields["sender_id"].GetStringValue()
	senderTime := int64(req.Fields["sender_time"].GetNumberValue())
	adjusted := n.timer.PingLeaderSample(senderID, senderTime)
	return wrapperspb.Int64(adjusted), nil
}

func (n *Node) Election(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sp := n.rt.Space()
	firstID, err := sp.FromHexString(req.Fields["first_id"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	candID, err := sp.FromHexString(req.Fields["cand_id"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	candidate := domain.NodeRef{ID: candID, Addr: req.Fields["cand_addr"].GetStringValue()}
	leader, err := n.elect.HandleElection(ctx, firstID, candidate)
	if err != nil {
		return nil, statusFromErr(err)
	}
	return peerrpc.EncodeNode(leader), nil
}

func (n *Node) SetPartition(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	values := peerrpc.DecodeRecords(n.rt.Space(), req)
	tombstones := peerrpc.DecodeTombstones(req)
	n.repl.SetPartition(values, tombstones)
	return wrapperspb.Bool(true), nil
}

func (n *Node) ResolveData(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	values := peerrpc.DecodeRecords(n.rt.Space(), req)
	tombstones := peerrpc.DecodeTombstones(req)
	staleValues, staleTombstones := n.repl.ResolveData(values, tombstones)
	return peerrpc.EncodeRecordsAndTombstones(staleValues, staleTombstones), nil
}

func (n *Node) RetrieveKey(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	rawKey := req.Fields["raw_key"].GetStringValue()
	rec, ok := n.repl.Get(n.rt.Space(), rawKey)
	if !ok {
		return nil, status.Error(codes.NotFound, "key not found")
	}
	return peerrpc.EncodeRecord(rec), nil
}

func (n *Node) StoreKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	rawKey := req.Fields["raw_key"].GetStringValue()
	value := []byte(req.Fields["value"].GetStringValue())
	replicate := req.Fields["replicate"].GetBoolValue()
	n.repl.Put(ctx, n.rt.Space(), rawKey, value, replicate)
	return wrapperspb.Bool(true), nil
}

func (n *Node) DeleteKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	rawKey := req.Fields["raw_key"].GetStringValue()
	replicate := req.Fields["replicate"].GetBoolValue()
	n.repl.Remove(ctx, n.rt.Space(), rawKey, replicate)
	return wrapperspb.Bool(true), nil
}

func (n *Node) decodeID(req *structpb.Struct) (domain.ID, error) {
	idHex, ok := req.Fields["id"]
	if !ok {
		return nil, fmt.Errorf("node: request missing id field")
	}
	return n.rt.Space().FromHexString(idHex.GetStringValue())
}

// statusFromErr passes an already-coded gRPC status through unchanged,
// and wraps anything else (routing timeouts, RPC-forwarding failures)
// as Unavailable so callers see a retryable code rather than Unknown.
func statusFromErr(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Unavailable, err.Error())
}

var _ peerrpc.Server = (*Node)(nil)
