package stabilizer

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"KoordeDHT/internal/client"
	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
	"KoordeDHT/internal/peerrpc"
	"KoordeDHT/internal/ring"
)

// fakePeer implements peerrpc.Server, answering GetSuccessorAndNotify
// with a fixed reply; every other opcode is unreachable from this test
// and just returns codes.Unimplemented.
type fakePeer struct {
	reply domain.NodeRef
}

func (f *fakePeer) GetSuccessorAndNotify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	s, _ := structpb.NewStruct(map[string]any{
		"id":   f.reply.ID.ToHexString(false),
		"addr": f.reply.Addr,
	})
	return s, nil
}

func (f *fakePeer) FindPredecessor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) FindSuccessor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) GetPredecessor(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) GetSuccessor(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) ClosestPrecedingFinger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) Notify(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) PingLeader(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) Election(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) SetPartition(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) ResolveData(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) RetrieveKey(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) StoreKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func (f *fakePeer) DeleteKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "not used by this test")
}

func startFakePeer(t *testing.T, reply domain.NodeRef) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := grpc.NewServer()
	peerrpc.RegisterServer(srv, &fakePeer{reply: reply})
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func node(sp domain.Space, key, addr string) domain.NodeRef {
	return domain.NodeRef{ID: sp.NewIdFromString(key), Addr: addr}
}

// TestFixSuccessorsErasesDeadNonHeadBackup exercises spec.md §4.2's
// per-index walk: S[0] is alive and answers GetSuccessorAndNotify, but
// S[1] points at nothing listening and must be erased even though only
// S[0] is ever probed by CheckSuccessor.
func TestFixSuccessorsErasesDeadNonHeadBackup(t *testing.T) {
	sp, _ := domain.NewSpace(160, 3)
	self := node(sp, "self", "127.0.0.1:1")

	// S[0]'s reported successor is itself a live peer (it answers with
	// self, so nothing further is recorded after it); only the original
	// S[1] is unreachable.
	replyAddr := startFakePeer(t, self)
	aliveReply := node(sp, "s0-successor", replyAddr)
	aliveAddr := startFakePeer(t, aliveReply)
	alive := node(sp, "s0", aliveAddr)

	deadAddr := "127.0.0.1:1" // nothing listens here
	dead := domain.NodeRef{ID: sp.NewIdFromString("s1-dead"), Addr: deadAddr}

	rt := ring.New(self, sp, ring.WithLogger(&logger.NopLogger{}))
	rt.Successors().ReplaceAll([]domain.NodeRef{alive, dead})

	pool := client.New(sp, client.WithLogger(&logger.NopLogger{}))
	s := New(rt, pool, nil, nil, &logger.NopLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.FixSuccessors(ctx)

	list := rt.Successors().Snapshot()
	for _, n := range list {
		if n.ID.Equal(dead.ID) {
			t.Fatalf("dead backup at index 1 survived FixSuccessors: %+v", list)
		}
	}

	got0, ok := rt.Successors().Get(0)
	if !ok || !got0.ID.Equal(alive.ID) {
		t.Fatalf("S[0] = %+v, want the still-alive original successor preserved", got0)
	}
	got1, ok := rt.Successors().Get(1)
	if !ok || !got1.ID.Equal(aliveReply.ID) {
		t.Fatalf("S[1] = %+v, want S[0]'s reported successor %+v", got1, aliveReply)
	}
}
