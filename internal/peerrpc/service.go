package peerrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service name advertised over the wire.
const ServiceName = "ringpeer.v1.Peer"

// Server is implemented by anything that can answer the fifteen peer
// opcodes of the ring protocol (spec.md §4.6): node lookups, successor
// list maintenance, leader election, and data replication. node.Node
// satisfies this by delegating to router, stabilizer, election and
// replicator.
type Server interface {
	FindPredecessor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	FindSuccessor(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetPredecessor(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
	GetSuccessor(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
	ClosestPrecedingFinger(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Notify(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
	GetSuccessorAndNotify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error)
	PingLeader(ctx context.Context, req *structpb.Struct) (*wrapperspb.Int64Value, error)
	Election(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SetPartition(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	ResolveData(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	RetrieveKey(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	StoreKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	DeleteKey(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

// unaryStruct builds a grpc.MethodDesc handler for a method whose
// request is a *structpb.Struct.
func unaryStruct(call func(srv any, ctx context.Context, req *structpb.Struct) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(structpb.Struct)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// unaryEmpty builds a grpc.MethodDesc handler for a method whose
// request is *emptypb.Empty.
func unaryEmpty(call func(srv any, ctx context.Context) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(emptypb.Empty)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv, ctx)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		handler := func(ctx context.Context, _ any) (any, error) {
			return call(srv, ctx)
		}
		return interceptor(ctx, req, info, handler)
	}
}

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit from a .proto file listing the fifteen opcodes of §4.6.
// Request/response types come from google.golang.org/protobuf's
// ready-built well-known types, so no generated stubs are needed.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindPredecessor", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).FindPredecessor(ctx, req)
		})},
		{MethodName: "FindSuccessor", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).FindSuccessor(ctx, req)
		})},
		{MethodName: "GetPredecessor", Handler: unaryEmpty(func(srv any, ctx context.Context) (any, error) {
			return srv.(Server).GetPredecessor(ctx, &emptypb.Empty{})
		})},
		{MethodName: "GetSuccessor", Handler: unaryEmpty(func(srv any, ctx context.Context) (any, error) {
			return srv.(Server).GetSuccessor(ctx, &emptypb.Empty{})
		})},
		{MethodName: "ClosestPrecedingFinger", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).ClosestPrecedingFinger(ctx, req)
		})},
		{MethodName: "Notify", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).Notify(ctx, req)
		})},
		{MethodName: "GetSuccessorAndNotify", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).GetSuccessorAndNotify(ctx, req)
		})},
		{MethodName: "Ping", Handler: unaryEmpty(func(srv any, ctx context.Context) (any, error) {
			return srv.(Server).Ping(ctx, &emptypb.Empty{})
		})},
		{MethodName: "PingLeader", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).PingLeader(ctx, req)
		})},
		{MethodName: "Election", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).Election(ctx, req)
		})},
		{MethodName: "SetPartition", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).SetPartition(ctx, req)
		})},
		{MethodName: "ResolveData", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).ResolveData(ctx, req)
		})},
		{MethodName: "RetrieveKey", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).RetrieveKey(ctx, req)
		})},
		{MethodName: "StoreKey", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).StoreKey(ctx, req)
		})},
		{MethodName: "DeleteKey", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).DeleteKey(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/peerrpc/service.go",
}

// RegisterServer registers srv against the given gRPC server.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}
