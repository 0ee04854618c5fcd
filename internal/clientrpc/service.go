// Package clientrpc is the application-facing RPC surface of a node:
// the three KV operations (spec.md §4.7's Put/Get/Delete) exposed as a
// second hand-written grpc.ServiceDesc alongside peerrpc's node-to-node
// service, sharing the same structpb/wrapperspb wire-message approach
// and the same no-protoc rationale (see DESIGN.md).
package clientrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the gRPC service name advertised over the wire.
const ServiceName = "ringclient.v1.KV"

// Server is implemented by anything that can answer the three
// client-facing KV operations. kv.Facade satisfies this directly.
type Server interface {
	Put(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
	Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Delete(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error)
}

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

// ServiceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit from a .proto file declaring Put/Get/Delete.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).Put(ctx, req)
		})},
		{MethodName: "Get", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).Get(ctx, req)
		})},
		{MethodName: "Delete", Handler: unaryStruct(func(srv any, ctx context.Context, req *structpb.Struct) (any, error) {
			return srv.(Server).Delete(ctx, req)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/clientrpc/service.go",
}

// RegisterServer registers srv against the given gRPC server.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}
