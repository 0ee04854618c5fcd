package server

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"KoordeDHT/internal/ctxutil"
	"KoordeDHT/internal/kv"
)

// kvService adapts *kv.Facade to clientrpc.Server, the gRPC-facing
// counterpart of node.Node's peerrpc.Server: the three opcodes a
// client issues against any ring member (spec.md §4.7).
type kvService struct {
	facade *kv.Facade
}

// NewKVService wraps facade for registration via clientrpc.RegisterServer.
func NewKVService(facade *kv.Facade) *kvService {
	return &kvService{facade: facade}
}

func (s *kvService) Put(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	key := req.Fields["key"].GetStringValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "missing key")
	}
	value := req.Fields["value"].GetStringValue()
	if err := s.facade.Put(ctx, key, []byte(value)); err != nil {
		return nil, status.Errorf(codes.Internal, "put failed: %v", err)
	}
	return wrapperspb.Bool(true), nil
}

func (s *kvService) Get(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	key := req.Fields["key"].GetStringValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "missing key")
	}
	value, ok := s.facade.Get(ctx, key)
	resp, _ := structpb.NewStruct(map[string]any{
		"found": ok,
		"value": value,
	})
	return resp, nil
}

func (s *kvService) Delete(ctx context.Context, req *structpb.Struct) (*wrapperspb.BoolValue, error) {
	if err := ctxutil.CheckContext(ctx); err != nil {
		return nil, err
	}
	key := req.Fields["key"].GetStringValue()
	if key == "" {
		return nil, status.Error(codes.InvalidArgument, "missing key")
	}
	return wrapperspb.Bool(s.facade.Delete(ctx, key)), nil
}
