package clientrpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrUnavailable      = errors.New("node unavailable")
	ErrDeadlineExceeded = errors.New("request timeout exceeded")
	ErrInternal         = errors.New("internal gRPC error")
)

// normalizeError converts a gRPC status error into a package-level
// sentinel, the way internal/client/query.go does for the teacher's
// generated stubs.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	s, ok := status.FromError(err)
	if !ok {
		return ErrInternal
	}
	switch s.Code() {
	case codes.NotFound:
		return ErrNotFound
	case codes.Unavailable:
		return ErrUnavailable
	case codes.DeadlineExceeded:
		return ErrDeadlineExceeded
	default:
		return ErrInternal
	}
}

// Client invokes Put/Get/Delete against a single remote node over an
// existing *grpc.ClientConn.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps conn for KV calls.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

// Connect dials addr and returns a ready Client, mirroring the
// teacher's internal/client.Connect helper.
func Connect(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("clientrpc: connect to %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// Put inserts or updates key/value on the contacted node and reports
// round-trip latency alongside any error.
func (c *Client) Put(ctx context.Context, key, value string) (time.Duration, error) {
	start := time.Now()
	req, _ := structpb.NewStruct(map[string]any{"key": key, "value": value})
	resp := new(wrapperspb.BoolValue)
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/Put", req, resp)
	if err != nil {
		return time.Since(start), normalizeError(err)
	}
	if !resp.Value {
		return time.Since(start), ErrInternal
	}
	return time.Since(start), nil
}

// Get retrieves the value stored for key.
func (c *Client) Get(ctx context.Context, key string) (string, time.Duration, error) {
	start := time.Now()
	req, _ := structpb.NewStruct(map[string]any{"key": key})
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Get", req, resp); err != nil {
		return "", time.Since(start), normalizeError(err)
	}
	if !resp.Fields["found"].GetBoolValue() {
		return "", time.Since(start), ErrNotFound
	}
	return resp.Fields["value"].GetStringValue(), time.Since(start), nil
}

// Delete removes key from the contacted node.
func (c *Client) Delete(ctx context.Context, key string) (time.Duration, error) {
	start := time.Now()
	req, _ := structpb.NewStruct(map[string]any{"key": key})
	resp := new(wrapperspb.BoolValue)
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/Delete", req, resp)
	if err != nil {
		return time.Since(start), normalizeError(err)
	}
	if !resp.Value {
		return time.Since(start), ErrInternal
	}
	return time.Since(start), nil
}
