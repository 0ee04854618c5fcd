package peerrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"KoordeDHT/internal/domain"
)

// Client invokes the fifteen peer opcodes against a single remote node
// over an existing *grpc.ClientConn. It is the thin typed layer the
// router, stabilizer, replicator and elector call through; connection
// lifetime and reuse are the client pool's concern, not this type's.
type Client struct {
	conn  *grpc.ClientConn
	space domain.Space
}

// NewClient wraps conn for opcode calls against the given identifier
// space (needed to decode NodeRef/LocalRecord IDs from hex).
func NewClient(conn *grpc.ClientConn, space domain.Space) *Client {
	return &Client{conn: conn, space: space}
}

func (c *Client) invokeStruct(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) FindPredecessor(ctx context.Context, id domain.ID) (domain.NodeRef, error) {
	req, _ := structpb.NewStruct(map[string]any{"id": id.ToHexString(false)})
	resp, err := c.invokeStruct(ctx, "FindPredecessor", req)
	if err != nil {
		return domain.NodeRef{}, err
	}
	return structToNode(c.space, resp)
}

func (c *Client) FindSuccessor(ctx context.Context, id domain.ID) (domain.NodeRef, error) {
	req, _ := structpb.NewStruct(map[string]any{"id": id.ToHexString(false)})
	resp, err := c.invokeStruct(ctx, "FindSuccessor", req)
	if err != nil {
		return domain.NodeRef{}, err
	}
	return structToNode(c.space, resp)
}

func (c *Client) GetPredecessor(ctx context.Context) (domain.NodeRef, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetPredecessor", &emptypb.Empty{}, resp); err != nil {
		return domain.NodeRef{}, err
	}
	return structToNode(c.space, resp)
}

func (c *Client) GetSuccessor(ctx context.Context) (domain.NodeRef, error) {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/GetSuccessor", &emptypb.Empty{}, resp); err != nil {
		return domain.NodeRef{}, err
	}
	return structToNode(c.space, resp)
}

func (c *Client) ClosestPrecedingFinger(ctx context.Context, id domain.ID) (domain.NodeRef, error) {
	req, _ := structpb.NewStruct(map[string]any{"id": id.ToHexString(false)})
	resp, err := c.invokeStruct(ctx, "ClosestPrecedingFinger", req)
	if err != nil {
		return domain.NodeRef{}, err
	}
	return structToNode(c.space, resp)
}

func (c *Client) Notify(ctx context.Context, candidate domain.NodeRef) error {
	req := nodeToStruct(candidate)
	resp := new(emptypb.Empty)
	return c.conn.Invoke(ctx, "/"+ServiceName+"/Notify", req, resp)
}

// GetSuccessorAndNotify asks the remote node for its immediate
// successor, simultaneously informing it that self may be its
// predecessor (the combined RPC used by fix_successors). index is the
// caller's successor-list position; the remote end does not use it.
func (c *Client) GetSuccessorAndNotify(ctx context.Context, index int, self domain.NodeRef) (domain.NodeRef, error) {
	req, _ := structpb.NewStruct(map[string]any{
		"index": float64(index),
		"id":    self.ID.ToHexString(false),
		"addr":  self.Addr,
	})
	resp, err := c.invokeStruct(ctx, "GetSuccessorAndNotify", req)
	if err != nil {
		return domain.NodeRef{}, err
	}
	return structToNode(c.space, resp)
}

func (c *Client) Ping(ctx context.Context) error {
	resp := new(wrapperspb.StringValue)
	return c.conn.Invoke(ctx, "/"+ServiceName+"/Ping", &emptypb.Empty{}, resp)
}

// PingLeader sends the Berkeley-algorithm probe: sender's clock, and
// receives back the leader's new averaged time.
func (c *Client) PingLeader(ctx context.Context, senderID domain.ID, senderTime int64) (int64, error) {
	req, _ := structpb.NewStruct(map[string]any{
		"sender_id":   senderID.ToHexString(false),
		"sender_time": float64(senderTime),
	})
	resp := new(wrapperspb.Int64Value)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/PingLeader", req, resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (c *Client) Election(ctx context.Context, firstID domain.ID, candidate domain.NodeRef) (domain.NodeRef, error) {
	req, _ := structpb.NewStruct(map[string]any{
		"first_id":  firstID.ToHexString(false),
		"cand_id":   candidate.ID.ToHexString(false),
		"cand_addr": candidate.Addr,
	})
	resp, err := c.invokeStruct(ctx, "Election", req)
	if err != nil {
		return domain.NodeRef{}, err
	}
	return structToNode(c.space, resp)
}

func (c *Client) SetPartition(ctx context.Context, values []domain.LocalRecord, tombstones map[string]int64) (bool, error) {
	vs := recordsToStruct(values)
	ts := tombstonesToStruct("tombstones", tombstones)
	req, _ := structpb.NewStruct(map[string]any{
		"records":    vs.Fields["records"].AsInterface(),
		"tombstones": ts.Fields["tombstones"].AsInterface(),
	})
	resp := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/SetPartition", req, resp); err != nil {
		return false, err
	}
	return resp.Value, nil
}

// ResolveData pushes this node's view of a handed-off range and gets
// back the subset the remote node considers more current (spec.md
// §4.5's resolve_data version-conflict exchange).
func (c *Client) ResolveData(ctx context.Context, values []domain.LocalRecord, tombstones map[string]int64) ([]domain.LocalRecord, map[string]int64, error) {
	vs := recordsToStruct(values)
	ts := tombstonesToStruct("tombstones", tombstones)
	req, _ := structpb.NewStruct(map[string]any{
		"records":    vs.Fields["records"].AsInterface(),
		"tombstones": ts.Fields["tombstones"].AsInterface(),
	})
	resp, err := c.invokeStruct(ctx, "ResolveData", req)
	if err != nil {
		return nil, nil, err
	}
	return structToRecords(c.space, resp), structToTombstones(resp, "tombstones"), nil
}

func (c *Client) RetrieveKey(ctx context.Context, rawKey string) (domain.LocalRecord, error) {
	req, _ := structpb.NewStruct(map[string]any{"raw_key": rawKey})
	resp, err := c.invokeStruct(ctx, "RetrieveKey", req)
	if err != nil {
		return domain.LocalRecord{}, err
	}
	return structToRecord(c.space, resp), nil
}

func (c *Client) StoreKey(ctx context.Context, rec domain.LocalRecord, replicate bool) (bool, error) {
	req := recordToStruct(rec)
	req.Fields["replicate"] = structpb.NewBoolValue(replicate)
	resp := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/StoreKey", req, resp); err != nil {
		return false, err
	}
	return resp.Value, nil
}

func (c *Client) DeleteKey(ctx context.Context, rawKey string, version int64, replicate bool) (bool, error) {
	req, _ := structpb.NewStruct(map[string]any{
		"raw_key":   rawKey,
		"version":   float64(version),
		"replicate": replicate,
	})
	resp := new(wrapperspb.BoolValue)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/DeleteKey", req, resp); err != nil {
		return false, err
	}
	return resp.Value, nil
}
