// Package peerrpc is the node-to-node RPC surface of the ring: the
// fifteen opcodes of the peer protocol, each as its own unary gRPC
// method. Wire messages are built from the ready-compiled protobuf
// message types under google.golang.org/protobuf/types/known — no
// protoc step, but genuine protobuf traffic over grpc-go's codec.
package peerrpc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"KoordeDHT/internal/domain"
)

// nodeToStruct encodes a NodeRef as {"id": hex, "addr": string}.
func nodeToStruct(n domain.NodeRef) *structpb.Struct {
	s, _ := structpb.NewStruct(map[string]any{
		"id":   n.ID.ToHexString(false),
		"addr": n.Addr,
	})
	return s
}

// structToNode decodes a NodeRef previously built with nodeToStruct.
func structToNode(sp domain.Space, s *structpb.Struct) (domain.NodeRef, error) {
	if s == nil {
		return domain.NodeRef{}, fmt.Errorf("peerrpc: nil node struct")
	}
	idHex, ok := s.Fields["id"]
	if !ok {
		return domain.NodeRef{}, fmt.Errorf("peerrpc: node struct missing id")
	}
	addr, ok := s.Fields["addr"]
	if !ok {
		return domain.NodeRef{}, fmt.Errorf("peerrpc: node struct missing addr")
	}
	id, err := sp.FromHexString(idHex.GetStringValue())
	if err != nil {
		return domain.NodeRef{}, fmt.Errorf("peerrpc: decoding node id: %w", err)
	}
	return domain.NodeRef{ID: id, Addr: addr.GetStringValue()}, nil
}

// recordToStruct encodes a LocalRecord as a flat struct.
func recordToStruct(r domain.LocalRecord) *structpb.Struct {
	s, _ := structpb.NewStruct(map[string]any{
		"raw_key": r.RawKey,
		"value":   string(r.Value),
		"version": float64(r.Version),
		"live":    r.Live,
	})
	return s
}

func structToRecord(sp domain.Space, s *structpb.Struct) domain.LocalRecord {
	rawKey := s.Fields["raw_key"].GetStringValue()
	return domain.LocalRecord{
		Key:     sp.NewIdFromString(rawKey),
		RawKey:  rawKey,
		Value:   []byte(s.Fields["value"].GetStringValue()),
		Version: int64(s.Fields["version"].GetNumberValue()),
		Live:    s.Fields["live"].GetBoolValue(),
	}
}

// recordsToStruct encodes a slice of records as {"records": [...]}.
func recordsToStruct(recs []domain.LocalRecord) *structpb.Struct {
	list := make([]any, len(recs))
	for i, r := range recs {
		list[i] = map[string]any{
			"raw_key": r.RawKey,
			"value":   string(r.Value),
			"version": float64(r.Version),
			"live":    r.Live,
		}
	}
	s, _ := structpb.NewStruct(map[string]any{"records": list})
	return s
}

func structToRecords(sp domain.Space, s *structpb.Struct) []domain.LocalRecord {
	lv, ok := s.Fields["records"]
	if !ok {
		return nil
	}
	items := lv.GetListValue().GetValues()
	out := make([]domain.LocalRecord, 0, len(items))
	for _, it := range items {
		out = append(out, structToRecord(sp, it.GetStructValue()))
	}
	return out
}

// tombstonesToStruct encodes a map[rawKey]version as {"tombstones": {...}}.
func tombstonesToStruct(field string, m map[string]int64) *structpb.Struct {
	tv := make(map[string]any, len(m))
	for k, v := range m {
		tv[k] = float64(v)
	}
	s, _ := structpb.NewStruct(map[string]any{field: tv})
	return s
}

func structToTombstones(s *structpb.Struct, field string) map[string]int64 {
	fv, ok := s.Fields[field]
	if !ok {
		return nil
	}
	fields := fv.GetStructValue().GetFields()
	out := make(map[string]int64, len(fields))
	for k, v := range fields {
		out[k] = int64(v.GetNumberValue())
	}
	return out
}

// EncodeNode and the other Encode*/Decode* wrappers below expose the
// wire codec to node.Node's opcode handlers, which live in a separate
// package from the Client that otherwise owns these conversions.

// EncodeNode encodes n for an RPC response.
func EncodeNode(n domain.NodeRef) *structpb.Struct { return nodeToStruct(n) }

// DecodeNode decodes a NodeRef field out of req (as built by
// EncodeNode), used for requests that carry a single node argument
// (e.g. Notify's candidate).
func DecodeNode(sp domain.Space, req *structpb.Struct) (domain.NodeRef, error) {
	return structToNode(sp, req)
}

// EncodeRecord encodes a single LocalRecord for an RPC response.
func EncodeRecord(r domain.LocalRecord) *structpb.Struct { return recordToStruct(r) }

// DecodeRecord decodes a single LocalRecord from a flat request struct.
func DecodeRecord(sp domain.Space, req *structpb.Struct) domain.LocalRecord {
	return structToRecord(sp, req)
}

// DecodeRecords decodes the {"records": [...]} field of a SET_PARTITION
// or RESOLVE_DATA request.
func DecodeRecords(sp domain.Space, req *structpb.Struct) []domain.LocalRecord {
	return structToRecords(sp, req)
}

// DecodeTombstones decodes the {"tombstones": {...}} field of a
// SET_PARTITION or RESOLVE_DATA request.
func DecodeTombstones(req *structpb.Struct) map[string]int64 {
	return structToTombstones(req, "tombstones")
}

// EncodeRecordsAndTombstones builds a combined {"records": [...],
// "tombstones": {...}} response, the shape RESOLVE_DATA returns.
func EncodeRecordsAndTombstones(values []domain.LocalRecord, tombstones map[string]int64) *structpb.Struct {
	vs := recordsToStruct(values)
	ts := tombstonesToStruct("tombstones", tombstones)
	s, _ := structpb.NewStruct(map[string]any{
		"records":    vs.Fields["records"].AsInterface(),
		"tombstones": ts.Fields["tombstones"].AsInterface(),
	})
	return s
}
