package domain

// NodeRef identifies a participant in the ring: its routing id and the
// network address the peer RPC endpoint listens on. It is a value type,
// freely copied; equality is on ID. Never hold a direct pointer to a
// remote node's in-memory state — every non-self reference is resolved
// through the peer RPC endpoint.
type NodeRef struct {
	ID   ID
	Addr string
}

// IsSelf reports whether other refers to the same node.
func (n NodeRef) IsSelf(other NodeRef) bool {
	return n.ID.Equal(other.ID)
}
