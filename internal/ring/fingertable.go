package ring

import (
	"sync"

	"KoordeDHT/internal/domain"
)

// fingerEntry is a single shortcut pointer, guarded independently so
// fix_fingers can update one entry without blocking readers of others
// (mirrors the per-entry locking the teacher's routingEntry used for
// successor/de-Bruijn slots).
type fingerEntry struct {
	mu   sync.RWMutex
	node domain.NodeRef
	set  bool
}

// FingerTable holds the M shortcut pointers spec.md §3 describes. Entry i
// is the (claimed) successor of (self.id + 2^i) mod 2^M. All entries
// point to self initially.
type FingerTable struct {
	space   domain.Space
	self    domain.NodeRef
	entries []*fingerEntry
}

// NewFingerTable builds a finger table with space.Bits entries, all
// initialized to self.
func NewFingerTable(self domain.NodeRef, space domain.Space) *FingerTable {
	ft := &FingerTable{
		space:   space,
		self:    self,
		entries: make([]*fingerEntry, space.Bits),
	}
	for i := range ft.entries {
		ft.entries[i] = &fingerEntry{node: self, set: true}
	}
	return ft
}

// Len returns the number of finger entries (M).
func (ft *FingerTable) Len() int {
	return len(ft.entries)
}

// Start returns the start of finger entry i: (self.id + 2^i) mod 2^Bits.
func (ft *FingerTable) Start(i int) (domain.ID, error) {
	return ft.space.FingerStart(ft.self.ID, i)
}

// Get returns the node currently claimed by finger entry i.
func (ft *FingerTable) Get(i int) domain.NodeRef {
	e := ft.entries[i]
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.node
}

// Set installs node as finger entry i.
func (ft *FingerTable) Set(i int, node domain.NodeRef) {
	e := ft.entries[i]
	e.mu.Lock()
	e.node = node
	e.set = true
	e.mu.Unlock()
}

// ClearFrom resets entries [from, Len) back to self, per spec.md §4.1's
// fix_fingers rule: a self-pointing answer in a ring of size > 1 is
// evidence of stale routing, so the remaining entries are cleared and
// the sweep restarts at 0 on the next tick.
func (ft *FingerTable) ClearFrom(from int) {
	for i := from; i < len(ft.entries); i++ {
		ft.Set(i, ft.self)
	}
}

// ClosestPrecedingFinger scans entries from M-1 down to 0 and returns
// the first entry whose id lies in (self.id, target) (modular). If none
// qualifies, it returns self.
func (ft *FingerTable) ClosestPrecedingFinger(target domain.ID) domain.NodeRef {
	for i := len(ft.entries) - 1; i >= 0; i-- {
		node := ft.Get(i)
		if node.ID == nil {
			continue
		}
		if node.ID.Between(ft.self.ID, target) && !node.ID.Equal(target) {
			return node
		}
	}
	return ft.self
}

// Snapshot returns a copy of all finger entries in order, for debug
// logging.
func (ft *FingerTable) Snapshot() []domain.NodeRef {
	out := make([]domain.NodeRef, len(ft.entries))
	for i := range ft.entries {
		out[i] = ft.Get(i)
	}
	return out
}
