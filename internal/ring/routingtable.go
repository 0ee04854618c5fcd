package ring

import (
	"sync"

	"KoordeDHT/internal/domain"
	"KoordeDHT/internal/logger"
)

// RoutingTable is the per-node routing state of a Chord ring participant:
// a bounded successor list, a bounded predecessor list, and a finger
// table. It is owned by a single node (self) and maintained by the
// stabilizer (adapted from the teacher's internal/routingtable.go, which
// paired a successor list + single predecessor + de Bruijn window; here
// the de Bruijn window is replaced by a finger table and the
// predecessor is widened to a bounded list per spec.md §3).
type RoutingTable struct {
	logger logger.Logger
	space  domain.Space

	selfMu sync.RWMutex
	self   domain.NodeRef

	successors   *BoundedList
	predecessors *BoundedList
	fingers      *FingerTable
}

// New creates a RoutingTable for self, with empty successor/predecessor
// lists and a finger table pointing entirely at self.
func New(self domain.NodeRef, space domain.Space, opts ...Option) *RoutingTable {
	rt := &RoutingTable{
		self:         self,
		space:        space,
		successors:   NewBoundedList(space.SuccListSize),
		predecessors: NewBoundedList(space.SuccListSize),
		fingers:      NewFingerTable(self, space),
		logger:       &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger.Debug("routing table initialized")
	return rt
}

// InitSingleNode configures the routing table to represent a ring of one:
// every pointer (successors, predecessors, fingers) refers to self.
func (rt *RoutingTable) InitSingleNode() {
	self := rt.Self()
	rt.successors.Clear()
	rt.successors.Set(0, self)
	rt.predecessors.Clear()
	rt.predecessors.Set(0, self)
	rt.fingers.ClearFrom(0)
	rt.logger.Debug("routing table reset to single-node ring")
}

// Space returns the identifier space configuration.
func (rt *RoutingTable) Space() domain.Space { return rt.space }

// Self returns the local node owning this routing table.
func (rt *RoutingTable) Self() domain.NodeRef {
	rt.selfMu.RLock()
	defer rt.selfMu.RUnlock()
	return rt.self
}

// Successors returns the bounded successor list.
func (rt *RoutingTable) Successors() *BoundedList { return rt.successors }

// Predecessors returns the bounded predecessor list.
func (rt *RoutingTable) Predecessors() *BoundedList { return rt.predecessors }

// Fingers returns the finger table.
func (rt *RoutingTable) Fingers() *FingerTable { return rt.fingers }

// FirstSuccessor is a convenience accessor equivalent to
// Successors().Get(0), falling back to self if the list is empty.
func (rt *RoutingTable) FirstSuccessor() domain.NodeRef {
	if s, ok := rt.successors.Get(0); ok {
		return s
	}
	return rt.Self()
}

// FirstPredecessor is a convenience accessor equivalent to
// Predecessors().Get(0), falling back to self if the list is empty.
func (rt *RoutingTable) FirstPredecessor() domain.NodeRef {
	if p, ok := rt.predecessors.Get(0); ok {
		return p
	}
	return rt.Self()
}

// PromoteSuccessorCandidate restructures the successor list by promoting
// the entry at index i to the head, shifting later entries forward and
// discarding earlier ones. Used when S[0] is found dead (spec.md §4.2).
func (rt *RoutingTable) PromoteSuccessorCandidate(i int) {
	if i <= 0 {
		return
	}
	candidate, ok := rt.successors.Get(i)
	if !ok {
		rt.logger.Warn("PromoteSuccessorCandidate: candidate missing", logger.F("index", i))
		return
	}
	rest := rt.successors.Snapshot()
	newList := make([]domain.NodeRef, 0, rt.successors.Capacity())
	newList = append(newList, candidate)
	for j := i + 1; j < len(rest); j++ {
		newList = append(newList, rest[j])
	}
	rt.successors.ReplaceAll(newList)
	rt.logger.Debug("PromoteSuccessorCandidate: promoted", logger.F("from_index", i), logger.FNode("candidate", candidate))
}

// DebugLog emits a single structured DEBUG-level snapshot of the routing
// table's state (self, successors, predecessors, fingers).
func (rt *RoutingTable) DebugLog() {
	self := rt.Self()
	rt.logger.Debug("RoutingTable snapshot",
		logger.FNode("self", self),
		logger.F("successors", rt.successors.Snapshot()),
		logger.F("predecessors", rt.predecessors.Snapshot()),
		logger.F("fingers", rt.fingers.Snapshot()),
	)
}
