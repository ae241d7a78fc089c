package sim

import "sync/atomic"

// NodeID identifies one accelerator in [0, N). Distinct type (not an
// alias) so it can't be mixed with a raw int or a dimension offset.
type NodeID int

// Node is the identity and per-node collaborator set for one
// accelerator: its position in the TopologyMap, its stream scheduler,
// its workload FSM, and its network/memory backends. Cross-links to
// Layers/Streams/Phases are small integer handles into Sys's arenas
// (Design Note §9), never pointers, so Node itself stays cheap to copy
// and free of reference cycles.
type Node struct {
	ID       NodeID
	Offset   int // this node's linear offset into the physical dims vector
	Topology *TopologyMap
}

// nodeRegistry is the process-wide append-only-at-init map from NodeID
// to Node, cleared only at teardown of that node's workload. One registry is owned per Sys instance — never a package
// level global — per Design Note §9 (no global mutable singletons).
type nodeRegistry struct {
	nodes map[NodeID]*Node
}

func newNodeRegistry() *nodeRegistry {
	return &nodeRegistry{nodes: make(map[NodeID]*Node)}
}

func (r *nodeRegistry) register(n *Node) { r.nodes[n.ID] = n }

func (r *nodeRegistry) get(id NodeID) (*Node, bool) {
	n, ok := r.nodes[id]
	return n, ok
}

func (r *nodeRegistry) teardown(id NodeID) { delete(r.nodes, id) }

func (r *nodeRegistry) count() int { return len(r.nodes) }

// criticalSection is the process-wide spin flag guarding EventQueue,
// PendingSends, PendingSendSet and the node registry when invoked from
// backend goroutines in the optional parallel backend. The
// single-threaded cooperative default backend never contends on it.
type criticalSection struct {
	held atomic.Bool
}

// Acquire spins until the flag is uncontested, then takes it with
// acquire semantics.
func (c *criticalSection) Acquire() {
	for !c.held.CompareAndSwap(false, true) {
		// busy-wait: the critical section is only contended by backend
		// threads and is held for the duration of one tick's worth of
		// scheduler/stream-state mutation.
	}
}

// Release drops the flag with release semantics.
func (c *criticalSection) Release() {
	c.held.Store(false)
}
