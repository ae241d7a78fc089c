package sim

// doubleBinaryTreeAlgorithm overlays two binary trees rooted at
// opposite ends of the rank range: the primary tree reduces data
// upward to its root, the mirror tree gathers data downward from its
// root, giving every rank roughly half its bandwidth in each direction.
type doubleBinaryTreeAlgorithm struct {
	op   CollectiveKind
	n    int
	self int
	cost AlgoCost
	peer DimPeerFunc

	parent, children       int
	childRanks             []int
	mirrorParent           int
	mirrorChildRanks       []int

	needReduce bool
	needGather bool

	recvFromChildren int
	sentToParent     bool
	recvFromMirror   bool
	sentToMirror     int

	done bool
}

// NewDoubleBinaryTreeAlgorithm constructs the DoubleBinaryTree
// CollectiveAlgorithm for one phase. If topo is nil (caller has no
// LogicalTopology handy, e.g. in isolated tests) a fresh balanced pair
// of trees is built directly. peer maps this phase's dimension-local
// ranks back to global NodeIDs; a nil peer defaults to the identity
// mapping.
func NewDoubleBinaryTreeAlgorithm(op CollectiveKind, n, self int, cost AlgoCost, topo *LogicalTopology, peer DimPeerFunc) CollectiveAlgorithm {
	if topo == nil {
		topo = NewLogicalTopology(TopologyDoubleBinaryTree, n)
	}
	if peer == nil {
		peer = identityPeer
	}
	d := &doubleBinaryTreeAlgorithm{
		op:               op,
		n:                n,
		self:             self,
		cost:             cost,
		peer:             peer,
		parent:           topo.TreeParent(self),
		childRanks:       topo.TreeChildren(self),
		mirrorParent:     topo.MirrorParent(self),
		mirrorChildRanks: topo.MirrorChildren(self),
	}
	d.children = len(d.childRanks)
	switch op {
	case CollectiveReduceScatter:
		d.needReduce = true
	case CollectiveAllGather:
		d.needGather = true
	case CollectiveAllReduce:
		d.needReduce, d.needGather = true, true
	}
	return d
}

func (d *doubleBinaryTreeAlgorithm) Done() bool { return d.done }

func reduceTag(phase *CollectivePhase, rank int) int64 {
	return int64(phase.Handle)*1000 + 1 + int64(rank)
}

func gatherTag(phase *CollectivePhase, rank int) int64 {
	return int64(phase.Handle)*1000 + 2 + int64(rank)
}

func (d *doubleBinaryTreeAlgorithm) Run(sys *Sys, phase *CollectivePhase, now int64) {
	if d.needReduce {
		d.startReduce(sys, phase, now)
		return
	}
	d.startGather(sys, phase, now)
}

func (d *doubleBinaryTreeAlgorithm) startReduce(sys *Sys, phase *CollectivePhase, now int64) {
	if d.children == 0 {
		d.afterChildrenReduced(sys, phase, now)
		return
	}
	for _, c := range d.childRanks {
		sys.simRecv(phase, d.peer(c), reduceTag(phase, c))
	}
}

func (d *doubleBinaryTreeAlgorithm) afterChildrenReduced(sys *Sys, phase *CollectivePhase, now int64) {
	if d.parent == -1 {
		d.finishReduce(sys, phase, now)
		return
	}
	sys.simSend(phase, d.peer(d.parent), reduceTag(phase, d.self), phase.Bytes, now)
}

func (d *doubleBinaryTreeAlgorithm) finishReduce(sys *Sys, phase *CollectivePhase, now int64) {
	if d.needGather {
		d.startGather(sys, phase, now)
		return
	}
	d.done = true
	sys.onPhaseComplete(phase, now)
}

func (d *doubleBinaryTreeAlgorithm) startGather(sys *Sys, phase *CollectivePhase, now int64) {
	if d.mirrorParent == -1 {
		d.fanOutToMirrorChildren(sys, phase, now)
		return
	}
	sys.simRecv(phase, d.peer(d.mirrorParent), gatherTag(phase, d.mirrorParent))
}

func (d *doubleBinaryTreeAlgorithm) fanOutToMirrorChildren(sys *Sys, phase *CollectivePhase, now int64) {
	if len(d.mirrorChildRanks) == 0 {
		d.done = true
		sys.onPhaseComplete(phase, now)
		return
	}
	for _, c := range d.mirrorChildRanks {
		sys.simSend(phase, d.peer(c), gatherTag(phase, d.self), phase.Bytes, now)
	}
}

func (d *doubleBinaryTreeAlgorithm) OnSendComplete(sys *Sys, phase *CollectivePhase, tag int64, now int64) {
	if !d.sentToParent && d.parent != -1 && tag == reduceTag(phase, d.self) {
		d.sentToParent = true
		d.finishReduce(sys, phase, now)
		return
	}
	d.sentToMirror++
	if d.sentToMirror >= len(d.mirrorChildRanks) {
		d.done = true
		sys.onPhaseComplete(phase, now)
	}
}

func (d *doubleBinaryTreeAlgorithm) OnRecvComplete(sys *Sys, phase *CollectivePhase, tag int64, bytes int64, now int64) {
	sys.registerEvent(d.cost.LocalReductionDelay, now, func(sys *Sys, now int64) {
		if d.needReduce && !d.recvFromMirror && d.recvFromChildren < d.children {
			d.recvFromChildren++
			if d.recvFromChildren == d.children {
				d.afterChildrenReduced(sys, phase, now)
			}
			return
		}
		d.recvFromMirror = true
		d.fanOutToMirrorChildren(sys, phase, now)
	})
}
