package sim

// ncclFlowAlgorithm drives a pre-planned FlowModel to completion: a
// flow fires as soon as every parent has completed, fan-out and fan-in
// edges modeling tree/ring/NVLS behavior precisely.
type ncclFlowAlgorithm struct {
	op      CollectiveKind
	n, self int
	cost    AlgoCost
	peer    DimPeerFunc
	topo    *LogicalTopology
	planner *NcclFlowPlanner
	variant NcclVariant

	fm      *FlowModel
	started map[FlowID]bool
	done    bool
}

// NewNcclFlowAlgorithm constructs the NcclFlowModel CollectiveAlgorithm
// for one phase, always planning a ring chain. Kept for callers (and
// tests) that don't need size-adaptive variant selection; PhaseGenerator
// itself calls NewNcclFlowAlgorithmVariant with the result of
// NcclFlowPlanner.SelectVariant.
func NewNcclFlowAlgorithm(op CollectiveKind, n, self int, cost AlgoCost, topo *LogicalTopology, peer DimPeerFunc) CollectiveAlgorithm {
	return NewNcclFlowAlgorithmVariant(op, n, self, cost, topo, NcclVariantRing, peer)
}

// NewNcclFlowAlgorithmVariant constructs the NcclFlowModel
// CollectiveAlgorithm bound to a specific wire pattern (RING/TREE/NVLS),
// as chosen by NcclFlowPlanner.SelectVariant for this phase's message
// size, workload phase, and NVLS gating. peer maps this phase's
// dimension-local ranks (the planner's Src/Dst) back to global NodeIDs;
// a nil peer defaults to the identity mapping.
func NewNcclFlowAlgorithmVariant(op CollectiveKind, n, self int, cost AlgoCost, topo *LogicalTopology, variant NcclVariant, peer DimPeerFunc) CollectiveAlgorithm {
	if peer == nil {
		peer = identityPeer
	}
	return &ncclFlowAlgorithm{op: op, n: n, self: self, cost: cost, peer: peer, topo: topo, variant: variant, planner: NewNcclFlowPlanner(1), started: make(map[FlowID]bool)}
}

func (a *ncclFlowAlgorithm) Done() bool { return a.done }

func (a *ncclFlowAlgorithm) Run(sys *Sys, phase *CollectivePhase, now int64) {
	switch a.variant {
	case NcclVariantTree:
		if a.topo != nil {
			a.fm = a.planner.PlanTree(a.topo, a.self, phase.Bytes)
		} else {
			a.fm = a.planner.PlanRingChain(a.op, a.n, a.self, phase.Bytes)
		}
	case NcclVariantNVLS:
		a.fm = a.planner.PlanNVLS(a.self, a.n-1, phase.Bytes)
	default:
		a.fm = a.planner.PlanRingChain(a.op, a.n, a.self, phase.Bytes)
	}
	if err := a.fm.Validate(); err != nil {
		SysPanic(err)
	}
	if len(a.fm.Flows) == 0 {
		a.done = true
		sys.onPhaseComplete(phase, now)
		return
	}
	a.admitEligible(sys, phase, now)
}

func (a *ncclFlowAlgorithm) admitEligible(sys *Sys, phase *CollectivePhase, now int64) {
	for _, id := range a.fm.Order {
		if a.started[id] || !a.fm.Eligible(id) {
			continue
		}
		a.started[id] = true
		a.startFlow(sys, phase, a.fm.Flows[id], now)
	}
}

func flowTag(phase *CollectivePhase, id FlowID) int64 { return int64(phase.Handle)*1000 + int64(id) }

func (a *ncclFlowAlgorithm) startFlow(sys *Sys, phase *CollectivePhase, f *SingleFlow, now int64) {
	switch {
	case f.Src == a.self && f.Dst == a.self:
		a.completeFlow(sys, phase, f, now)
	case f.Src == a.self:
		sys.simSend(phase, a.peer(f.Dst), flowTag(phase, f.ID), f.Bytes, now)
	case f.Dst == a.self:
		sys.simRecv(phase, a.peer(f.Src), flowTag(phase, f.ID))
	default:
		// Neither endpoint is this rank: this flow belongs to a part of
		// the global plan not locally simulated; treat as immediately
		// satisfied so dependents relying on it remain unblocked.
		a.completeFlow(sys, phase, f, now)
	}
}

func (a *ncclFlowAlgorithm) completeFlow(sys *Sys, phase *CollectivePhase, f *SingleFlow, now int64) {
	a.fm.MarkCompleted(f.ID)
	if a.fm.AllCompleted() {
		a.done = true
		sys.onPhaseComplete(phase, now)
		return
	}
	a.admitEligible(sys, phase, now)
}

func (a *ncclFlowAlgorithm) OnSendComplete(sys *Sys, phase *CollectivePhase, tag int64, now int64) {
	id := FlowID(tag - int64(phase.Handle)*1000)
	f, ok := a.fm.Flows[id]
	if !ok {
		return
	}
	a.completeFlow(sys, phase, f, now)
}

func (a *ncclFlowAlgorithm) OnRecvComplete(sys *Sys, phase *CollectivePhase, tag int64, bytes int64, now int64) {
	id := FlowID(tag - int64(phase.Handle)*1000)
	f, ok := a.fm.Flows[id]
	if !ok {
		return
	}
	sys.registerEvent(a.cost.LocalReductionDelay, now, func(sys *Sys, now int64) {
		a.completeFlow(sys, phase, f, now)
	})
}
