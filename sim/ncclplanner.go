package sim

// NcclVariant selects which wire pattern the NCCL-accurate flow model
// uses.
type NcclVariant int

const (
	NcclVariantRing NcclVariant = iota
	NcclVariantTree
	NcclVariantNVLS
)

// nvlsLargeThreshold/llSmallThreshold bound the message-size bands
// SelectVariant uses to pick a wire pattern.
const (
	llSmallThreshold  = int64(1 << 16) // 64 KiB
	nvlsLargeThreshold = int64(1 << 24) // 16 MiB
)

// NcclFlowPlanner produces per-rank FlowModels for the NCCL-accurate
// CollectiveAlgorithm variant. Planning is a pure
// function of (operation, ranks, channel count, message size): given
// the same inputs the plan is byte-identical.
type NcclFlowPlanner struct {
	Channels int
}

// NewNcclFlowPlanner constructs a planner with the given channel count
// (at least 1).
func NewNcclFlowPlanner(channels int) *NcclFlowPlanner {
	if channels <= 0 {
		channels = 1
	}
	return &NcclFlowPlanner{Channels: channels}
}

// SelectVariant picks RING/TREE/NVLS for a phase, based on message
// size, the current workload phase, and whether NVLS is enabled.
func (p *NcclFlowPlanner) SelectVariant(bytes int64, workloadPhase LayerPhase, nvlsEnabled bool) NcclVariant {
	switch {
	case bytes < llSmallThreshold:
		return NcclVariantTree
	case bytes >= nvlsLargeThreshold && nvlsEnabled:
		return NcclVariantNVLS
	default:
		return NcclVariantRing
	}
}

// PlanRingChain builds the sequential flow chain this rank participates
// in for a ring-variant phase: 2(N-1) chunks for AllReduce, N-1 for
// AllGather/ReduceScatter alone. Each flow depends on the flow of the
// step immediately before it; steps are labelled with channels
// round-robin (step % Channels), and the channel adds no dependencies
// of its own.
func (p *NcclFlowPlanner) PlanRingChain(op CollectiveKind, n, self int, bytes int64) *FlowModel {
	steps := n - 1
	if op == CollectiveAllReduce {
		steps = 2 * (n - 1)
	}
	fm := NewFlowModel()
	if n <= 1 {
		return fm
	}
	bytesPerStep := bytes / int64(n)
	if bytesPerStep <= 0 {
		bytesPerStep = bytes
	}
	next := (self + 1) % n
	var prev FlowID = -1
	for s := 0; s < steps; s++ {
		f := &SingleFlow{ID: FlowID(s), Src: self, Dst: next, Bytes: bytesPerStep, Channel: s % p.Channels}
		if prev >= 0 {
			f.Parents = []FlowID{prev}
		}
		fm.AddFlow(f)
		prev = f.ID
	}
	return fm
}

// PlanTree builds this rank's up-phase/down-phase flows for a
// tree-variant phase. Children flows feed
// into a single up flow to this rank's parent; a single down flow then
// depends on that up flow completing.
func (p *NcclFlowPlanner) PlanTree(topo *LogicalTopology, self int, bytes int64) *FlowModel {
	fm := NewFlowModel()
	parent := topo.TreeParent(self)
	children := topo.TreeChildren(self)

	childIDs := make([]FlowID, 0, len(children))
	for i, c := range children {
		f := &SingleFlow{ID: FlowID(i), Src: c, Dst: self, Bytes: bytes}
		fm.AddFlow(f)
		childIDs = append(childIDs, f.ID)
	}
	upID := FlowID(len(children))
	upDst := self
	if parent != -1 {
		upDst = parent
	}
	fm.AddFlow(&SingleFlow{ID: upID, Src: self, Dst: upDst, Bytes: bytes, Parents: childIDs})

	downID := upID + 1
	downSrc := self
	if parent != -1 {
		downSrc = parent
	}
	fm.AddFlow(&SingleFlow{ID: downID, Src: downSrc, Dst: self, Bytes: bytes, Parents: []FlowID{upID}})
	return fm
}

// PlanNVLS builds a single-hop fan-in/fan-out flow pair through a
// logical switch rank.
func (p *NcclFlowPlanner) PlanNVLS(self, switchRank int, bytes int64) *FlowModel {
	fm := NewFlowModel()
	up := &SingleFlow{ID: 0, Src: self, Dst: switchRank, Bytes: bytes}
	fm.AddFlow(up)
	fm.AddFlow(&SingleFlow{ID: 1, Src: switchRank, Dst: self, Bytes: bytes, Parents: []FlowID{0}})
	return fm
}
