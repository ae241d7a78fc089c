package sim

import "sort"

// TraversalKind selects the order in which a chunk-stream visits
// physical dimensions.
type TraversalKind int

const (
	TraversalReverse TraversalKind = iota
	TraversalForward
	TraversalRoundRobin
	TraversalOfflineGreedy
	TraversalOfflineGreedyFlex
)

// CollectiveOptimization is the phase-list rewrite strategy applied
// before algorithm instantiation.
type CollectiveOptimization int

const (
	OptimizationBaseline CollectiveOptimization = iota
	OptimizationLocalBWAware
	OptimizationHierarchical
)

// PhaseGeneratorConfig is the static, per-system configuration a
// PhaseGenerator is built from.
type PhaseGeneratorConfig struct {
	PreferredChunkBytes int64
	MinChunkBytes       int64 // floor below which a stream is not split further

	Traversal    map[CollectiveKind]TraversalKind
	Optimization CollectiveOptimization

	// AlgoSelection gives, per operation, one AlgorithmKind per physical
	// dimension (parsed from a string like "ring_doubleBinaryTree_direct"
	// by ParseAlgorithmSelectionString).
	AlgoSelection map[CollectiveKind][]AlgorithmKind
	Cost          AlgoCost

	// NVLSEnable gates the NVLS wire pattern for NcclFlowModel phases;
	// see NcclFlowPlanner.SelectVariant.
	NVLSEnable bool
}

// PhaseGenerator decomposes a logical collective into chunk-streams of
// single-dimension CollectivePhases. It holds no
// per-request state; every call to Build is independent.
type PhaseGenerator struct {
	cfg PhaseGeneratorConfig
}

// NewPhaseGenerator constructs a generator from static configuration.
func NewPhaseGenerator(cfg PhaseGeneratorConfig) *PhaseGenerator {
	if cfg.MinChunkBytes <= 0 {
		cfg.MinChunkBytes = 4096
	}
	return &PhaseGenerator{cfg: cfg}
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 1
	}
	return (a + b - 1) / b
}

// Build decomposes one logical collective issuance into chunk Streams,
// registering each phase's CollectiveAlgorithm instance and phase/stream
// handles on sys. Returns nil if bytes is 0 or no
// dimension participates.
func (pg *PhaseGenerator) Build(sys *Sys, op CollectiveKind, bytes int64, involvedDims uint64, priority PriorityPolicy, workloadPhase LayerPhase, now int64) []*Stream {
	if bytes <= 0 {
		return nil
	}
	dims := sys.Topology.Dims
	participating := make([]int, 0, len(dims))
	for d := 0; d < len(dims); d++ {
		if dims[d] == 1 {
			continue
		}
		if involvedDims&(1<<uint(d)) == 0 {
			continue
		}
		participating = append(participating, d)
	}
	if len(participating) == 0 {
		return nil
	}

	chunkSize := pg.cfg.PreferredChunkBytes
	if chunkSize < pg.cfg.MinChunkBytes {
		chunkSize = pg.cfg.MinChunkBytes
	}
	numChunks := int(ceilDiv(bytes, chunkSize))
	if numChunks < 1 {
		numChunks = 1
	}

	selfRank := selfRankOf(sys)
	streams := make([]*Stream, 0, numChunks)
	for c := 0; c < numChunks; c++ {
		chunkBytes := bytes / int64(numChunks)
		if c == numChunks-1 {
			chunkBytes = bytes - chunkBytes*int64(numChunks-1)
		}
		order := pg.traversalOrder(op, participating, c)
		phases := pg.buildPhaseList(sys, op, order, dims, selfRank, chunkBytes, workloadPhase, now)
		if len(phases) == 0 {
			continue
		}
		pr := sys.priority.assignPriority(priority)
		st := NewStream(sys.newStreamHandle(), 0, phases, chunkBytes, pr)
		for _, p := range phases {
			p.Owner = st.Handle
		}
		streams = append(streams, st)
	}
	return streams
}

func selfRankOf(sys *Sys) int {
	if node, ok := sys.Cluster.Nodes.get(sys.Node); ok {
		return node.Offset
	}
	return int(sys.Node)
}

// traversalOrder returns the dimension visitation order for chunk index
// streamIdx under the operation's configured TraversalKind.
func (pg *PhaseGenerator) traversalOrder(op CollectiveKind, participating []int, streamIdx int) []int {
	kind := pg.cfg.Traversal[op]
	order := append([]int(nil), participating...)
	switch kind {
	case TraversalReverse:
		reverseInts(order)
	case TraversalForward:
		// already forward
	case TraversalRoundRobin:
		n := len(order)
		if n > 0 {
			shift := streamIdx % n
			order = append(order[shift:], order[:shift]...)
		}
	case TraversalOfflineGreedy, TraversalOfflineGreedyFlex:
		// Fixed precomputed order: ascending dimension index. Dimension
		// sizes and current contention are not consulted.
		sort.SliceStable(order, func(i, j int) bool { return order[i] < order[j] })
	}
	return order
}

func reverseInts(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// buildPhaseList applies the configured CollectiveOptimization and
// instantiates one CollectivePhase per surviving (dimension, sub-op)
// pair, in traversal order.
func (pg *PhaseGenerator) buildPhaseList(sys *Sys, op CollectiveKind, order []int, dims []int, selfRank int, bytes int64, workloadPhase LayerPhase, now int64) []*CollectivePhase {
	switch {
	case op == CollectiveAllReduce && pg.cfg.Optimization == OptimizationLocalBWAware:
		fwd := append([]int(nil), order...)
		sort.Ints(fwd) // ReduceScatter in ascending (forward) dimension order
		rev := append([]int(nil), fwd...)
		reverseInts(rev)
		phases := make([]*CollectivePhase, 0, len(fwd)+len(rev))
		phases = append(phases, pg.phasesForDims(sys, CollectiveReduceScatter, fwd, dims, selfRank, bytes, workloadPhase)...)
		phases = append(phases, pg.phasesForDims(sys, CollectiveAllGather, rev, dims, selfRank, bytes, workloadPhase)...)
		return phases
	case op == CollectiveAllReduce && pg.cfg.Optimization == OptimizationHierarchical:
		if len(order) == 0 {
			return nil
		}
		mid := len(order) / 2
		before, middle, after := order[:mid], order[mid], order[mid+1:]
		phases := make([]*CollectivePhase, 0, len(order))
		phases = append(phases, pg.phasesForDims(sys, CollectiveReduceScatter, before, dims, selfRank, bytes, workloadPhase)...)
		phases = append(phases, pg.phasesForDims(sys, CollectiveAllReduce, []int{middle}, dims, selfRank, bytes, workloadPhase)...)
		revAfter := append([]int(nil), after...)
		reverseInts(revAfter)
		phases = append(phases, pg.phasesForDims(sys, CollectiveAllGather, revAfter, dims, selfRank, bytes, workloadPhase)...)
		return phases
	default:
		return pg.phasesForDims(sys, op, order, dims, selfRank, bytes, workloadPhase)
	}
}

// phasesForDims builds one CollectivePhase per dimension in order,
// each bound to the per-dimension configured CollectiveAlgorithm.
func (pg *PhaseGenerator) phasesForDims(sys *Sys, op CollectiveKind, order []int, dims []int, selfRank int, bytes int64, workloadPhase LayerPhase) []*CollectivePhase {
	kinds := pg.cfg.AlgoSelection[op]
	selfCoords := sys.Topology.Coords(selfRank)
	phases := make([]*CollectivePhase, 0, len(order))
	for _, d := range order {
		n := dims[d]
		selfLocal := selfCoords[d]
		// peer maps a rank local to dimension d back to a global NodeID,
		// via TopologyMap.DimPeer (varies only d's coordinate of this
		// node's own position).
		dim := d
		peer := func(localRank int) NodeID {
			return NodeID(sys.Topology.DimPeer(selfRank, dim, localRank))
		}
		algoKind := AlgoRing
		if d < len(kinds) {
			algoKind = kinds[d]
		}
		if algoKind == AlgoHalvingDoubling && n&(n-1) != 0 {
			algoKind = AlgoRing // power-of-two precondition not met, fall back
		}
		var topo *LogicalTopology
		if lts, ok := sys.Topology.PerOp[op]; ok && d < len(lts) {
			topo = lts[d]
		}
		var algo CollectiveAlgorithm
		if algoKind == AlgoNcclFlowModel {
			variant := NewNcclFlowPlanner(1).SelectVariant(bytes, workloadPhase, pg.cfg.NVLSEnable)
			algo = NewNcclFlowAlgorithmVariant(op, n, selfLocal, pg.cfg.Cost, topo, variant, peer)
		} else {
			algo = NewAlgorithm(algoKind, op, n, selfLocal, pg.cfg.Cost, topo, peer)
		}
		nodes := make([]NodeID, n)
		for i := range nodes {
			nodes[i] = peer(i)
		}
		phase := &CollectivePhase{
			Handle:        sys.newPhaseHandle(),
			Dim:           d,
			Operation:     op,
			Algorithm:     algo,
			InvolvedNodes: nodes,
			Bytes:         bytes,
		}
		sys.registerPhase(phase)
		phases = append(phases, phase)
	}
	return phases
}
