package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseGenerator_Build_ChunksSumToOriginalBytes(t *testing.T) {
	_, nodes := newTestNodes(4)
	sys := nodes[0]
	gen := NewPhaseGenerator(PhaseGeneratorConfig{
		PreferredChunkBytes: 4096,
		MinChunkBytes:       4096,
		AlgoSelection:       map[CollectiveKind][]AlgorithmKind{CollectiveAllReduce: {AlgoRing}},
	})
	const total = int64(10000)
	streams := gen.Build(sys, CollectiveAllReduce, total, ^uint64(0), PriorityNone, PhaseForward, 0)

	var sum int64
	for _, st := range streams {
		sum += st.InitialDataSize()
	}
	assert.Equal(t, total, sum)
}

func TestPhaseGenerator_Build_ZeroBytesReturnsNil(t *testing.T) {
	_, nodes := newTestNodes(4)
	sys := nodes[0]
	gen := NewPhaseGenerator(PhaseGeneratorConfig{PreferredChunkBytes: 4096, AlgoSelection: map[CollectiveKind][]AlgorithmKind{}})
	streams := gen.Build(sys, CollectiveAllReduce, 0, ^uint64(0), PriorityNone, PhaseForward, 0)
	assert.Nil(t, streams)
}

func TestPhaseGenerator_Build_SkipsSizeOneDimensions(t *testing.T) {
	cluster := testCluster()
	dims := []int{1, 4}
	topoByOp := map[CollectiveKind][]TopologyKind{CollectiveAllReduce: {TopologyRing, TopologyRing}}
	topo := NewTopologyMap(dims, topoByOp)
	gen := NewPhaseGenerator(PhaseGeneratorConfig{
		PreferredChunkBytes: 1 << 20,
		MinChunkBytes:       4096,
		AlgoSelection:       map[CollectiveKind][]AlgorithmKind{CollectiveAllReduce: {AlgoRing, AlgoRing}},
	})
	sys := NewSysForTest(NodeID(0), cluster, topo, topoByOp, gen)
	streams := gen.Build(sys, CollectiveAllReduce, 4096, ^uint64(0), PriorityNone, PhaseForward, 0)
	require.Len(t, streams, 1)
	// only dim 1 (size 4) should produce a phase; the size-1 dim 0 is skipped
	require.Len(t, streams[0].Phases, 1)
	assert.Equal(t, 1, streams[0].Phases[0].Dim)
}

func TestPhaseGenerator_Build_InvolvedDimsBitmaskExcludesDimension(t *testing.T) {
	cluster := testCluster()
	dims := []int{4, 4}
	topoByOp := map[CollectiveKind][]TopologyKind{CollectiveAllReduce: {TopologyRing, TopologyRing}}
	topo := NewTopologyMap(dims, topoByOp)
	gen := NewPhaseGenerator(PhaseGeneratorConfig{
		PreferredChunkBytes: 1 << 20,
		MinChunkBytes:       4096,
		AlgoSelection:       map[CollectiveKind][]AlgorithmKind{CollectiveAllReduce: {AlgoRing, AlgoRing}},
	})
	sys := NewSysForTest(NodeID(0), cluster, topo, topoByOp, gen)
	// only bit 0 set: dimension 1 must not appear in any phase
	streams := gen.Build(sys, CollectiveAllReduce, 4096, 1, PriorityNone, PhaseForward, 0)
	require.Len(t, streams, 1)
	for _, p := range streams[0].Phases {
		assert.Equal(t, 0, p.Dim)
	}
}

func TestPhaseGenerator_TraversalReverse(t *testing.T) {
	gen := NewPhaseGenerator(PhaseGeneratorConfig{Traversal: map[CollectiveKind]TraversalKind{CollectiveAllReduce: TraversalReverse}})
	order := gen.traversalOrder(CollectiveAllReduce, []int{0, 1, 2}, 0)
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestPhaseGenerator_TraversalForward(t *testing.T) {
	gen := NewPhaseGenerator(PhaseGeneratorConfig{Traversal: map[CollectiveKind]TraversalKind{CollectiveAllReduce: TraversalForward}})
	order := gen.traversalOrder(CollectiveAllReduce, []int{0, 1, 2}, 0)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPhaseGenerator_TraversalRoundRobin_ShiftsByStreamIndex(t *testing.T) {
	gen := NewPhaseGenerator(PhaseGeneratorConfig{Traversal: map[CollectiveKind]TraversalKind{CollectiveAllReduce: TraversalRoundRobin}})
	assert.Equal(t, []int{0, 1, 2}, gen.traversalOrder(CollectiveAllReduce, []int{0, 1, 2}, 0))
	assert.Equal(t, []int{1, 2, 0}, gen.traversalOrder(CollectiveAllReduce, []int{0, 1, 2}, 1))
	assert.Equal(t, []int{2, 0, 1}, gen.traversalOrder(CollectiveAllReduce, []int{0, 1, 2}, 2))
}

func TestPhaseGenerator_TraversalOfflineGreedy_SortsAscending(t *testing.T) {
	gen := NewPhaseGenerator(PhaseGeneratorConfig{Traversal: map[CollectiveKind]TraversalKind{CollectiveAllReduce: TraversalOfflineGreedy}})
	order := gen.traversalOrder(CollectiveAllReduce, []int{2, 0, 1}, 0)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestPhaseGenerator_LocalBWAware_ProducesReduceScatterThenAllGather(t *testing.T) {
	_, nodes := newTestNodes(4)
	sys := nodes[0]
	gen := NewPhaseGenerator(PhaseGeneratorConfig{
		PreferredChunkBytes: 1 << 20,
		MinChunkBytes:       4096,
		Optimization:        OptimizationLocalBWAware,
		AlgoSelection: map[CollectiveKind][]AlgorithmKind{
			CollectiveReduceScatter: {AlgoRing},
			CollectiveAllGather:     {AlgoRing},
		},
	})
	streams := gen.Build(sys, CollectiveAllReduce, 1<<20, ^uint64(0), PriorityNone, PhaseWeightGrad, 0)
	require.NotEmpty(t, streams)
	ops := make([]CollectiveKind, len(streams[0].Phases))
	for i, p := range streams[0].Phases {
		ops[i] = p.Operation
	}
	require.Len(t, ops, 2)
	assert.Equal(t, CollectiveReduceScatter, ops[0])
	assert.Equal(t, CollectiveAllGather, ops[1])
}

func TestPhaseGenerator_Hierarchical_ProducesThreeStagePhaseList(t *testing.T) {
	cluster := testCluster()
	dims := []int{2, 2, 2}
	topoByOp := map[CollectiveKind][]TopologyKind{
		CollectiveReduceScatter: {TopologyRing, TopologyRing, TopologyRing},
		CollectiveAllReduce:     {TopologyRing, TopologyRing, TopologyRing},
		CollectiveAllGather:     {TopologyRing, TopologyRing, TopologyRing},
	}
	topo := NewTopologyMap(dims, topoByOp)
	gen := NewPhaseGenerator(PhaseGeneratorConfig{
		PreferredChunkBytes: 1 << 20,
		MinChunkBytes:       4096,
		Optimization:        OptimizationHierarchical,
		AlgoSelection: map[CollectiveKind][]AlgorithmKind{
			CollectiveReduceScatter: {AlgoRing, AlgoRing, AlgoRing},
			CollectiveAllReduce:     {AlgoRing, AlgoRing, AlgoRing},
			CollectiveAllGather:     {AlgoRing, AlgoRing, AlgoRing},
		},
	})
	sys := NewSysForTest(NodeID(0), cluster, topo, topoByOp, gen)
	streams := gen.Build(sys, CollectiveAllReduce, 1<<20, ^uint64(0), PriorityNone, PhaseWeightGrad, 0)
	require.NotEmpty(t, streams)
	require.Len(t, streams[0].Phases, 3)
	assert.Equal(t, CollectiveReduceScatter, streams[0].Phases[0].Operation)
	assert.Equal(t, CollectiveAllReduce, streams[0].Phases[1].Operation)
	assert.Equal(t, CollectiveAllGather, streams[0].Phases[2].Operation)
}

// NewSysForTest builds a minimal Sys with its own scheduler, for phasegen
// tests that need a specific dimension layout rather than the uniform
// newTestNodes fixture.
func NewSysForTest(node NodeID, cluster *Cluster, topo *TopologyMap, topoByOp map[CollectiveKind][]TopologyKind, gen *PhaseGenerator) *Sys {
	sys := NewSys(node, cluster, topo, topoByOp, nil, gen, nil, 256*1024, testLogger())
	sys.Scheduler = NewStreamScheduler(topo.Dims, QueueFIFO, 8, 16, 16, sys)
	return sys
}
