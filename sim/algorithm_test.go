package sim

import (
	"testing"

	"github.com/collsim/collsim/sim/membus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestNodesWithAlgo mirrors newTestNodes but drives every collective
// with a single named algorithm over a matching single-dimension
// topology, letting each algorithm variant be exercised end to end.
func newTestNodesWithAlgo(n int, algo AlgorithmKind, topoKind TopologyKind) (*Cluster, []*Sys) {
	cluster := testCluster()
	dims := []int{n}
	kinds := []TopologyKind{topoKind}
	topoByOp := map[CollectiveKind][]TopologyKind{
		CollectiveAllReduce:     kinds,
		CollectiveAllGather:     kinds,
		CollectiveReduceScatter: kinds,
		CollectiveAllToAll:      kinds,
	}
	topo := NewTopologyMap(dims, topoByOp)

	genCfg := PhaseGeneratorConfig{
		PreferredChunkBytes: 1 << 20,
		MinChunkBytes:       4096,
		Traversal:           map[CollectiveKind]TraversalKind{},
		AlgoSelection: map[CollectiveKind][]AlgorithmKind{
			CollectiveAllReduce:     {algo},
			CollectiveAllGather:     {algo},
			CollectiveReduceScatter: {algo},
			CollectiveAllToAll:      {algo},
		},
		Cost: AlgoCost{BandwidthInvCycles: 0.01},
	}

	nodes := make([]*Sys, n)
	for i := 0; i < n; i++ {
		gen := NewPhaseGenerator(genCfg)
		sys := NewSys(NodeID(i), cluster, topo, topoByOp, nil, gen, membus.NoBus{}, 256*1024, testLogger())
		sys.Scheduler = NewStreamScheduler(dims, QueueFIFO, 4, 8, 8, sys)
		nodes[i] = sys
	}
	return cluster, nodes
}

func runAllReduceToCompletion(t *testing.T, n int, algo AlgorithmKind, topoKind TopologyKind) {
	t.Helper()
	cluster, nodes := newTestNodesWithAlgo(n, algo, topoKind)
	var batches []*StreamBatch
	for _, sys := range nodes {
		batches = append(batches, sys.GenerateCollective(CollectiveAllReduce, 1<<16, ^uint64(0), PriorityNone, 0, nil, sys.Now()))
	}
	cluster.Run()
	for i, b := range batches {
		assert.Truef(t, b.Done(), "node %d batch never finished", i)
	}
}

func TestAlgorithm_Ring_AllReduceCompletes(t *testing.T) {
	runAllReduceToCompletion(t, 4, AlgoRing, TopologyRing)
}

func TestAlgorithm_HalvingDoubling_AllReduceCompletes(t *testing.T) {
	runAllReduceToCompletion(t, 4, AlgoHalvingDoubling, TopologyRing)
}

func TestAlgorithm_DoubleBinaryTree_AllReduceCompletes(t *testing.T) {
	runAllReduceToCompletion(t, 7, AlgoDoubleBinaryTree, TopologyDoubleBinaryTree)
}

func TestAlgorithm_Direct_AllToAllCompletes(t *testing.T) {
	cluster, nodes := newTestNodesWithAlgo(4, AlgoDirect, TopologyDirect)
	var batches []*StreamBatch
	for _, sys := range nodes {
		batches = append(batches, sys.GenerateCollective(CollectiveAllToAll, 1<<16, ^uint64(0), PriorityNone, 0, nil, sys.Now()))
	}
	cluster.Run()
	for i, b := range batches {
		assert.Truef(t, b.Done(), "node %d batch never finished", i)
	}
}

func TestAlgorithm_NcclFlowModel_AllReduceCompletes(t *testing.T) {
	runAllReduceToCompletion(t, 4, AlgoNcclFlowModel, TopologyRing)
}

func TestRingAlgorithm_SingleNodeHasZeroSteps(t *testing.T) {
	alg := NewRingAlgorithm(CollectiveAllReduce, 1, 0, AlgoCost{}, nil)
	r := alg.(*ringAlgorithm)
	assert.Equal(t, 0, r.totalSteps)
}

func TestRingAlgorithm_StepCountsByOp(t *testing.T) {
	allReduce := NewRingAlgorithm(CollectiveAllReduce, 5, 0, AlgoCost{}, nil).(*ringAlgorithm)
	assert.Equal(t, 2*(5-1), allReduce.totalSteps)

	gather := NewRingAlgorithm(CollectiveAllGather, 5, 0, AlgoCost{}, nil).(*ringAlgorithm)
	assert.Equal(t, 5-1, gather.totalSteps)
}

func TestHalvingDoublingAlgorithm_StepCountsByOp(t *testing.T) {
	allReduce := NewHalvingDoublingAlgorithm(CollectiveAllReduce, 8, 0, AlgoCost{}, nil).(*halvingDoublingAlgorithm)
	assert.Equal(t, 2*3, allReduce.totalSteps)

	scatter := NewHalvingDoublingAlgorithm(CollectiveReduceScatter, 8, 0, AlgoCost{}, nil).(*halvingDoublingAlgorithm)
	assert.Equal(t, 3, scatter.totalSteps)
}

func TestNewAlgorithm_UnknownKindPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewAlgorithm(AlgorithmKind("bogus"), CollectiveAllReduce, 4, 0, AlgoCost{}, nil, nil)
	})
}

func TestNewAlgorithm_DispatchesToEachConstructor(t *testing.T) {
	cases := []AlgorithmKind{AlgoRing, AlgoHalvingDoubling, AlgoDirect}
	for _, k := range cases {
		alg := NewAlgorithm(k, CollectiveAllReduce, 4, 0, AlgoCost{}, nil, nil)
		require.NotNil(t, alg)
		assert.False(t, alg.Done())
	}
}

func TestParseAlgorithmSelectionString_SplitsByDimension(t *testing.T) {
	kinds := ParseAlgorithmSelectionString("ring_doubleBinaryTree_direct")
	assert.Equal(t, []AlgorithmKind{AlgoRing, AlgoDoubleBinaryTree, AlgoDirect}, kinds)
}

func TestParseAlgorithmSelectionString_SingleToken(t *testing.T) {
	kinds := ParseAlgorithmSelectionString("nccl")
	assert.Equal(t, []AlgorithmKind{AlgoNcclFlowModel}, kinds)
}

func TestParseAlgorithmSelectionString_UnknownTokenPanics(t *testing.T) {
	assert.Panics(t, func() { ParseAlgorithmSelectionString("bogus") })
}

func TestAlgoCost_StepCost(t *testing.T) {
	c := AlgoCost{EndpointDelay: 10, Gap: 2, BandwidthInvCycles: 0.5}
	assert.Equal(t, int64(10+2+512), c.StepCost(1024))
}
