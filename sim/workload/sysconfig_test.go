package workload

import (
	"strings"
	"testing"

	sim "github.com/collsim/collsim/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSystemConfig_EmptyFileReturnsDefaults(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader(""))
	require.NoError(t, err)
	def := sim.DefaultSystemConfig()
	assert.Equal(t, def.SchedulingPolicy, cfg.SchedulingPolicy)
	assert.Equal(t, def.Optimization, cfg.Optimization)
	assert.Equal(t, def.MaxRunningStreams, cfg.MaxRunningStreams)
}

func TestParseSystemConfig_SkipsBlankLinesAndComments(t *testing.T) {
	data := "\n# a comment\n   \nscheduling-policy=fifo\n"
	cfg, err := ParseSystemConfig(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, sim.PriorityFIFO, cfg.SchedulingPolicy)
}

func TestParseSystemConfig_MalformedLineIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("scheduling-policy fifo\n"))
	require.Error(t, err)
	var cerr *sim.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestParseSystemConfig_UnknownKeyIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("bogus-key=1\n"))
	require.Error(t, err)
	var cerr *sim.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bogus-key", cerr.Key)
}

func TestParseSystemConfig_ImplementationKeysWireIntoMap(t *testing.T) {
	data := "allreduce-implementation=ring\n" +
		"allgather-implementation=doubleBinaryTree\n" +
		"reducescatter-implementation=ring\n" +
		"alltoall-implementation=direct\n"
	cfg, err := ParseSystemConfig(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "ring", cfg.ImplementationByOp[sim.CollectiveAllReduce])
	assert.Equal(t, "doubleBinaryTree", cfg.ImplementationByOp[sim.CollectiveAllGather])
	assert.Equal(t, "ring", cfg.ImplementationByOp[sim.CollectiveReduceScatter])
	assert.Equal(t, "direct", cfg.ImplementationByOp[sim.CollectiveAllToAll])
}

func TestParseSystemConfig_SchedulingPolicyValues(t *testing.T) {
	cases := map[string]sim.PriorityPolicy{
		"none": sim.PriorityNone, "fifo": sim.PriorityFIFO,
		"lifo": sim.PriorityLIFO, "highest": sim.PriorityHighest,
	}
	for in, want := range cases {
		cfg, err := ParseSystemConfig(strings.NewReader("scheduling-policy=" + in + "\n"))
		require.NoError(t, err)
		assert.Equal(t, want, cfg.SchedulingPolicy)
	}
}

func TestParseSystemConfig_SchedulingPolicyInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("scheduling-policy=bogus\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_CollectiveOptimizationValues(t *testing.T) {
	cases := map[string]sim.CollectiveOptimization{
		"baseline": sim.OptimizationBaseline, "localBWAware": sim.OptimizationLocalBWAware,
		"hierarchical": sim.OptimizationHierarchical,
	}
	for in, want := range cases {
		cfg, err := ParseSystemConfig(strings.NewReader("collective-optimization=" + in + "\n"))
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Optimization)
	}
}

func TestParseSystemConfig_CollectiveOptimizationInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("collective-optimization=bogus\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_EndpointDelay(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("endpoint-delay=42\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.EndpointDelay)
}

func TestParseSystemConfig_EndpointDelayInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("endpoint-delay=notanumber\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_LocalReductionDelay(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("local-reduction-delay=7\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.LocalReductionDelay)
}

func TestParseSystemConfig_ActiveChunksPerDimension(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("active-chunks-per-dimension=3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ActiveChunksPerDimension)
}

func TestParseSystemConfig_ActiveChunksPerDimensionInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("active-chunks-per-dimension=x\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_LKeyValidatedButNotStored(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("L=500\n"))
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultSystemConfig().EndpointDelay, cfg.EndpointDelay)
}

func TestParseSystemConfig_LKeyInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("L=notanumber\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_OKeySetsEndpointDelay(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("o=99\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.EndpointDelay)
}

func TestParseSystemConfig_GKeySetsGap(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("g=12\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), cfg.Gap)
}

func TestParseSystemConfig_UppercaseGSetsBandwidthInvCycles(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("G=0.02\n"))
	require.NoError(t, err)
	assert.InDelta(t, 0.02, cfg.BandwidthInvCycles, 1e-9)
}

func TestParseSystemConfig_UppercaseGInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("G=notafloat\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_IntraDimensionScheduling(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("intra-dimension-scheduling=smallestFirst\n"))
	require.NoError(t, err)
	require.NotNil(t, cfg.IntraDimensionScheduling)
	assert.Equal(t, sim.QueueSmallestFirst, cfg.IntraDimensionScheduling[-1])
}

func TestParseSystemConfig_IntraDimensionSchedulingInvalidPanics(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = ParseSystemConfig(strings.NewReader("intra-dimension-scheduling=bogus\n"))
	})
}

func TestParseSystemConfig_InterDimensionSchedulingValues(t *testing.T) {
	cases := map[string]sim.TraversalKind{
		"forward": sim.TraversalForward, "reverse": sim.TraversalReverse,
		"roundRobin": sim.TraversalRoundRobin, "offlineGreedy": sim.TraversalOfflineGreedy,
		"offlineGreedyFlex": sim.TraversalOfflineGreedyFlex,
	}
	for in, want := range cases {
		cfg, err := ParseSystemConfig(strings.NewReader("inter-dimension-scheduling=" + in + "\n"))
		require.NoError(t, err)
		assert.Equal(t, want, cfg.InterDimensionScheduling)
	}
}

func TestParseSystemConfig_InterDimensionSchedulingInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("inter-dimension-scheduling=bogus\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_BoostMode(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("boost-mode=true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.BoostMode)
}

func TestParseSystemConfig_BoostModeInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("boost-mode=maybe\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_ModelSharedBus(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("model-shared-bus=true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.ModelSharedBus)
}

func TestParseSystemConfig_RendezvousThreshold(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("rendezvous-threshold=65536\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(65536), cfg.RendezvousThreshold)
}

func TestParseSystemConfig_QueueThreshold(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("queue-threshold=2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.QueueThreshold)
}

func TestParseSystemConfig_MaxRunningStreams(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("max-running-streams=16\n"))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxRunningStreams)
}

func TestParseSystemConfig_ReadyListThreshold(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("ready-list-threshold=8\n"))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.ReadyListThreshold)
}

func TestParseSystemConfig_NVLSEnable(t *testing.T) {
	cfg, err := ParseSystemConfig(strings.NewReader("nvls-enable=true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.NVLSEnable)
}

func TestParseSystemConfig_NVLSEnableInvalidIsFatal(t *testing.T) {
	_, err := ParseSystemConfig(strings.NewReader("nvls-enable=nope\n"))
	require.Error(t, err)
}

func TestParseSystemConfig_MultipleKeysCombine(t *testing.T) {
	data := "scheduling-policy=lifo\n" +
		"collective-optimization=hierarchical\n" +
		"max-running-streams=32\n" +
		"allreduce-implementation=doubleBinaryTree\n"
	cfg, err := ParseSystemConfig(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, sim.PriorityLIFO, cfg.SchedulingPolicy)
	assert.Equal(t, sim.OptimizationHierarchical, cfg.Optimization)
	assert.Equal(t, 32, cfg.MaxRunningStreams)
	assert.Equal(t, "doubleBinaryTree", cfg.ImplementationByOp[sim.CollectiveAllReduce])
}
