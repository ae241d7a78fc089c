package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allRing(n int) []TopologyKind {
	out := make([]TopologyKind, n)
	for i := range out {
		out[i] = TopologyRing
	}
	return out
}

func TestNewTopologyMap_ProductOfDims(t *testing.T) {
	tm := NewTopologyMap([]int{2, 4, 8}, map[CollectiveKind][]TopologyKind{
		CollectiveAllReduce: allRing(3),
	})
	assert.Equal(t, 64, tm.N)
	assert.Len(t, tm.PerOp[CollectiveAllReduce], 3)
}

func TestNewTopologyMap_MismatchedKindCountPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewTopologyMap([]int{2, 4}, map[CollectiveKind][]TopologyKind{
			CollectiveAllReduce: allRing(1),
		})
	})
}

func TestTopologyMap_CoordsAndRankRoundTrip(t *testing.T) {
	tm := NewTopologyMap([]int{2, 4, 8}, nil)
	for rank := 0; rank < tm.N; rank++ {
		coords := tm.Coords(rank)
		assert.Equal(t, rank, tm.Rank(coords))
	}
}

func TestBreakDimension_ProductUnchanged(t *testing.T) {
	tm := NewTopologyMap([]int{8, 8}, map[CollectiveKind][]TopologyKind{
		CollectiveAllReduce: allRing(2),
	})
	before := tm.N
	err := tm.BreakDimension(16, map[CollectiveKind][]TopologyKind{
		CollectiveAllReduce: allRing(2),
	})
	require.NoError(t, err)
	assert.Equal(t, before, productDims(tm.Dims))
	assert.Len(t, tm.Dims, 3)
	assert.Len(t, tm.PerOp[CollectiveAllReduce], 3)
}

func TestBreakDimension_RejectsNonDivisor(t *testing.T) {
	tm := NewTopologyMap([]int{8, 8}, nil)
	err := tm.BreakDimension(5, nil)
	assert.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLogicalTopology_RingNeighbors(t *testing.T) {
	lt := NewLogicalTopology(TopologyRing, 4)
	prev, next := lt.RingNeighbors(0)
	assert.Equal(t, 3, prev)
	assert.Equal(t, 1, next)
}

func TestLogicalTopology_BinaryTreeRootHasNoParent(t *testing.T) {
	lt := NewLogicalTopology(TopologyBinaryTree, 7)
	assert.Equal(t, -1, lt.TreeParent(0))
	assert.NotEmpty(t, lt.TreeChildren(0))
}

func TestLogicalTopology_DoubleBinaryTreeHasMirror(t *testing.T) {
	lt := NewLogicalTopology(TopologyDoubleBinaryTree, 7)
	assert.Equal(t, -1, lt.MirrorParent(6))
}

func TestNewLogicalTopology_UnknownKindPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewLogicalTopology(TopologyKind(99), 4)
	})
}
