package workload

import (
	"strings"
	"testing"

	sim "github.com/collsim/collsim/sim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validTopologyYAML = `
dims: [8, 4]
operations:
  allreduce:
    - {topology: ring, algorithm: ring}
    - {topology: doubleBinaryTree, algorithm: doubleBinaryTree}
  alltoall:
    - {topology: direct, algorithm: direct}
    - {topology: direct, algorithm: direct}
`

func TestParseTopologyFile_ValidFile(t *testing.T) {
	pt, err := ParseTopologyFile(strings.NewReader(validTopologyYAML))
	require.NoError(t, err)
	assert.Equal(t, []int{8, 4}, pt.Dims)

	require.Contains(t, pt.TopoByOp, sim.CollectiveAllReduce)
	assert.Equal(t, []sim.TopologyKind{sim.TopologyRing, sim.TopologyDoubleBinaryTree}, pt.TopoByOp[sim.CollectiveAllReduce])
	assert.Equal(t, "ring_doubleBinaryTree", pt.AlgoStringByOp[sim.CollectiveAllReduce])

	require.Contains(t, pt.TopoByOp, sim.CollectiveAllToAll)
	assert.Equal(t, []sim.TopologyKind{sim.TopologyDirect, sim.TopologyDirect}, pt.TopoByOp[sim.CollectiveAllToAll])
	assert.Equal(t, "direct_direct", pt.AlgoStringByOp[sim.CollectiveAllToAll])
}

func TestParseTopologyFile_InvalidYAML(t *testing.T) {
	_, err := ParseTopologyFile(strings.NewReader("dims: [1, 2\n"))
	require.Error(t, err)
}

func TestParseTopologyFile_MissingDimsIsFatal(t *testing.T) {
	_, err := ParseTopologyFile(strings.NewReader("operations: {}\n"))
	require.Error(t, err)
	var cerr *sim.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "dims", cerr.Key)
}

func TestParseTopologyFile_UnknownOperationIsFatal(t *testing.T) {
	data := "dims: [2]\noperations:\n  bogus:\n    - {topology: ring, algorithm: ring}\n"
	_, err := ParseTopologyFile(strings.NewReader(data))
	require.Error(t, err)
	var cerr *sim.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "operations", cerr.Key)
}

func TestParseTopologyFile_DimensionCountMismatchIsFatal(t *testing.T) {
	data := "dims: [2, 2]\noperations:\n  allreduce:\n    - {topology: ring, algorithm: ring}\n"
	_, err := ParseTopologyFile(strings.NewReader(data))
	require.Error(t, err)
}

func TestParseTopologyFile_UnknownTopologyKindIsFatal(t *testing.T) {
	data := "dims: [2]\noperations:\n  allreduce:\n    - {topology: bogus, algorithm: ring}\n"
	_, err := ParseTopologyFile(strings.NewReader(data))
	require.Error(t, err)
	var cerr *sim.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "topology", cerr.Key)
}

func TestParseTopologyFile_AllTopologyKindNames(t *testing.T) {
	names := map[string]sim.TopologyKind{
		"ring": sim.TopologyRing, "binaryTree": sim.TopologyBinaryTree,
		"doubleBinaryTree": sim.TopologyDoubleBinaryTree, "direct": sim.TopologyDirect,
	}
	for name, want := range names {
		k, err := parseTopologyKind(name)
		require.NoError(t, err)
		assert.Equal(t, want, k)
	}
}
