package sim

import (
	"github.com/collsim/collsim/sim/membus"
	"github.com/collsim/collsim/sim/network"
	"github.com/sirupsen/logrus"
)

// testLogger returns a logrus.Logger quiet enough not to spam `go test -v`
// output, matching the teacher's own test fixtures that build a
// dedicated logger rather than using the package-level default.
func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// testCluster builds a Cluster over a flat-latency MockBackend, the
// same backend cmd/run.go wires in production.
func testCluster() *Cluster {
	backend := network.NewMockBackend(network.Config{LatencyCycles: 1, BandwidthInvCycles: 0.01})
	return NewCluster(backend, testLogger())
}

// allRingTopoByOp returns a uniform-ring TopologyKind list for every
// operation this package exercises, sized to ndims.
func allRingTopoByOp(ndims int) map[CollectiveKind][]TopologyKind {
	kinds := allRing(ndims)
	return map[CollectiveKind][]TopologyKind{
		CollectiveAllReduce:     kinds,
		CollectiveAllGather:     kinds,
		CollectiveReduceScatter: kinds,
		CollectiveAllToAll:      kinds,
	}
}

// newTestNodes builds n Sys instances sharing one Cluster over a
// single-dimension topology of size n, each with a ring algorithm for
// every collective kind and FIFO admission control wide enough not to
// gate the small scenarios these tests drive.
func newTestNodes(n int) (*Cluster, []*Sys) {
	cluster := testCluster()
	dims := []int{n}
	topoByOp := allRingTopoByOp(1)
	topo := NewTopologyMap(dims, topoByOp)

	genCfg := PhaseGeneratorConfig{
		PreferredChunkBytes: 1 << 20,
		MinChunkBytes:       4096,
		Traversal:           map[CollectiveKind]TraversalKind{},
		AlgoSelection: map[CollectiveKind][]AlgorithmKind{
			CollectiveAllReduce:     {AlgoRing},
			CollectiveAllGather:     {AlgoRing},
			CollectiveReduceScatter: {AlgoRing},
			CollectiveAllToAll:      {AlgoDirect},
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
