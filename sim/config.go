package sim

// SystemConfig groups every key from the system-config file: LogGP
// parameters, per-operation algorithm selection strings, scheduling
// policy, and the optional extensions (pipeline bubble accounting,
// shared-bus contention, NVLS gating).
type SystemConfig struct {
	SchedulingPolicy PriorityPolicy

	// ImplementationByOp is the raw per-dimension algorithm selection
	// string per operation (e.g. "ring_doubleBinaryTree_direct"),
	// parsed by ParseAlgorithmSelectionString before use.
	ImplementationByOp map[CollectiveKind]string

	Optimization CollectiveOptimization

	EndpointDelay       int64   // LogGP o
	Gap                 int64   // LogGP g
	BandwidthInvCycles  float64 // LogGP G, cycles/byte
	LocalReductionDelay int64

	ActiveChunksPerDimension int
	QueueThreshold           int
	MaxRunningStreams        int
	ReadyListThreshold       int

	IntraDimensionScheduling map[int]QueuePolicyKind // per physical dimension
	InterDimensionScheduling TraversalKind

	BoostMode        bool
	ModelSharedBus   bool
	RendezvousThreshold int64

	NVLSEnable bool

	Pipeline PipelineConfig
}

// AlgoCost derives the LogGP cost parameters shared by every
// CollectiveAlgorithm variant from this system config.
func (c *SystemConfig) AlgoCost() AlgoCost {
	return AlgoCost{
		LocalReductionDelay: c.LocalReductionDelay,
		EndpointDelay:       c.EndpointDelay,
		Gap:                 c.Gap,
		BandwidthInvCycles:  c.BandwidthInvCycles,
	}
}

// AlgoSelection parses every operation's configured implementation
// string into a per-dimension AlgorithmKind list.
func (c *SystemConfig) AlgoSelection() map[CollectiveKind][]AlgorithmKind {
	out := make(map[CollectiveKind][]AlgorithmKind, len(c.ImplementationByOp))
	for op, s := range c.ImplementationByOp {
		out[op] = ParseAlgorithmSelectionString(s)
	}
	return out
}

// DefaultSystemConfig returns baseline parameters a caller can override
// from a parsed config file. ParseSystemConfig keeps these defaults for
// every field it does not set, except ImplementationByOp, which it
// starts empty so that only the file's *-implementation keys appear.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		SchedulingPolicy: PriorityNone,
		ImplementationByOp: map[CollectiveKind]string{
			CollectiveAllReduce:     "ring",
			CollectiveAllGather:     "ring",
			CollectiveReduceScatter: "ring",
			CollectiveAllToAll:      "direct",
		},
		Optimization:             OptimizationBaseline,
		EndpointDelay:            0,
		Gap:                      0,
		BandwidthInvCycles:       1.0 / 100.0,
		LocalReductionDelay:      0,
		ActiveChunksPerDimension: 1,
		QueueThreshold:           1,
		MaxRunningStreams:        4,
		ReadyListThreshold:       4,
		InterDimensionScheduling: TraversalForward,
		RendezvousThreshold:      256 * 1024,
	}
}

// PipelineConfig gates the optional 1F1B pipeline-parallelism bubble
// accounting extension. Disabled leaves pipeline bubbles untracked.
type PipelineConfig struct {
	Enabled        bool
	Stages         int
	StageIndex     int
	NumMicrobatches int
}
