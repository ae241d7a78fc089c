// Package trace provides decision-trace recording for collective-
// communication simulation analysis. This package has no dependency on
// sim/ — it stores plain data types keyed by string labels so it can be
// imported without pulling in the simulation kernel.
package trace

// StreamRecord captures one chunk-stream's lifecycle: which node and
// dimension it ran on, how many bytes it carried, when it entered the
// scheduler's ready list, and when it finished its last phase.
type StreamRecord struct {
	StreamID   string
	Node       int
	Dim        int
	Priority   string // priority label; sim.Sys leaves it empty
	ChunkBytes int64
	EnqueuedAt int64
	FinishedAt int64
}

// PhaseRecord captures one CollectivePhase's lifecycle: the operation
// and algorithm it ran with, the dimension and participating nodes, and
// its start/finish ticks.
type PhaseRecord struct {
	PhaseID   string
	Operation string // CollectiveKind.String()
	Algorithm string // algorithm label; sim.Sys leaves it empty
	Dim       int
	Nodes     []int
	Bytes     int64
	StartedAt int64
	FinishedAt int64
}
