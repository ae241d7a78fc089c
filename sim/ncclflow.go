package sim

import (
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// FlowID identifies one SingleFlow within a FlowModel.
type FlowID int

// SingleFlow is one point-to-point transfer in an NCCL-accurate flow
// plan. A flow becomes eligible
// to run only once every parent has completed.
type SingleFlow struct {
	ID        FlowID
	Src, Dst  int
	Bytes     int64
	Channel   int
	Parents   []FlowID
	completed bool
}

// FlowModel is a directed acyclic graph of SingleFlows scoped to one
// rank's participation in a phase. Order records
// insertion order for deterministic iteration.
type FlowModel struct {
	Flows map[FlowID]*SingleFlow
	Order []FlowID
}

// NewFlowModel constructs an empty FlowModel.
func NewFlowModel() *FlowModel {
	return &FlowModel{Flows: make(map[FlowID]*SingleFlow)}
}

// AddFlow appends a flow to the model.
func (fm *FlowModel) AddFlow(f *SingleFlow) {
	fm.Flows[f.ID] = f
	fm.Order = append(fm.Order, f.ID)
}

// Eligible reports whether every parent of id has completed.
func (fm *FlowModel) Eligible(id FlowID) bool {
	for _, p := range fm.Flows[id].Parents {
		if pf, ok := fm.Flows[p]; ok && !pf.completed {
			return false
		}
	}
	return true
}

// MarkCompleted records a flow as finished.
func (fm *FlowModel) MarkCompleted(id FlowID) {
	if f, ok := fm.Flows[id]; ok {
		f.completed = true
	}
}

// AllCompleted reports whether every flow in the model has completed.
func (fm *FlowModel) AllCompleted() bool {
	for _, f := range fm.Flows {
		if !f.completed {
			return false
		}
	}
	return true
}

// Validate checks the flow graph has no cycles, via gonum's topological sort.
func (fm *FlowModel) Validate() error {
	g := simple.NewDirectedGraph()
	for id := range fm.Flows {
		g.AddNode(simple.Node(int64(id)))
	}
	for id, f := range fm.Flows {
		for _, p := range f.Parents {
			g.SetEdge(simple.Edge{F: simple.Node(int64(p)), T: simple.Node(int64(id))})
		}
	}
	if _, err := topo.Sort(g); err != nil {
		return &ConfigError{Key: "nccl-flow-plan", Reason: "flow DAG contains a cycle"}
	}
	return nil
}
