// Package sim implements the per-node simulation core of a distributed
// deep-learning training simulator: a workload finite-state machine,
// a collective-phase generator, a per-node stream scheduler, and the
// collective-algorithm variants (Ring, HalvingDoubling, DoubleBinaryTree,
// AllToAllDirect, NcclFlowModel) they drive.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - event.go: the timestamped priority queue and event types that
//     drive the simulation (WorkloadWait, PacketSent, PacketReceived,
//     StreamAdvance, Callback)
//   - sys.go: Cluster (the shared event queue and network backend) and
//     Sys (one per node: FSM, scheduler, phase generator, send/recv
//     bookkeeping)
//   - fsm.go: WorkloadFSM, the per-node training-iteration walk
//
// # Architecture
//
// Every node in the simulated cluster runs its own Sys, each with an
// independent WorkloadFSM, StreamScheduler, and PhaseGenerator; a single
// Cluster owns the shared EventQueue and network.Backend and routes each
// popped event to its owning node's Sys via the ownedEvent interface.
//
// Supporting concerns live in sub-packages:
//   - sim/network/: packet-level transfer delay
//   - sim/membus/: local memory-bus read/write delay
//   - sim/workload/: workload and system-config file parsing
//   - sim/trace/: per-stream/per-phase decision trace recording
//   - sim/report/: summary and per-dimension utilization CSV writers
//
// # Key Interfaces
//
//   - CollectiveAlgorithm: drives one CollectivePhase to completion
//     given the phase's topology and byte size
//   - TopologyMap / LogicalTopology: per-operation dimension assignment
//     and neighbor/tree-shape queries
//   - network.Backend: packet transfer delay given (src, dst, bytes)
//   - membus.Bus: local read/write delay given a byte count
package sim
