package sim

import (
	"fmt"

	"github.com/collsim/collsim/sim/membus"
	"github.com/collsim/collsim/sim/network"
	"github.com/collsim/collsim/sim/trace"
	"github.com/sirupsen/logrus"
)

// rendezvousOffset distinguishes a rendezvous control message's tag from
// its real payload's tag on the wire.
const rendezvousOffset = int64(500_000_000)

// rendezvousControlBytes is the fixed size of a rendezvous control
// message.
const rendezvousControlBytes = int64(8192)

// Cluster is the process-wide context shared by every node's Sys: the
// single EventQueue, the network backend, the node registry, and the
// critical section guarding them for the optional parallel backend.
type Cluster struct {
	Queue       *EventQueue
	Backend     network.Backend
	Nodes       *nodeRegistry
	Log         *logrus.Logger
	crit        criticalSection
	now         int64
	nextEventID uint64
	sysByNode   map[NodeID]*Sys
}

// NewCluster constructs an empty Cluster over the given network backend.
func NewCluster(backend network.Backend, log *logrus.Logger) *Cluster {
	return &Cluster{
		Queue:     NewEventQueue(),
		Backend:   backend,
		Nodes:     newNodeRegistry(),
		Log:       log,
		sysByNode: make(map[NodeID]*Sys),
	}
}

func (c *Cluster) attach(sys *Sys) { c.sysByNode[sys.Node] = sys }

func (c *Cluster) nextEventID_() uint64 {
	c.nextEventID++
	return c.nextEventID
}

// schedule pushes an event under the critical section, a no-op spin for
// the default single-threaded backend but required correctness for the
// optional parallel one.
func (c *Cluster) schedule(e Event) {
	c.crit.Acquire()
	defer c.crit.Release()
	c.Queue.Schedule(e)
}

// Now returns the clock value of the event currently being executed.
func (c *Cluster) Now() int64 { return c.now }

// Run drains the event queue to completion, advancing the shared clock
// to each popped event's timestamp and dispatching it to its owning
// node's Sys. The kernel itself is single-threaded cooperative: Execute
// never blocks, it always returns promptly having either finished or
// scheduled a future resumption.
func (c *Cluster) Run() {
	for {
		e := c.Queue.PopNext()
		if e == nil {
			return
		}
		c.now = e.Timestamp()
		oe, ok := e.(ownedEvent)
		if !ok {
			continue
		}
		sys := c.sysByNode[oe.OwnerNode()]
		if sys == nil {
			continue
		}
		e.Execute(sys)
	}
}

type sendKey struct {
	dst NodeID
	tag int64
}

// queuedSend is one entry in a per-(dst,tag) serialized send FIFO.
type queuedSend struct {
	bytes  int64
	phase  *CollectivePhase  // nil for a rendezvous control message
	onSent func(now int64)   // fires when this entry's PacketSent lands, before phase delivery
}

// Sys is the per-node orchestrator: it owns one node's topology view,
// scheduler, workload FSM, and the send/receive bookkeeping needed to
// serialize same-endpoint sends.
type Sys struct {
	Node     NodeID
	Cluster  *Cluster
	Topology *TopologyMap
	Scheduler *StreamScheduler
	FSM      *WorkloadFSM
	Bus      membus.Bus
	Log      *logrus.Logger

	// Metrics accumulates this node's per-layer compute/exposed-comm
	// totals for the summary CSV report. Nil disables
	// accounting, so tests that don't care about reporting can omit it.
	Metrics *Metrics

	// Trace collects stream/phase lifecycle records for post-run
	// analysis. Nil
	// disables recording with zero overhead beyond the nil check.
	Trace *trace.SimulationTrace

	phaseGen *PhaseGenerator

	// RendezvousThreshold is the message size (bytes) at or above which
	// sim_send prepends a control message.
	RendezvousThreshold int64

	streams map[StreamHandle]*Stream
	phases  map[PhaseHandle]*CollectivePhase
	batches map[StreamBatchHandle]*StreamBatch

	nextStreamHandle StreamHandle
	nextPhaseHandle  PhaseHandle
	nextBatchHandle  StreamBatchHandle

	priority priorityCounter

	pendingSends map[sendKey][]*queuedSend
	inFlightSend map[sendKey]*queuedSend
	sendPhaseByTag map[int64]*CollectivePhase
	recvPhaseByTag map[int64]*CollectivePhase

	topoKindByOp map[CollectiveKind][]TopologyKind

	streamEnqueuedAt map[StreamHandle]int64
	phaseStartedAt   map[PhaseHandle]int64
}

// NewSys constructs a node's orchestrator and attaches it to the shared
// Cluster.
func NewSys(node NodeID, cluster *Cluster, topo *TopologyMap, topoKindByOp map[CollectiveKind][]TopologyKind,
	scheduler *StreamScheduler, gen *PhaseGenerator, bus membus.Bus, rendezvousThreshold int64, log *logrus.Logger) *Sys {
	s := &Sys{
		Node:                node,
		Cluster:             cluster,
		Topology:            topo,
		Scheduler:           scheduler,
		Bus:                 bus,
		Log:                 log,
		phaseGen:            gen,
		RendezvousThreshold: rendezvousThreshold,
		streams:             make(map[StreamHandle]*Stream),
		phases:              make(map[PhaseHandle]*CollectivePhase),
		batches:             make(map[StreamBatchHandle]*StreamBatch),
		pendingSends:        make(map[sendKey][]*queuedSend),
		inFlightSend:        make(map[sendKey]*queuedSend),
		sendPhaseByTag:      make(map[int64]*CollectivePhase),
		recvPhaseByTag:      make(map[int64]*CollectivePhase),
		topoKindByOp:        topoKindByOp,
		streamEnqueuedAt:    make(map[StreamHandle]int64),
		phaseStartedAt:      make(map[PhaseHandle]int64),
	}
	cluster.Nodes.register(&Node{ID: node, Offset: int(node), Topology: topo})
	cluster.attach(s)
	return s
}

func (s *Sys) Now() int64 { return s.Cluster.Now() }

func (s *Sys) newPhaseHandle() PhaseHandle {
	s.nextPhaseHandle++
	return s.nextPhaseHandle
}

func (s *Sys) newStreamHandle() StreamHandle {
	s.nextStreamHandle++
	return s.nextStreamHandle
}

func (s *Sys) newBatchHandle() StreamBatchHandle {
	s.nextBatchHandle++
	return s.nextBatchHandle
}

// registerStream adopts a freshly built Stream into this Sys's arena,
// appends it to the global ready list, and notifies the scheduler.
func (s *Sys) registerStream(st *Stream, now int64) {
	s.streams[st.Handle] = st
	s.streamEnqueuedAt[st.Handle] = now
	s.Scheduler.OnReadyListInsert(st, now)
}

// registerPhase adopts a freshly built CollectivePhase into the arena.
func (s *Sys) registerPhase(p *CollectivePhase) {
	s.phases[p.Handle] = p
}

// GenerateCollective issues a logical collective over the given
// dimensions, producing a StreamBatch the caller (a Layer) can wait on.
// A zero-dimension request returns an already-finished batch.
func (s *Sys) GenerateCollective(kind CollectiveKind, bytes int64, involvedDims uint64, priority PriorityPolicy,
	layerIdx int, notifier *BatchNotifier, now int64) *StreamBatch {
	workloadPhase := PhaseForward
	if notifier != nil {
		workloadPhase = notifier.Phase
	}
	streams := s.phaseGen.Build(s, kind, bytes, involvedDims, priority, workloadPhase, now)

	handle := s.newBatchHandle()
	batch := NewStreamBatch(handle, now, len(streams), notifier)
	s.batches[handle] = batch

	if len(streams) == 0 {
		return batch
	}
	for _, st := range streams {
		st.Batch = handle
		s.registerStream(st, now)
	}
	return batch
}

// runStreamHead satisfies the streamRunner interface consumed by
// StreamScheduler: it starts the algorithm driving a stream's current
// phase.
func (s *Sys) runStreamHead(st *Stream, now int64) {
	phase := st.CurrentPhase()
	if phase == nil {
		s.finishStream(st, now)
		return
	}
	if s.Trace != nil {
		s.phaseStartedAt[phase.Handle] = now
	}
	phase.Algorithm.Run(s, phase, now)
}

// advanceStream moves a stream past its just-completed phase, handing
// it to the next dimension's queue or, if finished, to batch
// completion bookkeeping.
func (s *Sys) advanceStream(handle StreamHandle, now int64) {
	st, ok := s.streams[handle]
	if !ok {
		return
	}
	oldDim := st.dim
	wasFirstPhase := st.cursor == 0
	st.Advance()
	if wasFirstPhase {
		s.Scheduler.NoteAdvancedPastFirstPhase()
	}
	s.Scheduler.QueueFor(oldDim).Remove(handle)
	s.Scheduler.OnStreamRemoved(oldDim, now)

	if st.Finished() {
		s.finishStream(st, now)
		return
	}
	next := st.CurrentPhase()
	st.dim = next.Dim
	s.Scheduler.QueueFor(next.Dim).Insert(st, nil, nil)
	s.Scheduler.OnStreamAdded(next.Dim, now)
}

// finishStream retires a completed stream and, if it was the batch's
// last live chunk, fires the owning layer's notifier.
func (s *Sys) finishStream(st *Stream, now int64) {
	delete(s.streams, st.Handle)
	if s.Trace != nil {
		enqueuedAt := s.streamEnqueuedAt[st.Handle]
		delete(s.streamEnqueuedAt, st.Handle)
		s.Trace.RecordStream(trace.StreamRecord{
			StreamID:   fmt.Sprintf("%d", st.Handle),
			Node:       int(s.Node),
			Dim:        st.dim,
			ChunkBytes: st.InitialDataSize(),
			EnqueuedAt: enqueuedAt,
			FinishedAt: now,
		})
	}
	batch, ok := s.batches[st.Batch]
	if !ok {
		return
	}
	if batch.OnChunkFinished(now) {
		delete(s.batches, batch.Handle)
		if batch.Notifier != nil {
			batch.Notifier.Layer.removeOutstanding(batch.Notifier.Phase, batch.Handle)
			if s.FSM != nil {
				s.FSM.onCollectiveComplete(batch.Notifier.Layer, batch.Notifier.Phase, now)
			}
		}
	}
}

// registerEvent schedules a callback `delay` cycles from now, the
// mechanism compute delays and algorithm step timers both use.
func (s *Sys) registerEvent(delay int64, now int64, fn func(sys *Sys, now int64)) {
	ts := now + delay
	s.Cluster.schedule(NewCallbackEvent(ts, s.Cluster.nextEventID_(), s.Node, fn))
}

// ScheduleCallback is registerEvent's exported form, for callers outside
// this package that need to hook the kernel's clock (the CLI's periodic
// utilization sampler, or a test harness driving the FSM by hand).
func (s *Sys) ScheduleCallback(delay int64, fn func(sys *Sys, now int64)) {
	s.registerEvent(delay, s.Now(), fn)
}

// scheduleStreamAdvance schedules the stream-cursor bookkeeping that
// follows a completed phase.
func (s *Sys) scheduleStreamAdvance(handle StreamHandle, now int64) {
	s.Cluster.schedule(NewStreamAdvanceEvent(now, s.Cluster.nextEventID_(), s.Node, handle))
}

// onPhaseComplete is the signal a CollectiveAlgorithm gives once its
// phase's last step has finished: it hands control back to the owning
// stream's cursor.
func (s *Sys) onPhaseComplete(phase *CollectivePhase, now int64) {
	if s.Trace != nil {
		started := s.phaseStartedAt[phase.Handle]
		delete(s.phaseStartedAt, phase.Handle)
		nodes := make([]int, len(phase.InvolvedNodes))
		for i, n := range phase.InvolvedNodes {
			nodes[i] = int(n)
		}
		s.Trace.RecordPhase(trace.PhaseRecord{
			PhaseID:    fmt.Sprintf("%d", phase.Handle),
			Operation:  phase.Operation.String(),
			Dim:        phase.Dim,
			Nodes:      nodes,
			Bytes:      phase.Bytes,
			StartedAt:  started,
			FinishedAt: now,
		})
	}
	s.scheduleStreamAdvance(phase.Owner, now)
}

// Schedule promotes up to n ready-list streams into their dimension
// queues.
func (s *Sys) Schedule(n int) { s.Scheduler.Schedule(n, s.Now()) }

// simSend sends `bytes` from this node to dst under `tag`, serialized
// against any other outstanding send to the same (dst, tag). phase is
// nil for internal bookkeeping sends, such as the rendezvous control
// message below.
func (s *Sys) simSend(phase *CollectivePhase, dst NodeID, tag int64, bytes int64, now int64) {
	if bytes >= s.RendezvousThreshold && s.RendezvousThreshold > 0 {
		ctrlTag := tag + rendezvousOffset
		s.enqueueSend(dst, ctrlTag, rendezvousControlBytes, nil, now, func(sentAt int64) {
			s.enqueueSend(dst, tag, bytes, phase, sentAt, nil)
		})
		return
	}
	s.enqueueSend(dst, tag, bytes, phase, now, nil)
}

func (s *Sys) enqueueSend(dst NodeID, tag int64, bytes int64, phase *CollectivePhase, now int64, onSent func(int64)) {
	key := sendKey{dst: dst, tag: tag}
	qs := &queuedSend{bytes: bytes, phase: phase, onSent: onSent}
	if _, busy := s.inFlightSend[key]; busy {
		s.pendingSends[key] = append(s.pendingSends[key], qs)
		return
	}
	s.dispatchSend(key, qs, now)
}

func (s *Sys) dispatchSend(key sendKey, qs *queuedSend, now int64) {
	s.inFlightSend[key] = qs
	if qs.phase != nil {
		s.sendPhaseByTag[key.tag] = qs.phase
	}
	delay := s.Cluster.Backend.TransferDelay(int64(s.Node), int64(key.dst), qs.bytes)
	arrival := now + delay
	s.Cluster.schedule(NewPacketSentEvent(arrival, s.Cluster.nextEventID_(), s.Node, key.dst, key.tag))
	s.Cluster.schedule(NewPacketReceivedEvent(arrival, s.Cluster.nextEventID_(), key.dst, s.Node, key.tag, qs.bytes))
}

// onPacketSent is the PacketSent(dst, tag) callback:
// frees the (dst, tag) channel and forwards the next queued send, if any.
func (s *Sys) onPacketSent(dst NodeID, tag int64) {
	key := sendKey{dst: dst, tag: tag}
	qs, ok := s.inFlightSend[key]
	if !ok {
		panic(&DependencyViolation{Reason: fmt.Sprintf("PacketSent for (dst=%d,tag=%d) with no pending entry", dst, tag)})
	}
	delete(s.inFlightSend, key)
	delete(s.sendPhaseByTag, tag)
	now := s.Cluster.Now()

	if qs.onSent != nil {
		qs.onSent(now)
	}
	if qs.phase != nil {
		qs.phase.Algorithm.OnSendComplete(s, qs.phase, tag, now)
	}
	if q := s.pendingSends[key]; len(q) > 0 {
		next := q[0]
		s.pendingSends[key] = q[1:]
		s.dispatchSend(key, next, now)
	}
}

// simRecv registers that `phase`'s algorithm expects a delivery from src
// under tag; sim_recv itself is unserialized, the backend (here, the
// sender's dispatchSend) matches purely by tag.
func (s *Sys) simRecv(phase *CollectivePhase, src NodeID, tag int64) {
	s.recvPhaseByTag[tag] = phase
}

// onPacketReceived is the PacketReceived(src, tag, bytes) callback.
// A tag with no registered phase is a rendezvous control
// message or other bookkeeping transfer the algorithm layer never
// expressed interest in, and is silently absorbed.
func (s *Sys) onPacketReceived(src NodeID, tag int64, bytes int64) {
	phase, ok := s.recvPhaseByTag[tag]
	if !ok {
		return
	}
	delete(s.recvPhaseByTag, tag)
	phase.Algorithm.OnRecvComplete(s, phase, tag, bytes, s.Cluster.Now())
}

// BreakDimension is the one-shot initialization-time topology rebuild
//: it splits a physical dimension so a
// `target`-sized group becomes addressable, then rebuilds this node's
// scheduler queue layout to match the new dimension count.
func (s *Sys) BreakDimension(target int, policies []QueuePolicyKind) error {
	if err := s.Topology.BreakDimension(target, s.topoKindByOp); err != nil {
		return err
	}
	s.Scheduler.RebuildQueues(s.Topology.Dims, policies)
	return nil
}
