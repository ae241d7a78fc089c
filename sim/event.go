package sim

import "container/heap"

// EventType classifies events for deterministic tie-breaking in the
// EventQueue (same tick, distinct types must still resolve to a fixed
// order across runs).
type EventType int

const (
	EventWorkloadWait EventType = iota
	EventPacketSent
	EventPacketReceived
	EventStreamAdvance
	EventCriticalPathCheck
	EventAlgoStep
)

// eventTypePriority fixes the tie-break order for events sharing a tick:
// compute-delay resumption is serviced before network completions, which
// are serviced before stream bookkeeping.
var eventTypePriority = map[EventType]int{
	EventWorkloadWait:      0,
	EventPacketSent:        1,
	EventPacketReceived:    2,
	EventStreamAdvance:     3,
	EventCriticalPathCheck: 4,
	EventAlgoStep:          1, // interleaves with packet completions, same as a send/recv continuation
}

// Event is one timestamped unit of work re-entering the simulation. The
// WorkloadFSM and Sys are driven entirely by Execute callbacks; neither
// introduces a stackful coroutine (Design Note §9).
type Event interface {
	Timestamp() int64
	EventID() uint64
	Type() EventType
	Execute(sys *Sys)
}

// BaseEvent provides the fields common to every concrete event type.
type BaseEvent struct {
	timestamp int64
	eventID   uint64
	eventType EventType
}

func newBaseEvent(timestamp int64, eventType EventType, eventID uint64) BaseEvent {
	return BaseEvent{timestamp: timestamp, eventID: eventID, eventType: eventType}
}

func (e *BaseEvent) Timestamp() int64 { return e.timestamp }
func (e *BaseEvent) EventID() uint64  { return e.eventID }
func (e *BaseEvent) Type() EventType  { return e.eventType }

// EventQueue implements heap.Interface and orders events by
// (timestamp, type priority, event ID) for fully deterministic replay.
type EventQueue struct {
	events []Event
}

// NewEventQueue creates an empty, heap-initialized EventQueue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{events: make([]Event, 0)}
	heap.Init(q)
	return q
}

func (q *EventQueue) Len() int { return len(q.events) }

func (q *EventQueue) Less(i, j int) bool {
	ei, ej := q.events[i], q.events[j]
	if ei.Timestamp() != ej.Timestamp() {
		return ei.Timestamp() < ej.Timestamp()
	}
	if pi, pj := eventTypePriority[ei.Type()], eventTypePriority[ej.Type()]; pi != pj {
		return pi < pj
	}
	return ei.EventID() < ej.EventID()
}

func (q *EventQueue) Swap(i, j int) { q.events[i], q.events[j] = q.events[j], q.events[i] }

func (q *EventQueue) Push(x any) { q.events = append(q.events, x.(Event)) }

func (q *EventQueue) Pop() any {
	old := q.events
	n := len(old)
	item := old[n-1]
	q.events = old[0 : n-1]
	return item
}

// Schedule adds an event to the queue.
func (q *EventQueue) Schedule(e Event) { heap.Push(q, e) }

// PopNext removes and returns the next event, or nil if the queue is empty.
func (q *EventQueue) PopNext() Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(Event)
}

// Peek returns the next event without removing it.
func (q *EventQueue) Peek() Event {
	if q.Len() == 0 {
		return nil
	}
	return q.events[0]
}

// WorkloadWaitEvent resumes the WorkloadFSM after a compute-delay
// counter elapses.
type WorkloadWaitEvent struct {
	BaseEvent
	NodeID NodeID
}

func NewWorkloadWaitEvent(timestamp int64, eventID uint64, node NodeID) *WorkloadWaitEvent {
	return &WorkloadWaitEvent{BaseEvent: newBaseEvent(timestamp, EventWorkloadWait, eventID), NodeID: node}
}

func (e *WorkloadWaitEvent) Execute(sys *Sys) { sys.FSM.tick(e) }

// PacketSentEvent notifies the sending node's Sys that a send on
// (dst, tag) has left the wire, allowing the next queued send on that
// key to be forwarded. Owner is the sending node, Dst the remote peer.
type PacketSentEvent struct {
	BaseEvent
	Owner NodeID
	Dst   NodeID
	Tag   int64
}

func NewPacketSentEvent(timestamp int64, eventID uint64, owner, dst NodeID, tag int64) *PacketSentEvent {
	return &PacketSentEvent{BaseEvent: newBaseEvent(timestamp, EventPacketSent, eventID), Owner: owner, Dst: dst, Tag: tag}
}

func (e *PacketSentEvent) Execute(sys *Sys) { sys.onPacketSent(e.Dst, e.Tag) }

// PacketReceivedEvent notifies the receiving node's Sys that bytes from
// (src, tag) have arrived, advancing the owning CollectivePhase. Owner
// is the receiving node, Src the remote peer.
type PacketReceivedEvent struct {
	BaseEvent
	Owner NodeID
	Src   NodeID
	Tag   int64
	Bytes int64
}

func NewPacketReceivedEvent(timestamp int64, eventID uint64, owner, src NodeID, tag int64, bytes int64) *PacketReceivedEvent {
	return &PacketReceivedEvent{BaseEvent: newBaseEvent(timestamp, EventPacketReceived, eventID), Owner: owner, Src: src, Tag: tag, Bytes: bytes}
}

func (e *PacketReceivedEvent) Execute(sys *Sys) { sys.onPacketReceived(e.Src, e.Tag, e.Bytes) }

// StreamAdvanceEvent drives a stream's cursor to its next phase once the
// current phase's algorithm signals completion.
type StreamAdvanceEvent struct {
	BaseEvent
	Owner  NodeID
	Stream StreamHandle
}

func NewStreamAdvanceEvent(timestamp int64, eventID uint64, owner NodeID, stream StreamHandle) *StreamAdvanceEvent {
	return &StreamAdvanceEvent{BaseEvent: newBaseEvent(timestamp, EventStreamAdvance, eventID), Owner: owner, Stream: stream}
}

func (e *StreamAdvanceEvent) Execute(sys *Sys) { sys.advanceStream(e.Stream, e.Timestamp()) }

// CallbackEvent wraps an arbitrary continuation. Used by the
// CollectiveAlgorithm variants to schedule internal step timers (local
// reduction delay, memory-bus charges) without growing a bespoke event
// type per algorithm.
type CallbackEvent struct {
	BaseEvent
	Owner NodeID
	fn    func(sys *Sys, now int64)
}

func NewCallbackEvent(timestamp int64, eventID uint64, owner NodeID, fn func(sys *Sys, now int64)) *CallbackEvent {
	return &CallbackEvent{BaseEvent: newBaseEvent(timestamp, EventAlgoStep, eventID), Owner: owner, fn: fn}
}

func (e *CallbackEvent) Execute(sys *Sys) { e.fn(sys, e.Timestamp()) }

// ownedEvent reports which node's Sys must handle an event; the Cluster run
// loop dispatches Execute against that node's Sys only.
type ownedEvent interface {
	OwnerNode() NodeID
}

func (e *WorkloadWaitEvent) OwnerNode() NodeID     { return e.NodeID }
func (e *PacketSentEvent) OwnerNode() NodeID       { return e.Owner }
func (e *PacketReceivedEvent) OwnerNode() NodeID   { return e.Owner }
func (e *StreamAdvanceEvent) OwnerNode() NodeID    { return e.Owner }
func (e *CallbackEvent) OwnerNode() NodeID         { return e.Owner }
