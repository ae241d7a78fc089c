package sim

import "github.com/google/uuid"

// GroupKind names the parallelism group a collective runs over.
type GroupKind int

const (
	GroupTP GroupKind = iota
	GroupDP
	GroupEP
	GroupDPEP
	GroupPP
)

func (g GroupKind) String() string {
	switch g {
	case GroupTP:
		return "TP"
	case GroupDP:
		return "DP"
	case GroupEP:
		return "EP"
	case GroupDPEP:
		return "DP_EP"
	case GroupPP:
		return "PP"
	default:
		return "UNKNOWN"
	}
}

// LayerPhase is one of the three compute/communication phases a layer
// walks through per training iteration.
type LayerPhase int

const (
	PhaseForward LayerPhase = iota
	PhaseInputGrad
	PhaseWeightGrad
)

func (p LayerPhase) String() string {
	switch p {
	case PhaseForward:
		return "forward"
	case PhaseInputGrad:
		return "input-grad"
	case PhaseWeightGrad:
		return "weight-grad"
	default:
		return "unknown"
	}
}

// PhaseSpec is the static, per-phase configuration of one layer: its
// compute cost and the collective it issues (if any).
type PhaseSpec struct {
	ComputeCycles int64
	Collective    CollectiveKind
	InvolvedDims  uint64 // bitmask over physical dimensions
	Bytes         int64
	Group         GroupKind
}

// BarrierKind controls whether the FSM blocks on a StreamBatch's
// completion before advancing, or advances immediately and checks later.
type BarrierKind int

const (
	BarrierBlocking BarrierKind = iota
	BarrierNonBlocking
)

// Layer is one layer of the training iteration. Runtime state
// (outstanding batches, waiting-since timestamps) is mutable; static
// configuration (Phases, flags) is set once at construction.
type Layer struct {
	ID  int
	Dep int // id of the layer this one depends on, or -1

	Phases map[LayerPhase]PhaseSpec

	WeightGradUpdateTime  int64
	IsCheckpoint          bool
	NeedsRecomputeTrigger bool

	// Runtime state: outstanding collectives per phase, keyed by the
	// StreamBatch's handle.
	outstanding map[LayerPhase]map[StreamBatchHandle]*StreamBatch

	// waitingSince records the tick at which the FSM started blocking on
	// this phase's barrier; at most one active waiter per phase.
	waitingSince map[LayerPhase]int64

	// Stats accumulator; the FSM does not write it (exposed-communication
	// time is recorded in LayerMetrics.ExposedCommTicks).
	ExposedCommTicks map[LayerPhase]int64
}

// NewLayer allocates a Layer with empty runtime maps.
func NewLayer(id, dep int) *Layer {
	return &Layer{
		ID:               id,
		Dep:              dep,
		Phases:           make(map[LayerPhase]PhaseSpec),
		outstanding:      make(map[LayerPhase]map[StreamBatchHandle]*StreamBatch),
		waitingSince:     make(map[LayerPhase]int64),
		ExposedCommTicks: make(map[LayerPhase]int64),
	}
}

// Clone returns an independent copy of l with fresh runtime maps,
// sharing its static Phases configuration. Used to give every node its
// own mutable Layer instances from one parsed workload file's template.
func (l *Layer) Clone() *Layer {
	c := NewLayer(l.ID, l.Dep)
	for phase, spec := range l.Phases {
		c.Phases[phase] = spec
	}
	c.WeightGradUpdateTime = l.WeightGradUpdateTime
	c.IsCheckpoint = l.IsCheckpoint
	c.NeedsRecomputeTrigger = l.NeedsRecomputeTrigger
	return c
}

// MarkWaitStart records the tick at which the FSM began blocking on a
// phase's barrier.
func (l *Layer) MarkWaitStart(phase LayerPhase, now int64) {
	l.waitingSince[phase] = now
}

// Waiting reports whether a waiter is already marked for phase, so a
// caller re-entering the same blocking check doesn't reset the clock.
func (l *Layer) Waiting(phase LayerPhase) bool {
	_, ok := l.waitingSince[phase]
	return ok
}

// ExposedSince returns the ticks elapsed since MarkWaitStart was last
// called for phase, clearing the waiter so a later call for the same
// phase starts fresh.
func (l *Layer) ExposedSince(phase LayerPhase, now int64) int64 {
	start, ok := l.waitingSince[phase]
	if !ok {
		return 0
	}
	delete(l.waitingSince, phase)
	return now - start
}

// addOutstanding registers a newly issued StreamBatch under a phase.
func (l *Layer) addOutstanding(phase LayerPhase, b *StreamBatch) {
	m, ok := l.outstanding[phase]
	if !ok {
		m = make(map[StreamBatchHandle]*StreamBatch)
		l.outstanding[phase] = m
	}
	m[b.Handle] = b
}

// removeOutstanding drops a completed StreamBatch from a phase's map.
func (l *Layer) removeOutstanding(phase LayerPhase, h StreamBatchHandle) {
	if m, ok := l.outstanding[phase]; ok {
		delete(m, h)
	}
}

// PhaseIsComplete reports whether a phase's outstanding-batch map is
// empty, i.e. every collective issued for that phase has finished. The
// Blocking-barrier invariant requires the FSM to hold at a
// layer until this is true.
func (l *Layer) PhaseIsComplete(phase LayerPhase) bool {
	return len(l.outstanding[phase]) == 0
}

// StreamBatchHandle is a small integer handle into Sys's batch arena.
type StreamBatchHandle int

// BatchNotifier is the back-reference fired when a StreamBatch finishes:
// the owning layer and which phase's barrier it should unblock.
type BatchNotifier struct {
	Layer *Layer
	Phase LayerPhase
}

// StreamBatch is the set of chunk-streams generated from one collective
// issuance. It is destroyed once every chunk has finished.
type StreamBatch struct {
	Handle   StreamBatchHandle
	UUID     uuid.UUID
	Created  int64
	Finish   int64 // updated on completion
	Notifier *BatchNotifier

	liveStreams int // count of chunk-streams not yet finished
	active      bool
}

// NewStreamBatch allocates a StreamBatch with the given initial live
// chunk count. An inactive batch (liveStreams == 0) is already
// complete — used when a collective has zero participating dimensions.
func NewStreamBatch(handle StreamBatchHandle, created int64, liveStreams int, notifier *BatchNotifier) *StreamBatch {
	b := &StreamBatch{
		Handle:      handle,
		UUID:        uuid.New(),
		Created:     created,
		Notifier:    notifier,
		liveStreams: liveStreams,
		active:      liveStreams > 0,
	}
	return b
}

// OnChunkFinished decrements the live count; returns true if this was
// the last outstanding chunk (the batch is now fully finished).
func (b *StreamBatch) OnChunkFinished(now int64) bool {
	b.liveStreams--
	if b.liveStreams <= 0 {
		b.Finish = now
		b.active = false
		return true
	}
	return false
}

// Done reports whether the batch has no remaining live chunks.
func (b *StreamBatch) Done() bool { return !b.active }
