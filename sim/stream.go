package sim

// StreamHandle is a small integer handle into Sys's stream arena.
type StreamHandle int

// PhaseHandle is a small integer handle into Sys's phase arena.
type PhaseHandle int

// StreamState is the lifecycle of one chunk-stream.
type StreamState int

const (
	StreamCreated StreamState = iota
	StreamReady
	StreamExecuting
	StreamFinished
)

// PriorityPolicy selects how a newly issued collective's streams are
// ordered against others already in a dimension's queue. None means "use the default FIFO insertion order."
type PriorityPolicy int

const (
	PriorityNone PriorityPolicy = iota
	PriorityFIFO
	PriorityLIFO
	PriorityHighest
)

// priorityCounter hands out monotonically increasing sequence numbers
// used to turn a PriorityPolicy into a totally ordered priority value:
// LIFO gets an increasing counter (later issuance sorts first), FIFO a
// decreasing one (earlier issuance sorts first), and Highest a sentinel
// that always sorts ahead of both.
type priorityCounter struct {
	next int64
}

const highestPrioritySentinel = int64(1) << 62

func (c *priorityCounter) next_() int64 {
	c.next++
	return c.next
}

// assignPriority computes the totally ordered priority value for a
// newly created stream under the given policy.
func (c *priorityCounter) assignPriority(policy PriorityPolicy) int64 {
	switch policy {
	case PriorityLIFO:
		return c.next_()
	case PriorityFIFO:
		return -c.next_()
	case PriorityHighest:
		return highestPrioritySentinel
	case PriorityNone:
		return -c.next_() // default insertion order behaves like FIFO
	default:
		panic(&ConfigError{Key: "scheduling-policy", Reason: "unknown priority policy"})
	}
}

// CollectivePhase is one single-dimension step of a collective: which
// dimension's queue it belongs to, the logical operation, the algorithm
// instance driving it, and the node set it runs over. Owned by exactly
// one stream at a time; consumed (detached) when the stream advances
// past it.
type CollectivePhase struct {
	Handle        PhaseHandle
	Dim           int
	Operation     CollectiveKind
	Algorithm     CollectiveAlgorithm
	InvolvedNodes []NodeID
	Bytes         int64

	// Owner is the stream this phase currently belongs to. Set once the
	// owning Stream is constructed; used by Sys to route a completed
	// phase back to its stream's cursor (sys.onPhaseComplete).
	Owner StreamHandle
}

// Stream is a chunk together with its ordered list of phases and a
// cursor into that list. Priority and "initialized" status
// come from the scheduling policy in effect when it was created.
type Stream struct {
	Handle  StreamHandle
	Batch   StreamBatchHandle
	Phases  []*CollectivePhase
	cursor  int // steps_finished
	size    int64
	Priority int64
	state   StreamState

	// initialized is set once the stream's head phase has had Run()
	// invoked by the scheduler; initialized streams are never overtaken
	// by newly inserted streams of equal priority.
	initialized bool

	dim   int // queue location: which dimension's PerDimensionQueue owns it
	queuePos int // position within that queue, maintained by the scheduler
}

// NewStream allocates a Stream over the given ordered phase list.
func NewStream(handle StreamHandle, batch StreamBatchHandle, phases []*CollectivePhase, size int64, priority int64) *Stream {
	dim := -1
	if len(phases) > 0 {
		dim = phases[0].Dim
	}
	return &Stream{
		Handle:   handle,
		Batch:    batch,
		Phases:   phases,
		size:     size,
		Priority: priority,
		state:    StreamCreated,
		dim:      dim,
	}
}

// InitialDataSize is the chunk's byte size, used by SmallestFirst
// ordering and by the LocalBWAware bandwidth-conservation property.
func (s *Stream) InitialDataSize() int64 { return s.size }

// RemainingPhases is the count of phases not yet finished, used by
// LessRemainingPhaseFirst ordering.
func (s *Stream) RemainingPhases() int { return len(s.Phases) - s.cursor }

// CurrentPhase returns the phase at the cursor, or nil if the stream has
// finished all its phases.
func (s *Stream) CurrentPhase() *CollectivePhase {
	if s.cursor >= len(s.Phases) {
		return nil
	}
	return s.Phases[s.cursor]
}

// Advance moves the cursor past the current phase. Phases execute
// strictly in list order; the cursor is monotonic and
// terminates at len(Phases).
func (s *Stream) Advance() {
	s.cursor++
	if s.cursor >= len(s.Phases) {
		s.state = StreamFinished
	}
}

// Finished reports whether every phase of this stream has completed.
func (s *Stream) Finished() bool { return s.state == StreamFinished }

// MarkInitialized records that the scheduler has called Run() on the
// stream's head phase.
func (s *Stream) MarkInitialized() {
	s.initialized = true
	s.state = StreamExecuting
}

// Initialized reports whether the scheduler has started this stream.
func (s *Stream) Initialized() bool { return s.initialized }
