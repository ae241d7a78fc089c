package sim

import "fmt"

// QueuePolicyKind is the intra-dimension ordering policy for a
// PerDimensionQueue.
type QueuePolicyKind int

const (
	QueueFIFO QueuePolicyKind = iota
	QueueRG
	QueueSmallestFirst
	QueueLessRemainingPhaseFirst
)

// ParseQueuePolicyKind maps a configuration string to a QueuePolicyKind.
// Panics (ConfigError) on an unrecognized name.
func ParseQueuePolicyKind(name string) QueuePolicyKind {
	switch name {
	case "fifo", "FIFO":
		return QueueFIFO
	case "rg", "RG":
		return QueueRG
	case "smallestFirst", "SmallestFirst":
		return QueueSmallestFirst
	case "lessRemainingPhaseFirst", "LessRemainingPhaseFirst":
		return QueueLessRemainingPhaseFirst
	default:
		panic(&ConfigError{Key: "intra-dimension-scheduling", Reason: fmt.Sprintf("unknown queue policy %q", name)})
	}
}

// rgPairKey is the pairing key used by the RG policy to keep a
// ReduceScatter stream neighbouring its complementary AllGather stream
// from the same LocalBWAware decomposition.
type rgPairKey struct {
	originCollective StreamBatchHandle
	role             CollectiveKind // ReduceScatter or AllGather
}

// PerDimensionQueue is an ordered sequence of streams for one physical
// dimension, governed by one QueuePolicyKind.
type PerDimensionQueue struct {
	Dim    int
	Policy QueuePolicyKind

	streams []*Stream

	// RunningStreams counts streams currently "initialized" (their head
	// phase's algorithm has had Run() called).
	RunningStreams int
	// TotalActiveChunks counts every live chunk-stream queued or running
	// on this dimension.
	TotalActiveChunks int
}

// NewPerDimensionQueue constructs an empty queue for one dimension.
func NewPerDimensionQueue(dim int, policy QueuePolicyKind) *PerDimensionQueue {
	return &PerDimensionQueue{Dim: dim, Policy: policy}
}

// Len returns the number of streams currently queued (including running ones).
func (q *PerDimensionQueue) Len() int { return len(q.streams) }

// Head returns the stream at the front of the queue, or nil if empty.
func (q *PerDimensionQueue) Head() *Stream {
	if len(q.streams) == 0 {
		return nil
	}
	return q.streams[0]
}

// insertIndex computes where a new stream should land under the active
// policy. Already-initialized streams are never overtaken by a new
// stream of equal priority: ties always resolve
// after any initialized entry.
func (q *PerDimensionQueue) insertIndex(s *Stream) int {
	switch q.Policy {
	case QueueFIFO, QueueRG:
		// after all streams of priority >= new.priority
		idx := len(q.streams)
		for i, existing := range q.streams {
			if existing.Priority < s.Priority {
				idx = i
				break
			}
		}
		return idx
	case QueueSmallestFirst:
		idx := len(q.streams)
		for i, existing := range q.streams {
			if existing.InitialDataSize() > s.InitialDataSize() {
				idx = i
				break
			}
		}
		return idx
	case QueueLessRemainingPhaseFirst:
		idx := len(q.streams)
		for i, existing := range q.streams {
			if existing.RemainingPhases() > s.RemainingPhases() {
				idx = i
				break
			}
		}
		return idx
	default:
		panic(&ConfigError{Key: "intra-dimension-scheduling", Reason: "unknown queue policy"})
	}
}

// Insert adds a stream to the queue at its policy-determined position.
// For QueueRG, if a complementary stream sharing pairKey is already
// queued, the new stream is inserted immediately adjacent to it instead
// of at the FIFO position, so the pair stays neighbours.
func (q *PerDimensionQueue) Insert(s *Stream, pairKey *rgPairKey, pairOf func(*Stream) *rgPairKey) {
	if q.Policy == QueueRG && pairKey != nil {
		for i, existing := range q.streams {
			if k := pairOf(existing); k != nil && *k == *pairKey {
				// place the new stream directly after its pair
				q.streams = append(q.streams, nil)
				copy(q.streams[i+2:], q.streams[i+1:])
				q.streams[i+1] = s
				return
			}
		}
	}
	idx := q.insertIndex(s)
	q.streams = append(q.streams, nil)
	copy(q.streams[idx+1:], q.streams[idx:])
	q.streams[idx] = s
}

// Remove deletes a stream from the queue by handle.
func (q *PerDimensionQueue) Remove(h StreamHandle) {
	for i, s := range q.streams {
		if s.Handle == h {
			q.streams = append(q.streams[:i], q.streams[i+1:]...)
			return
		}
	}
}

// HeadN returns up to n not-yet-initialized streams from the front of
// the queue, used by the scheduler to fill admission slots.
func (q *PerDimensionQueue) HeadN(n int) []*Stream {
	out := make([]*Stream, 0, n)
	for _, s := range q.streams {
		if len(out) >= n {
			break
		}
		if !s.Initialized() {
			out = append(out, s)
		}
	}
	return out
}
