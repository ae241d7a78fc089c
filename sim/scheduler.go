package sim

// StreamScheduler governs concurrency across and within per-dimension
// queues: admission control, intra-dimension ordering,
// and the bookkeeping counters that cap how many streams run at once.
type StreamScheduler struct {
	QueueThreshold      int // max initialized streams per dimension
	MaxRunningStreams    int // global cap
	ReadyListThreshold   int // global gate for eager promotion

	queues map[int]*PerDimensionQueue

	readyList         []*Stream
	firstPhaseStreams int // global count of streams whose cursor is at their first phase
	totalRunningStreams int

	runner streamRunner
}

// streamRunner is the callback surface the scheduler needs from Sys to
// actually start a stream's head phase; kept as a narrow interface so
// scheduler.go has no import-cycle dependency on sys.go's concrete type.
type streamRunner interface {
	runStreamHead(s *Stream, now int64)
}

// NewStreamScheduler constructs a scheduler over the given dimension
// sizes, all sharing one policy (a real deployment may vary the policy
// per dimension via NewStreamSchedulerWithPolicies).
func NewStreamScheduler(dims []int, policy QueuePolicyKind, queueThreshold, maxRunningStreams, readyListThreshold int, runner streamRunner) *StreamScheduler {
	policies := make([]QueuePolicyKind, len(dims))
	for i := range policies {
		policies[i] = policy
	}
	return NewStreamSchedulerWithPolicies(dims, policies, queueThreshold, maxRunningStreams, readyListThreshold, runner)
}

// NewStreamSchedulerWithPolicies constructs a scheduler with a distinct
// intra-dimension policy per physical dimension.
func NewStreamSchedulerWithPolicies(dims []int, policies []QueuePolicyKind, queueThreshold, maxRunningStreams, readyListThreshold int, runner streamRunner) *StreamScheduler {
	s := &StreamScheduler{
		QueueThreshold:     queueThreshold,
		MaxRunningStreams:  maxRunningStreams,
		ReadyListThreshold: readyListThreshold,
		queues:             make(map[int]*PerDimensionQueue, len(dims)),
		runner:             runner,
	}
	for i := range dims {
		pol := QueueFIFO
		if i < len(policies) {
			pol = policies[i]
		}
		s.queues[i] = NewPerDimensionQueue(i, pol)
	}
	return s
}

func (s *StreamScheduler) QueueFor(dim int) *PerDimensionQueue { return s.queues[dim] }

// RebuildQueues replaces the per-dimension queue layout, used atomically
// by break_dimension.
func (s *StreamScheduler) RebuildQueues(dims []int, policies []QueuePolicyKind) {
	s.queues = make(map[int]*PerDimensionQueue, len(dims))
	for i := range dims {
		pol := QueueFIFO
		if i < len(policies) {
			pol = policies[i]
		}
		s.queues[i] = NewPerDimensionQueue(i, pol)
	}
}

// OnStreamAdded bumps bookkeeping for a newly enqueued stream and
// initializes up to QueueThreshold streams at the dimension's head.
func (s *StreamScheduler) OnStreamAdded(dim int, now int64) {
	q := s.queues[dim]
	q.TotalActiveChunks++
	s.fillDimension(q, now)
}

// fillDimension starts head streams until the dimension's threshold or
// the global running cap is hit.
func (s *StreamScheduler) fillDimension(q *PerDimensionQueue, now int64) {
	for q.RunningStreams < s.QueueThreshold && s.totalRunningStreams < s.MaxRunningStreams {
		heads := q.HeadN(1)
		if len(heads) == 0 {
			return
		}
		st := heads[0]
		st.MarkInitialized()
		q.RunningStreams++
		s.totalRunningStreams++
		if st.cursor == 0 {
			s.firstPhaseStreams++
		}
		if s.runner != nil {
			s.runner.runStreamHead(st, now)
		}
	}
}

// OnStreamRemoved decrements running-stream bookkeeping for `dim` and,
// if capacity freed up, promotes ready-list entries and fills head
// streams again.
func (s *StreamScheduler) OnStreamRemoved(dim int, now int64) {
	q := s.queues[dim]
	q.RunningStreams--
	q.TotalActiveChunks--
	s.totalRunningStreams--

	if len(s.readyList) > 0 && s.totalRunningStreams < s.MaxRunningStreams {
		s.Schedule(len(s.readyList), now)
	}
	s.fillDimension(q, now)
}

// NoteAdvancedPastFirstPhase decrements the global first-phase-stream
// count, called once a stream that was at its first phase advances past
// it (to its next dimension, or to completion). Without this the count
// only ever grows and OnReadyListInsert's eager-promotion gate stops
// firing permanently once ReadyListThreshold streams have ever been
// initialized.
func (s *StreamScheduler) NoteAdvancedPastFirstPhase() {
	if s.firstPhaseStreams > 0 {
		s.firstPhaseStreams--
	}
}

// OnReadyListInsert is called whenever a stream is appended to the
// global ready_list; eagerly promotes it if under the ready-list
// threshold and a slot is available.
func (s *StreamScheduler) OnReadyListInsert(st *Stream, now int64) {
	s.readyList = append(s.readyList, st)
	if s.firstPhaseStreams < s.ReadyListThreshold && s.totalRunningStreams < s.MaxRunningStreams {
		s.Schedule(1, now)
	}
}

// Schedule promotes up to n streams from the global ready_list into
// their dimension's queue and starts each affected dimension filling,
// so a freshly promoted stream's head phase actually runs instead of
// sitting inserted but never dispatched.
func (s *StreamScheduler) Schedule(n int, now int64) {
	promoted := 0
	remaining := s.readyList[:0]
	touched := make(map[int]*PerDimensionQueue)
	for _, st := range s.readyList {
		if promoted >= n {
			remaining = append(remaining, st)
			continue
		}
		q := s.queues[st.dim]
		q.Insert(st, nil, nil)
		q.TotalActiveChunks++
		touched[st.dim] = q
		promoted++
	}
	s.readyList = remaining
	for _, q := range touched {
		s.fillDimension(q, now)
	}
}
