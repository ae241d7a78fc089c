package sim

// ringAlgorithm drives one phase as a sequence of nearest-neighbour
// exchanges around a ring. AllReduce runs a
// reduce-scatter half followed by an all-gather half (2(N-1) steps);
// AllGather/ReduceScatter alone run only their own half (N-1 steps).
type ringAlgorithm struct {
	op   CollectiveKind
	n    int
	self int
	cost AlgoCost
	peer DimPeerFunc

	totalSteps int
	step       int
	sendDone   bool
	recvDone   bool
	done       bool
}

// NewRingAlgorithm constructs the Ring CollectiveAlgorithm for one phase.
// peer maps this phase's dimension-local ranks back to global NodeIDs;
// a nil peer defaults to the identity mapping.
func NewRingAlgorithm(op CollectiveKind, n, self int, cost AlgoCost, peer DimPeerFunc) CollectiveAlgorithm {
	steps := n - 1
	if op == CollectiveAllReduce {
		steps = 2 * (n - 1)
	}
	if n <= 1 {
		steps = 0
	}
	if peer == nil {
		peer = identityPeer
	}
	return &ringAlgorithm{op: op, n: n, self: self, cost: cost, peer: peer, totalSteps: steps}
}

func (r *ringAlgorithm) Done() bool { return r.done }

func (r *ringAlgorithm) Run(sys *Sys, phase *CollectivePhase, now int64) {
	r.startStep(sys, phase, now)
}

// startStep issues step r.step's send/recv pair, or signals completion
// once every step has run. Tie-breaking for simultaneous readiness is
// implicit: steps execute strictly in increasing order, one at a time.
func (r *ringAlgorithm) startStep(sys *Sys, phase *CollectivePhase, now int64) {
	if r.step >= r.totalSteps {
		r.done = true
		sys.onPhaseComplete(phase, now)
		return
	}
	bytesPerStep := phase.Bytes / int64(r.n)
	if bytesPerStep <= 0 {
		bytesPerStep = phase.Bytes
	}
	next := r.peer((r.self + 1) % r.n)
	prev := r.peer((r.self - 1 + r.n) % r.n)
	tag := int64(phase.Handle)*1000 + int64(r.step)

	r.sendDone, r.recvDone = false, false
	sys.simSend(phase, next, tag, bytesPerStep, now)
	sys.simRecv(phase, prev, tag)
}

func (r *ringAlgorithm) OnSendComplete(sys *Sys, phase *CollectivePhase, tag int64, now int64) {
	r.sendDone = true
	r.maybeAdvance(sys, phase, now)
}

func (r *ringAlgorithm) OnRecvComplete(sys *Sys, phase *CollectivePhase, tag int64, bytes int64, now int64) {
	// Local reduction combine charged once the received chunk lands,
	// before the step is considered complete.
	sys.registerEvent(r.cost.LocalReductionDelay, now, func(sys *Sys, now int64) {
		r.recvDone = true
		r.maybeAdvance(sys, phase, now)
	})
}

func (r *ringAlgorithm) maybeAdvance(sys *Sys, phase *CollectivePhase, now int64) {
	if r.sendDone && r.recvDone {
		r.step++
		r.startStep(sys, phase, now)
	}
}
