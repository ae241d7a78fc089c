package sim

import "math/bits"

// halvingDoublingAlgorithm implements recursive halving/doubling:
// log2(N) steps, exchanging with i XOR (1<<k) at step k.
// Requires N a power of two; callers fall back to Ring otherwise
// (enforced by the PhaseGenerator, not here).
type halvingDoublingAlgorithm struct {
	op     CollectiveKind
	n      int
	self   int
	cost   AlgoCost
	peer   DimPeerFunc
	log2n  int

	totalSteps int // log2n for a single sub-op, 2*log2n for AllReduce
	step       int
	sendDone   bool
	recvDone   bool
	done       bool
}

// NewHalvingDoublingAlgorithm constructs the HalvingDoubling
// CollectiveAlgorithm for one phase. peer maps this phase's
// dimension-local ranks back to global NodeIDs; a nil peer defaults to
// the identity mapping.
func NewHalvingDoublingAlgorithm(op CollectiveKind, n, self int, cost AlgoCost, peer DimPeerFunc) CollectiveAlgorithm {
	log2n := 0
	if n > 1 {
		log2n = bits.Len(uint(n)) - 1
	}
	steps := log2n
	if op == CollectiveAllReduce {
		steps = 2 * log2n
	}
	if peer == nil {
		peer = identityPeer
	}
	return &halvingDoublingAlgorithm{op: op, n: n, self: self, cost: cost, peer: peer, log2n: log2n, totalSteps: steps}
}

func (h *halvingDoublingAlgorithm) Done() bool { return h.done }

func (h *halvingDoublingAlgorithm) Run(sys *Sys, phase *CollectivePhase, now int64) {
	h.startStep(sys, phase, now)
}

// stepBytes returns the message size at sub-step k of a reduce-scatter
// (halving, largest first) or all-gather (doubling, smallest first).
func (h *halvingDoublingAlgorithm) stepBytes(total int64, k int, reduceScatter bool) int64 {
	if h.log2n == 0 {
		return total
	}
	if reduceScatter {
		return total >> uint(k+1)
	}
	return total >> uint(h.log2n-k)
}

func (h *halvingDoublingAlgorithm) startStep(sys *Sys, phase *CollectivePhase, now int64) {
	if h.step >= h.totalSteps {
		h.done = true
		sys.onPhaseComplete(phase, now)
		return
	}
	reduceScatter := h.op == CollectiveReduceScatter || (h.op == CollectiveAllReduce && h.step < h.log2n)
	k := h.step
	if h.op == CollectiveAllReduce && !reduceScatter {
		k = h.step - h.log2n
	}
	// AllGather's doubling step runs with the peer order mirrored
	// relative to reduce-scatter.
	shiftK := k
	if !reduceScatter {
		shiftK = h.log2n - 1 - k
	}
	partner := h.self ^ (1 << uint(shiftK))
	bytesThisStep := h.stepBytes(phase.Bytes, k, reduceScatter)
	if bytesThisStep <= 0 {
		bytesThisStep = 1
	}
	tag := int64(phase.Handle)*1000 + int64(h.step)

	h.sendDone, h.recvDone = false, false
	peerID := h.peer(partner)
	sys.simSend(phase, peerID, tag, bytesThisStep, now)
	sys.simRecv(phase, peerID, tag)
}

func (h *halvingDoublingAlgorithm) OnSendComplete(sys *Sys, phase *CollectivePhase, tag int64, now int64) {
	h.sendDone = true
	h.maybeAdvance(sys, phase, now)
}

func (h *halvingDoublingAlgorithm) OnRecvComplete(sys *Sys, phase *CollectivePhase, tag int64, bytes int64, now int64) {
	sys.registerEvent(h.cost.LocalReductionDelay, now, func(sys *Sys, now int64) {
		h.recvDone = true
		h.maybeAdvance(sys, phase, now)
	})
}

func (h *halvingDoublingAlgorithm) maybeAdvance(sys *Sys, phase *CollectivePhase, now int64) {
	if h.sendDone && h.recvDone {
		h.step++
		h.startStep(sys, phase, now)
	}
}
