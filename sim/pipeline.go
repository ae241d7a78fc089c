package sim

// Package-level note: pipeline-parallelism scheduling follows a fixed
// rule rather than a general scheduler: warm-up
// = P - stage - 1 forward passes before the first backward, steady
// state alternates one forward and one backward (1F1B), cooldown drains
// the remaining backward passes. It is a clearly optional extension,
// gated by PipelineConfig.Enabled and never invoked unless the workload
// header sets pp > 1.

// PipelineStepKind distinguishes a forward from a backward micro-batch
// step in a 1F1B pipeline schedule.
type PipelineStepKind int

const (
	PipelineStepForward PipelineStepKind = iota
	PipelineStepBackward
)

// PipelineStep is one scheduled action for a pipeline stage: which
// micro-batch, and whether it is that micro-batch's forward or backward
// pass.
type PipelineStep struct {
	Kind       PipelineStepKind
	Microbatch int
}

// BuildSchedule produces the ordered 1F1B step sequence for one
// pipeline stage: warm-up forwards, then steady-state 1-forward-1-backward
// alternation, then cooldown backwards. Returns nil if the pipeline
// extension is disabled or misconfigured.
func BuildSchedule(cfg PipelineConfig) []PipelineStep {
	if !cfg.Enabled || cfg.Stages <= 0 || cfg.NumMicrobatches <= 0 {
		return nil
	}
	warmup := cfg.Stages - cfg.StageIndex - 1
	if warmup < 0 {
		warmup = 0
	}
	if warmup > cfg.NumMicrobatches {
		warmup = cfg.NumMicrobatches
	}

	var steps []PipelineStep
	fwdIssued, bwdIssued := 0, 0

	for ; fwdIssued < warmup; fwdIssued++ {
		steps = append(steps, PipelineStep{Kind: PipelineStepForward, Microbatch: fwdIssued})
	}
	for fwdIssued < cfg.NumMicrobatches {
		steps = append(steps, PipelineStep{Kind: PipelineStepBackward, Microbatch: bwdIssued})
		bwdIssued++
		steps = append(steps, PipelineStep{Kind: PipelineStepForward, Microbatch: fwdIssued})
		fwdIssued++
	}
	for bwdIssued < cfg.NumMicrobatches {
		steps = append(steps, PipelineStep{Kind: PipelineStepBackward, Microbatch: bwdIssued})
		bwdIssued++
	}
	return steps
}

// BubbleTicks estimates the per-pipeline idle time from warm-up fill
// and cooldown drain under the 1F1B schedule: (P-1) stages' worth of
// forward+backward time go unoverlapped regardless of micro-batch
// count beyond the minimum needed to fill the pipeline (the standard
// GPipe/1F1B bubble-fraction result).
func BubbleTicks(cfg PipelineConfig, forwardTicks, backwardTicks int64) int64 {
	if !cfg.Enabled || cfg.Stages <= 1 {
		return 0
	}
	return int64(cfg.Stages-1) * (forwardTicks + backwardTicks)
}

// ApplyBubble charges BubbleTicks's estimate to a layer's metrics
// accumulator. A nil
// metrics or disabled config is a no-op.
func ApplyBubble(m *Metrics, cfg PipelineConfig, layerIdx int, forwardTicks, backwardTicks int64) {
	if m == nil {
		return
	}
	ticks := BubbleTicks(cfg, forwardTicks, backwardTicks)
	if ticks <= 0 {
		return
	}
	if lm := m.Layer(layerIdx); lm != nil {
		lm.BubbleTicks += ticks
	}
}
