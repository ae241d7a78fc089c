package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalStreams int
	TotalPhases  int
	TotalBytes   int64

	ByOperation map[string]int
	ByAlgorithm map[string]int

	MeanPhaseDurationTicks float64
	MaxPhaseDurationTicks  int64
}

// Summarize computes aggregate statistics from a SimulationTrace. Safe
// for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		ByOperation: make(map[string]int),
		ByAlgorithm: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalStreams = len(st.Streams)
	summary.TotalPhases = len(st.Phases)

	if len(st.Phases) == 0 {
		return summary
	}

	var totalDuration int64
	for _, p := range st.Phases {
		summary.ByOperation[p.Operation]++
		summary.ByAlgorithm[p.Algorithm]++
		summary.TotalBytes += p.Bytes

		d := p.FinishedAt - p.StartedAt
		totalDuration += d
		if d > summary.MaxPhaseDurationTicks {
			summary.MaxPhaseDurationTicks = d
		}
	}
	summary.MeanPhaseDurationTicks = float64(totalDuration) / float64(len(st.Phases))

	return summary
}
