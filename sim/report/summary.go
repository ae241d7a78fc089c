// Package report writes the summary and per-dimension utilization CSVs
// using encoding/csv, plus gonum/stat for the quantile-bucket
// computation in the utilization report.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	sim "github.com/collsim/collsim/sim"
)

// cyclesToSeconds converts a tick count into seconds given the
// simulation's cycle rate (ticks per second). The run command passes
// its --ticks-per-second flag value.
func cyclesToSeconds(ticks int64, ticksPerSecond float64) float64 {
	if ticksPerSecond <= 0 {
		return 0
	}
	return float64(ticks) / ticksPerSecond
}

// WriteSummary writes one row per layer: compute, exposed communication
// by group kind, bubble time, and totals, all in seconds.
func WriteSummary(w io.Writer, m *sim.Metrics, ticksPerSecond float64) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	groups := []sim.GroupKind{sim.GroupTP, sim.GroupDP, sim.GroupEP, sim.GroupDPEP, sim.GroupPP}
	header := []string{"layer", "compute_s"}
	for _, g := range groups {
		header = append(header, "exposed_comm_"+g.String()+"_s")
	}
	header = append(header, "bubble_s", "total_s")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, l := range m.Layers {
		row := []string{fmt.Sprintf("%d", l.LayerIndex), formatSeconds(cyclesToSeconds(l.ComputeTicks, ticksPerSecond))}
		var rowTotal int64 = l.ComputeTicks + l.BubbleTicks
		for _, g := range groups {
			ticks := l.ExposedCommTicks[g]
			rowTotal += ticks
			row = append(row, formatSeconds(cyclesToSeconds(ticks, ticksPerSecond)))
		}
		row = append(row, formatSeconds(cyclesToSeconds(l.BubbleTicks, ticksPerSecond)))
		row = append(row, formatSeconds(cyclesToSeconds(rowTotal, ticksPerSecond)))
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	totalRow := []string{"total", formatSeconds(cyclesToSeconds(m.TotalCompute(), ticksPerSecond))}
	for _, g := range groups {
		var sum int64
		for _, l := range m.Layers {
			sum += l.ExposedCommTicks[g]
		}
		totalRow = append(totalRow, formatSeconds(cyclesToSeconds(sum, ticksPerSecond)))
	}
	grandTotal := m.TotalCompute() + m.TotalExposedComm() + m.TotalBubble()
	totalRow = append(totalRow, formatSeconds(cyclesToSeconds(m.TotalBubble(), ticksPerSecond)))
	totalRow = append(totalRow, formatSeconds(cyclesToSeconds(grandTotal, ticksPerSecond)))
	return cw.Write(totalRow)
}

func formatSeconds(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

// DimensionSample is one observation of a dimension's running-stream
// occupancy at a point in time, fed into WriteUtilization.
type DimensionSample struct {
	Dim            int
	RunningStreams int
	Capacity       int // PerDimensionQueue's queue_threshold at sample time
}

func occupancyPct(s DimensionSample) float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return 100 * float64(s.RunningStreams) / float64(s.Capacity)
}

// sortFloat64s is a tiny local helper so this file has no direct
// sort.Float64s dependency beyond the stdlib already imported.
func sortFloat64s(xs []float64) { sort.Float64s(xs) }
