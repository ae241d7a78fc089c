package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// utilizationQuantiles are the percentile buckets reported per
// dimension.
var utilizationQuantiles = []float64{0.5, 0.9, 0.99, 1.0}

// WriteUtilization writes one row per physical dimension: its p50, p90,
// p99 and max running_streams occupancy (as a percentage of capacity)
// observed across the run, computed via gonum/stat.Quantile rather than
// a hand-rolled percentile routine.
func WriteUtilization(w io.Writer, samples []DimensionSample) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"dim"}
	for _, q := range utilizationQuantiles {
		header = append(header, fmt.Sprintf("p%.0f", q*100))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	byDim := make(map[int][]float64)
	var dims []int
	for _, s := range samples {
		if _, seen := byDim[s.Dim]; !seen {
			dims = append(dims, s.Dim)
		}
		byDim[s.Dim] = append(byDim[s.Dim], occupancyPct(s))
	}
	sort.Ints(dims)

	for _, d := range dims {
		xs := append([]float64(nil), byDim[d]...)
		sortFloat64s(xs)
		row := []string{fmt.Sprintf("%d", d)}
		for _, q := range utilizationQuantiles {
			v := stat.Quantile(q, stat.Empirical, xs, nil)
			row = append(row, fmt.Sprintf("%.2f", v))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
