// cmd/run.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/collsim/collsim/sim"
	"github.com/collsim/collsim/sim/membus"
	"github.com/collsim/collsim/sim/network"
	"github.com/collsim/collsim/sim/report"
	"github.com/collsim/collsim/sim/trace"
	"github.com/collsim/collsim/sim/workload"
)

var (
	runWorkloadPath string
	runTopologyPath string
	runConfigPath   string
	runNumGPUs      int
	runResultDir    string
	runThreads      int
	runTicksPerSec  float64
	runPasses       int
	runWatch        bool
	runTraceLevel   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a distributed training collective simulation",
	Run: func(cmd *cobra.Command, args []string) {
		applyLogLevel()
		runSimulation()
	},
}

func init() {
	runCmd.Flags().StringVarP(&runWorkloadPath, "workload", "w", "", "Path to the workload file (required)")
	runCmd.Flags().StringVarP(&runTopologyPath, "topology", "n", "", "Path to the topology YAML file (required)")
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "Path to the system config file (required)")
	runCmd.Flags().IntVarP(&runNumGPUs, "gpus", "g", 0, "Total number of accelerators (required)")
	runCmd.Flags().StringVarP(&runResultDir, "result-dir", "r", "", "Directory to write summary.csv/utilization.csv; stdout if empty")
	runCmd.Flags().IntVarP(&runThreads, "threads", "t", 1, "Worker threads; values >1 are accepted, but the run uses the single-threaded kernel")
	runCmd.Flags().Float64Var(&runTicksPerSec, "ticks-per-second", 1e9, "Clock ticks per wall-clock second, for report conversion")
	runCmd.Flags().IntVar(&runPasses, "passes", 1, "Number of training iterations (TOTAL_PASS) to simulate; the workload file format has no field for this")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-run the simulation whenever the workload, topology, or config file changes")
	runCmd.Flags().StringVar(&runTraceLevel, "trace-level", "none", "Decision trace verbosity: none or decisions")

	for _, name := range []string{"workload", "topology", "config", "gpus"} {
		_ = runCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(runCmd)
}

func runSimulation() {
	if runThreads > 1 {
		logrus.Warn("-t/--threads > 1 requested but this build only ships the single-threaded cooperative kernel; running on one thread")
	}
	if runWatch {
		watchAndRerun([]string{runWorkloadPath, runTopologyPath, runConfigPath}, runOnce)
		return
	}
	runOnce()
}

func runOnce() {
	if !trace.IsValidTraceLevel(runTraceLevel) {
		sim.SysPanic(&sim.ConfigError{Key: "trace-level", Reason: fmt.Sprintf("unknown trace level %q", runTraceLevel)})
	}
	tr := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevel(runTraceLevel)})

	wl, parsedTopo, sysCfg := loadRunInputs(runWorkloadPath, runTopologyPath, runConfigPath)

	for op, algoString := range parsedTopo.AlgoStringByOp {
		if algoString != "" {
			sysCfg.ImplementationByOp[op] = algoString
		}
	}

	topo := sim.NewTopologyMap(parsedTopo.Dims, parsedTopo.TopoByOp)
	if wl.Header.ModelParallelNPUGroup > 0 {
		if err := topo.BreakDimension(wl.Header.ModelParallelNPUGroup, parsedTopo.TopoByOp); err != nil {
			sim.SysPanic(err)
		}
	}
	if topo.N != runNumGPUs {
		sim.SysPanic(&sim.ConfigError{Key: "gpus", Reason: fmt.Sprintf(
			"topology describes %d nodes but -g specified %d", topo.N, runNumGPUs)})
	}
	if wl.Header.PP > 1 && wl.Header.GA > 0 && wl.Header.GA < wl.Header.PP {
		sim.SysPanic(&sim.ConfigError{Key: "ga", Reason: fmt.Sprintf(
			"GA=%d micro-batches cannot fill a %d-stage pipeline", wl.Header.GA, wl.Header.PP)})
	}

	queuePolicies := queuePoliciesFor(sysCfg, len(topo.Dims))
	backend := network.NewMockBackend(network.Config{
		LatencyCycles:      sysCfg.EndpointDelay,
		BandwidthInvCycles: sysCfg.BandwidthInvCycles,
	})
	var bus membus.Bus = membus.NoBus{}
	if sysCfg.ModelSharedBus {
		bus = &membus.LinearBus{FixedOverhead: sysCfg.EndpointDelay, CyclesPerByte: sysCfg.BandwidthInvCycles}
	}
	if v := os.Getenv("AS_NVLS_ENABLE"); v == "1" || v == "true" {
		sysCfg.NVLSEnable = true
	}
	logrus.Debugf("nvls-enable=%v", sysCfg.NVLSEnable)

	logger := logrus.StandardLogger()
	cluster := sim.NewCluster(backend, logger)

	algoSelection := sysCfg.AlgoSelection()
	genCfg := sim.PhaseGeneratorConfig{
		PreferredChunkBytes: 1 << 20,
		MinChunkBytes:       4096,
		Traversal:           uniformTraversal(sysCfg.InterDimensionScheduling),
		Optimization:        sysCfg.Optimization,
		AlgoSelection:       algoSelection,
		Cost:                sysCfg.AlgoCost(),
	}

	metrics := sim.NewMetrics(len(wl.Layers))
	nodes := make([]*sim.Sys, 0, topo.N)

	for rank := 0; rank < topo.N; rank++ {
		node := sim.NodeID(rank)
		gen := sim.NewPhaseGenerator(genCfg)
		sys := sim.NewSys(node, cluster, topo, parsedTopo.TopoByOp, nil, gen, bus, sysCfg.RendezvousThreshold, logger)
		sys.Scheduler = sim.NewStreamSchedulerWithPolicies(topo.Dims, queuePolicies,
			sysCfg.QueueThreshold, sysCfg.MaxRunningStreams, sysCfg.ReadyListThreshold, sys)
		sys.Metrics = metrics
		if trace.TraceLevel(runTraceLevel) == trace.TraceLevelDecisions {
			sys.Trace = tr
		}
		nodes = append(nodes, sys)

		layers := cloneLayers(wl.Layers)
		fsm := sim.NewWorkloadFSM(sys, layers, runPasses)
		sys.FSM = fsm
		fsm.Start(0)

		if wl.Header.PP > 1 {
			stageIndex := rank % wl.Header.PP
			pcfg := sim.PipelineConfig{Enabled: true, Stages: wl.Header.PP, StageIndex: stageIndex, NumMicrobatches: maxInt(wl.Header.GA, 1)}
			_ = sim.BuildSchedule(pcfg) // validated here; bubble charged per layer below from observed compute/comm ticks
			sysCfg.Pipeline = pcfg
		}
	}

	samples := sampleUtilization(nodes[0], len(topo.Dims), nodes, sysCfg.QueueThreshold)

	cluster.Run()
	metrics.FinishedAt = cluster.Now()

	if sysCfg.Pipeline.Enabled {
		for _, lm := range metrics.Layers {
			sim.ApplyBubble(metrics, sysCfg.Pipeline, lm.LayerIndex, lm.ComputeTicks, lm.TotalExposedComm())
		}
	}

	writeReports(metrics, *samples, runTicksPerSec, runResultDir)
	if trace.TraceLevel(runTraceLevel) == trace.TraceLevelDecisions {
		summary := trace.Summarize(tr)
		logrus.Infof("trace: %d streams, %d phases, %d bytes, mean phase duration %.1f ticks",
			summary.TotalStreams, summary.TotalPhases, summary.TotalBytes, summary.MeanPhaseDurationTicks)
	}
	logrus.Infof("all passes finished at time %d", metrics.FinishedAt)
}

// utilizationSampleInterval is the clock period, in cycles, between
// dimension-occupancy samples fed to the utilization CSV's quantiles.
const utilizationSampleInterval = int64(1000)

// sampleUtilization installs a self-rescheduling callback on driver's
// clock that records every node's per-dimension occupancy until every
// node's FSM has finished, returning the slice the samples accumulate
// into (populated only once cluster.Run has drained the event queue).
func sampleUtilization(driver *sim.Sys, numDims int, nodes []*sim.Sys, capacity int) *[]report.DimensionSample {
	samples := make([]report.DimensionSample, 0, 1024)
	var tick func(s *sim.Sys, now int64)
	tick = func(s *sim.Sys, now int64) {
		allDone := true
		for _, n := range nodes {
			for d := 0; d < numDims; d++ {
				q := n.Scheduler.QueueFor(d)
				samples = append(samples, report.DimensionSample{Dim: d, RunningStreams: q.RunningStreams, Capacity: capacity})
			}
			if n.FSM == nil || !n.FSM.Finished() {
				allDone = false
			}
		}
		if !allDone {
			s.ScheduleCallback(utilizationSampleInterval, tick)
		}
	}
	driver.ScheduleCallback(utilizationSampleInterval, tick)
	return &samples
}

// loadRunInputs opens and parses the three mandatory input files,
// panicking with the parser's own ConfigError on any malformed input.
func loadRunInputs(workloadPath, topologyPath, configPath string) (*workload.Workload, *workload.ParsedTopology, *sim.SystemConfig) {
	wlFile, err := os.Open(workloadPath)
	if err != nil {
		sim.SysPanic(&sim.ConfigError{Key: "workload-file", Reason: err.Error()})
	}
	defer wlFile.Close()
	wl, err := workload.ParseFile(wlFile)
	if err != nil {
		sim.SysPanic(err)
	}

	topoFile, err := os.Open(topologyPath)
	if err != nil {
		sim.SysPanic(&sim.ConfigError{Key: "topology-file", Reason: err.Error()})
	}
	defer topoFile.Close()
	parsedTopo, err := workload.ParseTopologyFile(topoFile)
	if err != nil {
		sim.SysPanic(err)
	}

	cfgFile, err := os.Open(configPath)
	if err != nil {
		sim.SysPanic(&sim.ConfigError{Key: "system-config-file", Reason: err.Error()})
	}
	defer cfgFile.Close()
	sysCfg, err := workload.ParseSystemConfig(cfgFile)
	if err != nil {
		sim.SysPanic(err)
	}

	return wl, parsedTopo, sysCfg
}

// queuePoliciesFor resolves the per-dimension intra-dimension policy
// from a system config's possibly-uniform IntraDimensionScheduling map.
func queuePoliciesFor(cfg *sim.SystemConfig, numDims int) []sim.QueuePolicyKind {
	pols := make([]sim.QueuePolicyKind, numDims)
	uniform, hasUniform := cfg.IntraDimensionScheduling[-1]
	for d := 0; d < numDims; d++ {
		if p, ok := cfg.IntraDimensionScheduling[d]; ok {
			pols[d] = p
		} else if hasUniform {
			pols[d] = uniform
		} else {
			pols[d] = sim.QueueFIFO
		}
	}
	return pols
}

// uniformTraversal applies one TraversalKind to every collective kind
// the phase generator might see; the system config format
// carries a single inter-dimension-scheduling value, not a per-op one.
func uniformTraversal(kind sim.TraversalKind) map[sim.CollectiveKind]sim.TraversalKind {
	return map[sim.CollectiveKind]sim.TraversalKind{
		sim.CollectiveAllReduce:     kind,
		sim.CollectiveAllGather:     kind,
		sim.CollectiveReduceScatter: kind,
		sim.CollectiveAllToAll:      kind,
	}
}

// cloneLayers gives one node its own mutable Layer instances from the
// shared parsed-workload template.
func cloneLayers(template []*sim.Layer) []*sim.Layer {
	out := make([]*sim.Layer, len(template))
	for i, l := range template {
		out[i] = l.Clone()
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// writeReports emits the summary and utilization CSVs to resultDir, or
// to stdout if resultDir is empty.
func writeReports(m *sim.Metrics, samples []report.DimensionSample, ticksPerSecond float64, resultDir string) {
	if resultDir == "" {
		if err := report.WriteSummary(os.Stdout, m, ticksPerSecond); err != nil {
			sim.SysPanic(err)
		}
		if err := report.WriteUtilization(os.Stdout, samples); err != nil {
			sim.SysPanic(err)
		}
		return
	}
	if err := os.MkdirAll(resultDir, 0o755); err != nil {
		sim.SysPanic(&sim.ConfigError{Key: "result-dir", Reason: err.Error()})
	}

	summaryPath := filepath.Join(resultDir, "summary.csv")
	sf, err := os.Create(summaryPath)
	if err != nil {
		sim.SysPanic(&sim.ConfigError{Key: "result-dir", Reason: err.Error()})
	}
	defer sf.Close()
	if err := report.WriteSummary(sf, m, ticksPerSecond); err != nil {
		sim.SysPanic(err)
	}

	utilPath := filepath.Join(resultDir, "utilization.csv")
	uf, err := os.Create(utilPath)
	if err != nil {
		sim.SysPanic(&sim.ConfigError{Key: "result-dir", Reason: err.Error()})
	}
	defer uf.Close()
	if err := report.WriteUtilization(uf, samples); err != nil {
		sim.SysPanic(err)
	}
}
