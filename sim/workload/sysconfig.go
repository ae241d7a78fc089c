package workload

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	sim "github.com/collsim/collsim/sim"
)

// sysConfigKeys is the closed set of recognized system-config keys.
// Any other key is a fatal ConfigError.
var sysConfigKeys = map[string]bool{
	"scheduling-policy": true, "collective-optimization": true,
	"endpoint-delay": true, "local-reduction-delay": true,
	"active-chunks-per-dimension": true, "L": true, "o": true, "g": true, "G": true,
	"intra-dimension-scheduling": true, "inter-dimension-scheduling": true,
	"boost-mode": true, "model-shared-bus": true, "rendezvous-threshold": true,
	"queue-threshold": true, "max-running-streams": true, "ready-list-threshold": true,
	"nvls-enable": true,
}

// sysConfigImplKey identifies the per-operation implementation-string
// keys (e.g. "allreduce-implementation": "ring_doubleBinaryTree_direct").
var sysConfigImplKey = map[string]sim.CollectiveKind{
	"allreduce-implementation":     sim.CollectiveAllReduce,
	"allgather-implementation":     sim.CollectiveAllGather,
	"reducescatter-implementation": sim.CollectiveReduceScatter,
	"alltoall-implementation":      sim.CollectiveAllToAll,
}

// ParseSystemConfig parses the key=value system-config file. Unknown keys or unparsable values are fatal ConfigErrors,
// matching NewScheduler's panic-on-unknown-name convention.
func ParseSystemConfig(r io.Reader) (*sim.SystemConfig, error) {
	cfg := sim.DefaultSystemConfig()
	cfg.ImplementationByOp = map[sim.CollectiveKind]string{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, &sim.ConfigError{Key: line, Reason: "expected key=value"}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if op, isImpl := sysConfigImplKey[key]; isImpl {
			cfg.ImplementationByOp[op] = value
			continue
		}
		if !sysConfigKeys[key] {
			return nil, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("unknown system-config key %q", key)}
		}

		var err error
		switch key {
		case "scheduling-policy":
			cfg.SchedulingPolicy, err = parsePriorityPolicy(value)
		case "collective-optimization":
			cfg.Optimization, err = parseOptimization(value)
		case "endpoint-delay":
			cfg.EndpointDelay, err = parseInt64(key, value)
		case "local-reduction-delay":
			cfg.LocalReductionDelay, err = parseInt64(key, value)
		case "active-chunks-per-dimension":
			cfg.ActiveChunksPerDimension, err = parseInt(key, value)
		case "L":
			_, err = parseInt64(key, value) // validated only; the value is not stored
		case "o":
			cfg.EndpointDelay, err = parseInt64(key, value)
		case "g":
			cfg.Gap, err = parseInt64(key, value)
		case "G":
			cfg.BandwidthInvCycles, err = parseFloat(key, value)
		case "intra-dimension-scheduling":
			err = setIntraDimensionScheduling(cfg, value)
		case "inter-dimension-scheduling":
			cfg.InterDimensionScheduling, err = parseTraversal(value)
		case "boost-mode":
			cfg.BoostMode, err = parseBool(key, value)
		case "model-shared-bus":
			cfg.ModelSharedBus, err = parseBool(key, value)
		case "rendezvous-threshold":
			cfg.RendezvousThreshold, err = parseInt64(key, value)
		case "queue-threshold":
			cfg.QueueThreshold, err = parseInt(key, value)
		case "max-running-streams":
			cfg.MaxRunningStreams, err = parseInt(key, value)
		case "ready-list-threshold":
			cfg.ReadyListThreshold, err = parseInt(key, value)
		case "nvls-enable":
			cfg.NVLSEnable, err = parseBool(key, value)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading system config: %w", err)
	}
	return &cfg, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("invalid integer %q", value)}
	}
	return v, nil
}

func parseInt64(key, value string) (int64, error) {
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("invalid integer %q", value)}
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("invalid number %q", value)}
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("invalid boolean %q", value)}
	}
	return v, nil
}

func parsePriorityPolicy(value string) (sim.PriorityPolicy, error) {
	switch value {
	case "none", "None":
		return sim.PriorityNone, nil
	case "fifo", "FIFO":
		return sim.PriorityFIFO, nil
	case "lifo", "LIFO":
		return sim.PriorityLIFO, nil
	case "highest", "HIGHEST":
		return sim.PriorityHighest, nil
	default:
		return 0, &sim.ConfigError{Key: "scheduling-policy", Reason: fmt.Sprintf("unknown policy %q", value)}
	}
}

func parseOptimization(value string) (sim.CollectiveOptimization, error) {
	switch value {
	case "baseline":
		return sim.OptimizationBaseline, nil
	case "localBWAware":
		return sim.OptimizationLocalBWAware, nil
	case "hierarchical":
		return sim.OptimizationHierarchical, nil
	default:
		return 0, &sim.ConfigError{Key: "collective-optimization", Reason: fmt.Sprintf("unknown optimization %q", value)}
	}
}

func parseTraversal(value string) (sim.TraversalKind, error) {
	switch value {
	case "forward":
		return sim.TraversalForward, nil
	case "reverse":
		return sim.TraversalReverse, nil
	case "roundRobin":
		return sim.TraversalRoundRobin, nil
	case "offlineGreedy":
		return sim.TraversalOfflineGreedy, nil
	case "offlineGreedyFlex":
		return sim.TraversalOfflineGreedyFlex, nil
	default:
		return 0, &sim.ConfigError{Key: "inter-dimension-scheduling", Reason: fmt.Sprintf("unknown traversal %q", value)}
	}
}

func setIntraDimensionScheduling(cfg *sim.SystemConfig, value string) error {
	pol := sim.ParseQueuePolicyKind(value)
	if cfg.IntraDimensionScheduling == nil {
		cfg.IntraDimensionScheduling = make(map[int]sim.QueuePolicyKind)
	}
	// a single system-config value applies uniformly to every dimension;
	// per-dimension overrides are not a recognized key and are not parsed.
	cfg.IntraDimensionScheduling[-1] = pol
	return nil
}
