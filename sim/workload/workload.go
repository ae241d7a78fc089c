// Package workload parses the line-based workload file and the
// key=value system-config file, plus the YAML topology file. Parsing
// uses bufio.Scanner with explicit column counts and wrapped errors.
package workload

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	sim "github.com/collsim/collsim/sim"
)

// validPolicies is the closed set of workload header policies.
var validPolicies = map[string]bool{
	"DATA": true, "HYBRID_TRANSFORMER": true, "HYBRID_TRANSFORMER_FWD_IN_BCKWD": true,
	"HYBRID_DLRM": true, "HYBRID_DLRM_ENHANCED": true, "MODEL": true,
	"HYBRID_DATA_MODEL": true, "HYBRID_MODEL_DATA": true, "HYBRID_CUSTOMIZED": true,
	"MICRO": true, "DISTRIBUTED_INFERENCE": true,
}

// Header holds the parsed workload header line's optional keyed
// parameters.
type Header struct {
	Policy               string
	ModelParallelNPUGroup int
	EP                    int
	PP                    int
	VPP                   int
	GA                    int
	AllGPUs               int
	PPCommBytes           int64
	Checkpoints           []int
	CheckpointInitiates   []int
}

// Workload is the fully parsed workload file: its header plus one
// sim.Layer per layer line, in file order.
type Workload struct {
	Header Header
	Layers []*sim.Layer
}

// ParseFile parses a workload file from r.
func ParseFile(r io.Reader) (*Workload, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !scanner.Scan() {
		return nil, &sim.ConfigError{Key: "workload-file", Reason: "missing header line"}
	}
	header, err := parseHeader(scanner.Text())
	if err != nil {
		return nil, err
	}

	if !scanner.Scan() {
		return nil, &sim.ConfigError{Key: "workload-file", Reason: "missing layer count line"}
	}
	numLayers, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return nil, &sim.ConfigError{Key: "workload-file", Reason: fmt.Sprintf("invalid layer count: %v", err)}
	}

	layers := make([]*sim.Layer, 0, numLayers)
	for i := 0; i < numLayers; i++ {
		if !scanner.Scan() {
			return nil, &sim.ConfigError{Key: "workload-file", Reason: fmt.Sprintf("expected %d layer lines, got %d", numLayers, i)}
		}
		l, err := parseLayerLine(scanner.Text())
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading workload file: %w", err)
	}

	byID := make(map[int]*sim.Layer, len(layers))
	for _, l := range layers {
		byID[l.ID] = l
	}
	for _, id := range header.Checkpoints {
		if l, ok := byID[id]; ok {
			l.IsCheckpoint = true
		}
	}
	for _, id := range header.CheckpointInitiates {
		if l, ok := byID[id]; ok {
			l.NeedsRecomputeTrigger = true
		}
	}

	return &Workload{Header: *header, Layers: layers}, nil
}

func parseHeader(line string) (*Header, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, &sim.ConfigError{Key: "workload-file", Reason: "empty header line"}
	}
	h := &Header{Policy: fields[0]}
	if !validPolicies[h.Policy] {
		return nil, &sim.ConfigError{Key: "policy", Reason: fmt.Sprintf("unknown workload policy %q", h.Policy)}
	}

	i := 1
	for i < len(fields) {
		key := strings.TrimSuffix(fields[i], ":")
		switch key {
		case "model_parallel_NPU_group":
			i++
			v, err := intAt(fields, i, "model_parallel_NPU_group")
			if err != nil {
				return nil, err
			}
			h.ModelParallelNPUGroup = v
		case "ep":
			i++
			v, err := intAt(fields, i, "ep")
			if err != nil {
				return nil, err
			}
			h.EP = v
		case "pp":
			i++
			v, err := intAt(fields, i, "pp")
			if err != nil {
				return nil, err
			}
			h.PP = v
		case "vpp":
			i++
			v, err := intAt(fields, i, "vpp")
			if err != nil {
				return nil, err
			}
			h.VPP = v
		case "ga":
			i++
			v, err := intAt(fields, i, "ga")
			if err != nil {
				return nil, err
			}
			h.GA = v
		case "all_gpus":
			i++
			v, err := intAt(fields, i, "all_gpus")
			if err != nil {
				return nil, err
			}
			h.AllGPUs = v
		case "pp_comm":
			i++
			v, err := int64At(fields, i, "pp_comm")
			if err != nil {
				return nil, err
			}
			h.PPCommBytes = v
		case "checkpoints":
			i++
			count, err := intAt(fields, i, "checkpoints")
			if err != nil {
				return nil, err
			}
			h.Checkpoints, i, err = intList(fields, i+1, count, "checkpoints")
			if err != nil {
				return nil, err
			}
			continue
		case "checkpoint_initiates":
			i++
			count, err := intAt(fields, i, "checkpoint_initiates")
			if err != nil {
				return nil, err
			}
			h.CheckpointInitiates, i, err = intList(fields, i+1, count, "checkpoint_initiates")
			if err != nil {
				return nil, err
			}
			continue
		default:
			return nil, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("unknown header parameter %q", key)}
		}
		i++
	}
	return h, nil
}

func intAt(fields []string, i int, key string) (int, error) {
	if i >= len(fields) {
		return 0, &sim.ConfigError{Key: key, Reason: "missing value"}
	}
	v, err := strconv.Atoi(fields[i])
	if err != nil {
		return 0, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("invalid integer %q", fields[i])}
	}
	return v, nil
}

func int64At(fields []string, i int, key string) (int64, error) {
	if i >= len(fields) {
		return 0, &sim.ConfigError{Key: key, Reason: "missing value"}
	}
	v, err := strconv.ParseInt(fields[i], 10, 64)
	if err != nil {
		return 0, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("invalid integer %q", fields[i])}
	}
	return v, nil
}

func intList(fields []string, start, count int, key string) ([]int, int, error) {
	if start+count > len(fields) {
		return nil, 0, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("expected %d values", count)}
	}
	out := make([]int, count)
	for j := 0; j < count; j++ {
		v, err := strconv.Atoi(fields[start+j])
		if err != nil {
			return nil, 0, &sim.ConfigError{Key: key, Reason: fmt.Sprintf("invalid integer %q", fields[start+j])}
		}
		out[j] = v
	}
	return out, start + count, nil
}

// parseLayerLine parses one layer line: `id dep fp_cyc fp_kind fp_bytes
// ig_cyc ig_kind ig_bytes wg_cyc wg_kind wg_bytes wg_update
// [specific_policy]`.
func parseLayerLine(line string) (*sim.Layer, error) {
	fields := strings.Fields(line)
	if len(fields) < 12 {
		return nil, &sim.ConfigError{Key: "layer-line", Reason: fmt.Sprintf("expected at least 12 columns, got %d", len(fields))}
	}
	id, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, &sim.ConfigError{Key: "layer-line", Reason: fmt.Sprintf("invalid layer id %q", fields[0])}
	}
	dep, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, &sim.ConfigError{Key: "layer-line", Reason: fmt.Sprintf("invalid dep %q", fields[1])}
	}

	l := sim.NewLayer(id, dep)

	fwdSpec, err := parsePhaseSpec(fields[2], fields[3], fields[4])
	if err != nil {
		return nil, err
	}
	l.Phases[sim.PhaseForward] = fwdSpec

	igSpec, err := parsePhaseSpec(fields[5], fields[6], fields[7])
	if err != nil {
		return nil, err
	}
	l.Phases[sim.PhaseInputGrad] = igSpec

	wgSpec, err := parsePhaseSpec(fields[8], fields[9], fields[10])
	if err != nil {
		return nil, err
	}
	l.Phases[sim.PhaseWeightGrad] = wgSpec

	update, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return nil, &sim.ConfigError{Key: "wg_update", Reason: fmt.Sprintf("invalid value %q", fields[11])}
	}
	l.WeightGradUpdateTime = update

	return l, nil
}

func parsePhaseSpec(cycStr, kindStr, bytesStr string) (sim.PhaseSpec, error) {
	cycles, err := strconv.ParseInt(cycStr, 10, 64)
	if err != nil {
		return sim.PhaseSpec{}, &sim.ConfigError{Key: "compute-cycles", Reason: fmt.Sprintf("invalid value %q", cycStr)}
	}
	kind, group, err := parseCollectiveKind(kindStr)
	if err != nil {
		return sim.PhaseSpec{}, err
	}
	bytes, err := strconv.ParseInt(bytesStr, 10, 64)
	if err != nil {
		return sim.PhaseSpec{}, &sim.ConfigError{Key: "bytes", Reason: fmt.Sprintf("invalid value %q", bytesStr)}
	}
	// InvolvedDims is set to "every physical dimension participates";
	// nothing downstream narrows this mask, so every parsed collective
	// spans all of the topology's dimensions.
	return sim.PhaseSpec{ComputeCycles: cycles, Collective: kind, InvolvedDims: ^uint64(0), Bytes: bytes, Group: group}, nil
}

func parseCollectiveKind(s string) (sim.CollectiveKind, sim.GroupKind, error) {
	base := s
	group := sim.GroupTP
	switch {
	case strings.HasSuffix(s, "_DP_EP"):
		base = strings.TrimSuffix(s, "_DP_EP")
		group = sim.GroupDPEP
	case strings.HasSuffix(s, "_EP"):
		base = strings.TrimSuffix(s, "_EP")
		group = sim.GroupEP
	}
	switch base {
	case "NONE":
		return sim.CollectiveNone, group, nil
	case "ALLREDUCE":
		return sim.CollectiveAllReduce, group, nil
	case "ALLGATHER":
		return sim.CollectiveAllGather, group, nil
	case "REDUCESCATTER":
		return sim.CollectiveReduceScatter, group, nil
	case "ALLTOALL":
		return sim.CollectiveAllToAll, group, nil
	default:
		return 0, 0, &sim.ConfigError{Key: "collective-kind", Reason: fmt.Sprintf("unknown collective kind %q", s)}
	}
}
