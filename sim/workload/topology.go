package workload

import (
	"fmt"
	"io"

	sim "github.com/collsim/collsim/sim"
	"gopkg.in/yaml.v3"
)

// topologyFile is the YAML topology-file shape. Example:
//
//	dims: [8, 4]
//	operations:
//	  allreduce:
//	    - {topology: ring, algorithm: ring}
//	    - {topology: doubleBinaryTree, algorithm: doubleBinaryTree}
type topologyFile struct {
	Dims       []int                          `yaml:"dims"`
	Operations map[string][]topologyDimEntry  `yaml:"operations"`
}

type topologyDimEntry struct {
	Topology  string `yaml:"topology"`
	Algorithm string `yaml:"algorithm"`
}

// ParsedTopology is the fully resolved topology file: the physical
// dimension vector plus one TopologyKind and one AlgorithmKind string
// per dimension per operation.
type ParsedTopology struct {
	Dims            []int
	TopoByOp        map[sim.CollectiveKind][]sim.TopologyKind
	AlgoStringByOp  map[sim.CollectiveKind]string
}

var opNameToKind = map[string]sim.CollectiveKind{
	"allreduce":     sim.CollectiveAllReduce,
	"allgather":     sim.CollectiveAllGather,
	"reducescatter": sim.CollectiveReduceScatter,
	"alltoall":      sim.CollectiveAllToAll,
}

func parseTopologyKind(s string) (sim.TopologyKind, error) {
	switch s {
	case "ring":
		return sim.TopologyRing, nil
	case "binaryTree":
		return sim.TopologyBinaryTree, nil
	case "doubleBinaryTree":
		return sim.TopologyDoubleBinaryTree, nil
	case "direct":
		return sim.TopologyDirect, nil
	default:
		return 0, &sim.ConfigError{Key: "topology", Reason: fmt.Sprintf("unknown topology kind %q", s)}
	}
}

// ParseTopologyFile parses a topology YAML file from r.
func ParseTopologyFile(r io.Reader) (*ParsedTopology, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading topology file: %w", err)
	}
	var tf topologyFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, &sim.ConfigError{Key: "topology-file", Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}
	if len(tf.Dims) == 0 {
		return nil, &sim.ConfigError{Key: "dims", Reason: "topology file must declare at least one dimension"}
	}

	pt := &ParsedTopology{
		Dims:           tf.Dims,
		TopoByOp:       make(map[sim.CollectiveKind][]sim.TopologyKind, len(tf.Operations)),
		AlgoStringByOp: make(map[sim.CollectiveKind]string, len(tf.Operations)),
	}
	for opName, entries := range tf.Operations {
		op, ok := opNameToKind[opName]
		if !ok {
			return nil, &sim.ConfigError{Key: "operations", Reason: fmt.Sprintf("unknown operation %q", opName)}
		}
		if len(entries) != len(tf.Dims) {
			return nil, &sim.ConfigError{Key: opName, Reason: fmt.Sprintf(
				"operation %q has %d dimension entries but %d dims declared", opName, len(entries), len(tf.Dims))}
		}
		kinds := make([]sim.TopologyKind, len(entries))
		algoParts := make([]string, len(entries))
		for i, e := range entries {
			k, err := parseTopologyKind(e.Topology)
			if err != nil {
				return nil, err
			}
			kinds[i] = k
			algoParts[i] = e.Algorithm
		}
		pt.TopoByOp[op] = kinds
		pt.AlgoStringByOp[op] = joinUnderscore(algoParts)
	}
	return pt, nil
}

func joinUnderscore(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "_"
		}
		out += p
	}
	return out
}
