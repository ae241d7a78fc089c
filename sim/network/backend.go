// Package network models the packet-level transport a Sys hands sends
// to. The backend owns the wire-time calculation; Sys owns scheduling
// the resulting completion events on its own EventQueue (Design Note
// §9: the simulated clock boundary is crossed exactly once, at Sys.now()).
package network

// Backend computes wire time for one message. Real deployments can
// swap in a fabric-topology-aware model; MockBackend below implements
// the flat LogGP-style approximation used by default.
type Backend interface {
	// TransferDelay returns the cycles a message of the given size takes
	// to move from src to dst, not including the endpoint/gap cost the
	// CollectiveAlgorithm already charges on its own side.
	TransferDelay(src, dst int64, bytes int64) int64
}

// Config parameterizes MockBackend's flat bandwidth/latency model.
type Config struct {
	LatencyCycles      int64   // fixed per-message wire latency
	BandwidthInvCycles float64 // cycles per byte
}

// MockBackend is a topology-agnostic reference Backend: every link has
// the same latency and bandwidth regardless of src/dst.
type MockBackend struct {
	cfg Config
}

// NewMockBackend constructs a MockBackend from the given flat link
// parameters.
func NewMockBackend(cfg Config) *MockBackend {
	return &MockBackend{cfg: cfg}
}

func (b *MockBackend) TransferDelay(src, dst int64, bytes int64) int64 {
	return b.cfg.LatencyCycles + int64(float64(bytes)*b.cfg.BandwidthInvCycles)
}
