package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every stream and phase lifecycle record.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects stream and phase lifecycle records during a
// run.
type SimulationTrace struct {
	Config  TraceConfig
	Streams []StreamRecord
	Phases  []PhaseRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:  config,
		Streams: make([]StreamRecord, 0),
		Phases:  make([]PhaseRecord, 0),
	}
}

// RecordStream appends a stream lifecycle record. A no-op when the
// trace level is none, so call sites need not check the level
// themselves.
func (st *SimulationTrace) RecordStream(record StreamRecord) {
	if st.Config.Level != TraceLevelDecisions {
		return
	}
	st.Streams = append(st.Streams, record)
}

// RecordPhase appends a phase lifecycle record.
func (st *SimulationTrace) RecordPhase(record PhaseRecord) {
	if st.Config.Level != TraceLevelDecisions {
		return
	}
	st.Phases = append(st.Phases, record)
}
