package sim

// ClockPeriod converts nanoseconds read from the network backend's time
// authority into simulation cycles. The node reads wall time through a
// single now() boundary (Sys.Now) and never touches the backend clock
// directly (Design Note §9: Time authority).
const ClockPeriod int64 = 1 // 1 cycle == 1 ns in the default backend

// cyclesFromNanos converts a backend timestamp in nanoseconds to cycles.
func cyclesFromNanos(ns int64) int64 {
	return ns / ClockPeriod
}
