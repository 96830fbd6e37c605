package sandbox

// Result is what Execute hands back to the engine: the realized value plus
// captured stdout, the per-call error (if any), wall-clock duration, and the
// timeout flag — the flat shape spec.md §4.2 names exactly
// ({result, stdout, error?, duration-ms, timed-out}).
type Result struct {
	Value      any
	Stdout     string
	Error      string
	DurationMs int64
	TimedOut   bool

	// Captured holds the top-level names newly defined during this
	// execution (the before/after name-table diff). The caller merges
	// these into the environment's Locals map.
	Captured map[string]Value
}
