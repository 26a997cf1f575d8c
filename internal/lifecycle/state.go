package lifecycle

// State is a Controller's position in its lifecycle.
type State int

const (
	// Running accepts steps and may snapshot on each one.
	Running State = iota
	// Finalizing is the window in which the final step is recorded and the
	// report written.
	Finalizing
	// Finalized ignores further steps.
	Finalized
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Finalizing:
		return "finalizing"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}
