package capture

// State is the pipeline lifecycle position
type State int

const (
	Idle State = iota
	Preparing
	Recording
	Finalizing
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Active reports whether a session owns the pipeline in this state
func (s State) Active() bool {
	return s == Preparing || s == Recording || s == Finalizing
}
