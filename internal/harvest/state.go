package harvest

// State is the phase a harvest run is in.
type State int

// Run states, in order.
const (
	StateInit State = iota
	StateWindowing
	StatePaginating
	StateDraining
	StateCheckpointing
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateWindowing:
		return "windowing"
	case StatePaginating:
		return "paginating"
	case StateDraining:
		return "draining"
	case StateCheckpointing:
		return "checkpointing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}
