package daemon

const (
	StateExit State = iota
	StateInit
	StateIdle
	StateRun
	StateStop
)

type State uint8

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateIdle:
		return "idle"
	case StateRun:
		return "run"
	case StateStop:
		return "stop"
	case StateExit:
		return "exit"
	default:
		return "unknown"
	}
}

// StateUpdate reflects any given update of lifecycle state at a given time.
type StateUpdate struct {
	Name  string
	State State
}

// States is a map of service name to service state which
// reflects the service name and its lifecycle state.
type States map[string]State

func (s States) copy() States {
	c := make(States, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}
