package interview

import "fmt"

// State is a step of the per-connection interview loop.
type State int

const (
	AwaitAnswer State = iota
	Transcribing
	Triaging
	Selecting
	Synthesizing
	Ended
)

func (s State) String() string {
	switch s {
	case AwaitAnswer:
		return "await_answer"
	case Transcribing:
		return "transcribing"
	case Triaging:
		return "triaging"
	case Selecting:
		return "selecting"
	case Synthesizing:
		return "synthesizing"
	case Ended:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal successors of every state. Every state may
// also move to Ended.
var transitions = map[State][]State{
	AwaitAnswer:  {Transcribing},
	Transcribing: {Triaging, Synthesizing},
	Triaging:     {Selecting},
	Selecting:    {Synthesizing},
	Synthesizing: {AwaitAnswer},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if from == Ended {
		return false
	}
	if to == Ended {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine tracks the current state of one connection.
type machine struct {
	state State
	trace func(from, to State)
}

func (m *machine) to(next State) error {
	if !CanTransition(m.state, next) {
		return fmt.Errorf("illegal transition %s -> %s", m.state, next)
	}
	if m.trace != nil {
		m.trace(m.state, next)
	}
	m.state = next
	return nil
}
