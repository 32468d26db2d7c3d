package pipeline

import (
	"errors"
	"fmt"
)

// State is the stage a run is in.
type State string

const (
	Fetching   State = "fetching"
	Formatting State = "formatting"
	Rendering  State = "rendering"
	Publishing State = "publishing"
	Done       State = "done"
	Failed     State = "failed"
)

var ErrInvalidTransition = errors.New("invalid state transition")

var stateOrder = map[State]int{
	Fetching:   0,
	Formatting: 1,
	Rendering:  2,
	Publishing: 3,
	Done:       4,
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Run tracks the state of a single pipeline execution. States only move forward.
type Run struct {
	state   State
	history []State
}

func NewRun() *Run {
	return &Run{state: Fetching, history: []State{Fetching}}
}

func (r *Run) State() State { return r.state }

// History returns every state the run has been in, in order.
func (r *Run) History() []State {
	return append([]State(nil), r.history...)
}

// Transition moves the run to the next state. Failed is reachable from any
// non-terminal state; Done only from Publishing.
func (r *Run) Transition(to State) error {
	from := r.state
	switch {
	case from.Terminal():
	case to == Failed:
		return r.set(to)
	case to == Done:
		if from == Publishing {
			return r.set(to)
		}
	default:
		toOrder, known := stateOrder[to]
		if known && toOrder > stateOrder[from] {
			return r.set(to)
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

func (r *Run) set(to State) error {
	r.state = to
	r.history = append(r.history, to)
	return nil
}
