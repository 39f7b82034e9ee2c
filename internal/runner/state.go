package runner

import "fmt"

// State is the per-form lifecycle. Failed loops back to Filling until the
// retry cap, then the target lands in Exhausted; Closed is terminal on
// first sight.
type State int

const (
	StatePending State = iota
	StateFilling
	StateAwaitingSubmitWindow
	StateSubmitting
	StateSucceeded
	StateFailed
	StateClosed
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFilling:
		return "filling"
	case StateAwaitingSubmitWindow:
		return "awaiting-submit-window"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// terminal reports whether no further transition may leave s.
func (s State) terminal() bool {
	return s == StateSucceeded || s == StateClosed || s == StateExhausted
}

var validNext = map[State][]State{
	StatePending:              {StateFilling, StateFailed},
	StateFilling:              {StateAwaitingSubmitWindow, StateSubmitting, StateFailed, StateClosed},
	StateAwaitingSubmitWindow: {StateSubmitting, StateFailed, StateClosed},
	StateSubmitting:           {StateSucceeded, StateFailed, StateClosed},
	StateFailed:               {StateFilling, StateExhausted},
}

// advance moves to next, returning an error on an illegal transition.
// Illegal transitions indicate a controller bug, not a form problem.
func (s State) advance(next State) (State, error) {
	for _, ok := range validNext[s] {
		if next == ok {
			return next, nil
		}
	}
	return s, fmt.Errorf("illegal state transition %s -> %s", s, next)
}
