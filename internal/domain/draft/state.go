package draft

import "fmt"

// TurnState is the per-turn state machine driving the reject/regenerate loop.
// Terminal states are Accepted and Escalated; the orchestrator's retry budget
// guarantees every turn reaches one of them.
type TurnState string

const (
	StatePending      TurnState = "pending"
	StateValidating   TurnState = "validating"
	StateRejected     TurnState = "rejected"
	StateRegenerating TurnState = "regenerating"
	StateAccepted     TurnState = "accepted"
	StateEscalated    TurnState = "escalated"
)

// transitions lists the legal moves of the state machine.
var transitions = map[TurnState][]TurnState{
	StatePending:      {StateValidating, StateEscalated},
	StateValidating:   {StateAccepted, StateRejected, StateEscalated},
	StateRejected:     {StateRegenerating, StateEscalated},
	StateRegenerating: {StateValidating, StateEscalated},
	StateAccepted:     {},
	StateEscalated:    {},
}

// Terminal reports whether no further transitions are possible.
func (s TurnState) Terminal() bool {
	return s == StateAccepted || s == StateEscalated
}

// CanTransition reports whether moving from s to next is legal.
func (s TurnState) CanTransition(next TurnState) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Transition returns next if the move is legal, or an error naming the
// illegal edge so state bugs surface loudly instead of corrupting a turn.
func (s TurnState) Transition(next TurnState) (TurnState, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("illegal turn transition %s -> %s", s, next)
	}
	return next, nil
}
