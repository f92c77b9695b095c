package valueobjects

// SessionState represents the lifecycle state of a metered session.
type SessionState string

const (
	StateOpening SessionState = "opening"
	StateActive  SessionState = "active"
	StateEnding  SessionState = "ending"
	StateSettled SessionState = "settled"
	StateFailed  SessionState = "failed"
)

// ValidStates is the set of recognized session states.
var ValidStates = map[SessionState]bool{
	StateOpening: true,
	StateActive:  true,
	StateEnding:  true,
	StateSettled: true,
	StateFailed:  true,
}

var transitions = map[SessionState][]SessionState{
	StateOpening: {StateActive, StateFailed},
	StateActive:  {StateEnding, StateFailed},
	StateEnding:  {StateSettled, StateFailed},
	StateSettled: {},
	StateFailed:  {},
}

func (s SessionState) String() string {
	return string(s)
}

// IsValid reports whether the state is one of the recognized states.
func (s SessionState) IsValid() bool {
	return ValidStates[s]
}

// IsTerminal reports whether the state admits no further transitions.
func (s SessionState) IsTerminal() bool {
	return s == StateSettled || s == StateFailed
}

// CanTransitionTo reports whether the state machine permits moving to target.
func (s SessionState) CanTransitionTo(target SessionState) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// CanSendMessage reports whether the session accepts message sends.
func (s SessionState) CanSendMessage() bool {
	return s == StateActive
}
