package panel

import (
	"errors"
	"fmt"
)

// State is a navigator state.
type State string

const (
	// StateClosed has no surface. Only OpenChat and OpenWizard leave it.
	StateClosed State = "CLOSED"
	// StateChat shows the chat transcript.
	StateChat State = "CHAT"
	// StateDetecting is the monitoring hub; the poller runs only here.
	StateDetecting State = "DETECTING"
	// StateStart asks whether to analyze the problems the poller found.
	StateStart State = "START"
	// StateProgress races the analysis against the progress countdown.
	StateProgress State = "PROGRESS"
	// StateSuggestion shows the paginated analysis or the still-processing placeholder.
	StateSuggestion State = "SUGGESTION"
)

// ErrInvalidTransition is returned for a transition the table does not allow.
var ErrInvalidTransition = errors.New("invalid panel transition")

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// View returns the surface kind shown in s, or "none".
func (s State) View() string {
	switch s {
	case StateChat:
		return "chat"
	case StateDetecting:
		return "analysisHub"
	case StateStart:
		return "alertPrompt"
	case StateProgress:
		return "progress"
	case StateSuggestion:
		return "suggestion"
	default:
		return "none"
	}
}

// TransitionTable lists the allowed next states of each state.
type TransitionTable map[State][]State

// transitions is the single source of truth for navigator moves. Every non-closed state
// can reach Chat and Detecting because OpenChat and OpenWizard replace whatever is shown.
var transitions = TransitionTable{
	StateClosed:     {StateChat, StateDetecting},
	StateChat:       {StateDetecting, StateClosed},
	StateDetecting:  {StateStart, StateChat, StateClosed},
	StateStart:      {StateProgress, StateDetecting, StateChat, StateClosed},
	StateProgress:   {StateSuggestion, StateDetecting, StateChat, StateClosed},
	StateSuggestion: {StateDetecting, StateChat, StateClosed},
}

// ValidNextStates returns the allowed next states for from.
func ValidNextStates(from State) []State {
	return transitions[from]
}

// IsValidTransition reports whether the table allows from -> to.
func IsValidTransition(from, to State) bool {
	for _, s := range ValidNextStates(from) {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !IsValidTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}
