package update

import "fmt"

// State is a step of an update session.
type State int

const (
	Idle State = iota
	CheckingVersion
	UpToDate
	UpdateAvailable
	AwaitingConfirmation
	Cancelled
	Downloading
	Verifying
	BackingUp
	Installing
	Success
	Failed
	RollingBack
	RolledBack
	RollbackFailed
)

var stateNames = [...]string{
	Idle:                 "Idle",
	CheckingVersion:      "CheckingVersion",
	UpToDate:             "UpToDate",
	UpdateAvailable:      "UpdateAvailable",
	AwaitingConfirmation: "AwaitingConfirmation",
	Cancelled:            "Cancelled",
	Downloading:          "Downloading",
	Verifying:            "Verifying",
	BackingUp:            "BackingUp",
	Installing:           "Installing",
	Success:              "Success",
	Failed:               "Failed",
	RollingBack:          "RollingBack",
	RolledBack:           "RolledBack",
	RollbackFailed:       "RollbackFailed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether a session may end in s. Failed is terminal only
// when no backup exists yet; otherwise it is followed by RollingBack.
func (s State) Terminal() bool {
	switch s {
	case UpToDate, Cancelled, Success, Failed, RolledBack, RollbackFailed:
		return true
	default:
		return false
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	Idle:                 {CheckingVersion},
	CheckingVersion:      {UpToDate, UpdateAvailable, Failed},
	UpdateAvailable:      {AwaitingConfirmation, Downloading},
	AwaitingConfirmation: {Cancelled, Downloading},
	Downloading:          {Verifying, Cancelled, Failed},
	Verifying:            {BackingUp, Cancelled, Failed},
	BackingUp:            {Installing, Failed},
	Installing:           {Success, Failed},
	Failed:               {RollingBack},
	RollingBack:          {RolledBack, RollbackFailed},
}

// CanTransition reports whether a session may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// MarshalText renders the state by name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
