package session

// State is the lifecycle state of one client context's session.
type State int32

const (
	// StateUninitialized: no validation has run yet.
	StateUninitialized State = iota

	// StateValid: the last validation pass succeeded.
	StateValid

	// StateInvalid: validation failed; teardown is running or about
	// to run.
	StateInvalid

	// StateTornDown: session state has been cleared. Terminal until
	// the next login or restoration.
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	case StateTornDown:
		return "torn_down"
	}
	return "unknown"
}
