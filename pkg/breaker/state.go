package breaker

// State is the breaker's position in the Closed, Open, HalfOpen cycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Outcome is how a call result counts toward the breaker's health.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Ignore
)

// Classifier maps a call's error to an Outcome.
type Classifier func(err error) Outcome
