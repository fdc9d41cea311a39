package dispatch

// State is the dispatcher's position in the Idle → Debouncing → InFlight cycle.
type State int

const (
	// Idle has no pending turn and no outstanding call.
	Idle State = iota
	// Debouncing holds one pending turn until the debounce timer fires.
	Debouncing
	// InFlight has exactly one backend call outstanding and at most one
	// queued turn.
	InFlight
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Debouncing:
		return "debouncing"
	case InFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}
