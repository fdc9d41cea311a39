package transcript

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a transcript line.
type State int

const (
	// StateInterim - text may still be replaced.
	StateInterim State = iota
	// StateFinal - text is fixed and the line is in the window.
	StateFinal
	// StateAbandoned - superseded before a final result arrived.
	StateAbandoned
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInterim:
		return "INTERIM"
	case StateFinal:
		return "FINAL"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the line can no longer change.
func (s State) IsTerminal() bool {
	return s == StateFinal || s == StateAbandoned
}

// Errors for invalid line transitions.
var (
	ErrLineFinal     = errors.New("line is already final")
	ErrLineAbandoned = errors.New("line was abandoned")
)

// Lifecycle guards the transitions of one line:
//
//	INTERIM ──Update()──> INTERIM
//	INTERIM ──Finalize()──> FINAL
//	INTERIM ──Abandon()──> ABANDONED
//
// FINAL and ABANDONED are terminal.
type Lifecycle struct {
	state State
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return l.state
}

// Update validates an interim text replacement.
func (l *Lifecycle) Update() error {
	return l.check()
}

// Finalize transitions to FINAL.
func (l *Lifecycle) Finalize() error {
	if err := l.check(); err != nil {
		return err
	}
	l.state = StateFinal
	return nil
}

// Abandon transitions to ABANDONED. Returns false if already terminal.
func (l *Lifecycle) Abandon() bool {
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateAbandoned
	return true
}

func (l *Lifecycle) check() error {
	switch l.state {
	case StateInterim:
		return nil
	case StateFinal:
		return ErrLineFinal
	case StateAbandoned:
		return ErrLineAbandoned
	default:
		return fmt.Errorf("unexpected state: %v", l.state)
	}
}
