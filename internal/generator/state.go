package generator

import "fmt"

// State is the phase a pipeline run is in.
type State int

const (
	StateIdle State = iota
	StateChunking
	StateMapping
	StateCombining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChunking:
		return "chunking"
	case StateMapping:
		return "mapping"
	case StateCombining:
		return "combining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StageError records the phase a failed run stopped in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
