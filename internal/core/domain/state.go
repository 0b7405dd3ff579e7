package domain

type CoordinatorState int32

const (
	StateUninitialized CoordinatorState = iota
	StateInitializing
	StateReady
	StateDegraded
	StateSetupFailed
	StateShuttingDown
)

func (s CoordinatorState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateSetupFailed:
		return "setup_failed"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Available is true while a snapshot is being served, stale or not.
func (s CoordinatorState) Available() bool {
	return s == StateReady || s == StateDegraded
}

type UpdateOutcome int

const (
	OutcomeUpdated UpdateOutcome = iota
	OutcomeFailed
	OutcomeShutdown
)

func (o UpdateOutcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeFailed:
		return "failed"
	case OutcomeShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// CoordinatorUpdate is published once per cycle outcome, and once on teardown.
type CoordinatorUpdate struct {
	Coordinator string
	Outcome     UpdateOutcome
	State       CoordinatorState
	Snapshot    *Snapshot
	// Changed is false when a successful cycle produced records equal to the
	// previous snapshot.
	Changed bool
	Err     error
}
