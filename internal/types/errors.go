package types

import "fmt"

// NotFoundError is returned when a structurally required document (run,
// cycle, bet, flavor, stage) does not exist.
type NotFoundError struct {
	// Kind names the missing entity (e.g., "run", "cycle").
	Kind string

	// ID is the identifier that failed to resolve.
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ValidationError is returned when a document violates its schema, a budget
// would overflow, or a kata assignment is malformed. Writes failing
// validation never persist any bytes.
type ValidationError struct {
	// Field is the offending field, when one can be named.
	Field string

	// Message describes the violation.
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// OrchestratorError is returned for pipeline-level failures: an empty
// category list, a category with no registered flavor, or an executor
// failure (wrapped verbatim).
type OrchestratorError struct {
	// Stage is the category being executed when the failure occurred,
	// empty for pre-flight validation failures.
	Stage string

	// Message describes the failure.
	Message string

	// Err is the underlying executor error, if any.
	Err error
}

func (e *OrchestratorError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("pipeline stage %q: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("pipeline: %s", e.Message)
}

func (e *OrchestratorError) Unwrap() error { return e.Err }

// GateEvaluationError is returned when a command-passes condition cannot
// spawn its process at all. A spawned command that exits non-zero is a
// failed condition, not this error.
type GateEvaluationError struct {
	// Command is the shell command that could not be evaluated.
	Command string

	// Err is the underlying spawn or timeout error.
	Err error
}

func (e *GateEvaluationError) Error() string {
	return fmt.Sprintf("gate command %q could not be evaluated: %v", e.Command, e.Err)
}

func (e *GateEvaluationError) Unwrap() error { return e.Err }

// StateTransitionError is returned when a cycle lifecycle move is illegal,
// such as starting an already-active cycle.
type StateTransitionError struct {
	// CycleID is the cycle whose transition was rejected.
	CycleID string

	// From is the current state.
	From CycleState

	// To is the requested state.
	To CycleState
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cycle %s: illegal transition %s -> %s", e.CycleID, e.From, e.To)
}
