// Package prover drives one proof attempt: it alternates between asking the
// oracle for the next step and asking the checker to validate it.
package prover

import "errors"

// State is a position in the proof search state machine.
type State string

const (
	StateInit           State = "INIT"
	StateAwaitingOracle State = "AWAITING_ORACLE"
	StateAwaitingCheck  State = "AWAITING_CHECK"
	StateContinue       State = "CONTINUE"
	StateStuckSorry     State = "STUCK_SORRY"
	StateComplete       State = "COMPLETE"
	StateFailed         State = "FAILED"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Reason explains a FAILED attempt.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonOracleUnavailable  Reason = "OracleUnavailable"
	ReasonCheckerUnavailable Reason = "CheckerUnavailable"
	ReasonCheckerTimeout     Reason = "CheckerTimeout"
	ReasonStepLimitExceeded  Reason = "StepLimitExceeded"
	ReasonCancelled          Reason = "Cancelled"
)

var (
	// ErrStepLimitExceeded means the attempt used every step without a proof.
	ErrStepLimitExceeded = errors.New("step limit exceeded")

	// ErrCancelled means the caller cancelled the attempt between steps.
	ErrCancelled = errors.New("attempt cancelled")

	// ErrNoCodeBlockFound means a completion had no fenced proof snippet.
	// The controller recovers by re-prompting.
	ErrNoCodeBlockFound = errors.New("no code block found")
)
