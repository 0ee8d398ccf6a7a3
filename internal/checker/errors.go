package checker

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckerUnavailable means the checker process could not be reached:
	// it failed to start, exited, or its stream broke.
	ErrCheckerUnavailable = errors.New("checker unavailable")

	// ErrCheckerTimeout means the checker did not answer within the call timeout.
	ErrCheckerTimeout = errors.New("checker timeout")
)

// ProtocolError reports a response the REPL protocol decoder could not parse.
// It unwraps to ErrCheckerUnavailable: a session that speaks garbage is unusable.
type ProtocolError struct {
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("checker protocol error: %v (response %q)", e.Err, truncate(e.Raw, 200))
}

func (e *ProtocolError) Unwrap() []error {
	return []error{ErrCheckerUnavailable, e.Err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
