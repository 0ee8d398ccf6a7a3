package prover

import (
	"time"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/transcript"
)

// Attempt is the audit record of one proof search, kept whatever the outcome.
type Attempt struct {
	ID     string `json:"id"`
	Task   Task   `json:"task"`
	State  State  `json:"state"`
	Reason Reason `json:"reason,omitempty"`
	Err    error  `json:"-"`
	Steps  int    `json:"steps"`
	// Source is the last proof snippet submitted, or the task code before any.
	Source     string                `json:"source"`
	Feedback   *checker.Feedback     `json:"feedback,omitempty"`
	Transcript transcript.Transcript `json:"transcript"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	History    []Step                `json:"history"`
}

// Error returns the failure message, or "" for a successful attempt.
func (a *Attempt) Error() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// Duration is the wall time of a finished attempt.
func (a *Attempt) Duration() time.Duration {
	if a.FinishedAt.IsZero() {
		return time.Since(a.StartedAt)
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// Step records one oracle round trip and its check.
type Step struct {
	Index    int               `json:"index"`
	State    State             `json:"state"`
	Source   string            `json:"source,omitempty"`
	Feedback *checker.Feedback `json:"feedback,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Event is emitted on every state transition.
type Event struct {
	AttemptID string    `json:"attempt_id"`
	Step      int       `json:"step"`
	State     State     `json:"state"`
	Reason    Reason    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Observer receives transition events synchronously; it must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to several observers in order.
type Observers []Observer

// Observe forwards e to every non-nil observer.
func (obs Observers) Observe(e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(e)
		}
	}
}
