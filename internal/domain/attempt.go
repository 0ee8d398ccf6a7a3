package domain

import (
	"time"

	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/transcript"
)

// AttemptRecord is an archived proof attempt.
type AttemptRecord struct {
	ID         string                `json:"id" yaml:"id"`
	Name       string                `json:"name,omitempty" yaml:"name,omitempty"`
	Task       prover.Task           `json:"task" yaml:"task"`
	State      prover.State          `json:"state" yaml:"state"`
	Reason     prover.Reason         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error      string                `json:"error,omitempty" yaml:"error,omitempty"`
	Steps      int                   `json:"steps" yaml:"steps"`
	Source     string                `json:"source" yaml:"source"`
	Transcript transcript.Transcript `json:"transcript" yaml:"transcript"`
	History    []prover.Step         `json:"history,omitempty" yaml:"history,omitempty"`
	StartedAt  time.Time             `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// NewAttemptRecord snapshots a controller attempt for archiving.
func NewAttemptRecord(name string, a *prover.Attempt) *AttemptRecord {
	return &AttemptRecord{
		ID:         a.ID,
		Name:       name,
		Task:       a.Task,
		State:      a.State,
		Reason:     a.Reason,
		Error:      a.Error(),
		Steps:      a.Steps,
		Source:     a.Source,
		Transcript: a.Transcript,
		History:    append([]prover.Step(nil), a.History...),
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
	}
}

// Proved reports whether the attempt ended in COMPLETE.
func (r *AttemptRecord) Proved() bool {
	return r.State == prover.StateComplete
}

// Duration returns the wall time of a finished attempt, or zero.
func (r *AttemptRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AttemptSummary is the list view of an archived attempt.
type AttemptSummary struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Kind       prover.TaskKind `json:"kind"`
	State      prover.State    `json:"state"`
	Reason     prover.Reason   `json:"reason,omitempty"`
	Steps      int             `json:"steps"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}
