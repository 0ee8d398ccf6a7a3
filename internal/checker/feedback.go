// Package checker talks to an external Lean REPL that elaborates source
// snippets and reports diagnostics, outstanding goals, and environment handles.
package checker

import (
	"context"
	"fmt"
	"strings"
)

// Client submits proof-language source to a checker.
// Implementations never retry; the caller decides what to do with a failure.
type Client interface {
	// RunCode elaborates source, on top of env when env is non-nil and valid.
	RunCode(ctx context.Context, source string, env *Env) (*Feedback, error)
}

// Severity of a checker message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position is a 1-based line and 0-based column in the submitted source.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

func (p *Position) String() string {
	if p == nil {
		return "?"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Message is one diagnostic reported by the checker.
type Message struct {
	Severity Severity  `json:"severity"`
	Data     string    `json:"data"`
	Pos      *Position `json:"pos,omitempty"`
	EndPos   *Position `json:"endPos,omitempty"`
}

// Sorry is an outstanding goal left behind by a placeholder.
type Sorry struct {
	Goal   string    `json:"goal"`
	Pos    *Position `json:"pos,omitempty"`
	EndPos *Position `json:"endPos,omitempty"`
}

// Env is an opaque handle to a checker elaboration state. Passing it back to
// RunCode makes the checker elaborate new source on top of the old one.
// Only this package can create or read an Env.
type Env struct {
	id    int
	valid bool
}

// Valid reports whether the handle came from a checker response.
func (e Env) Valid() bool {
	return e.valid
}

func newEnv(id int) Env {
	return Env{id: id, valid: true}
}

// Feedback is the structured result of one checker invocation.
type Feedback struct {
	Messages []Message `json:"messages"`
	Sorries  []Sorry   `json:"sorries"`
	Env      Env       `json:"-"`
}

// HasErrors reports whether any message has error severity.
func (f *Feedback) HasErrors() bool {
	for _, m := range f.Messages {
		if m.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the error-severity messages in order.
func (f *Feedback) Errors() []Message {
	var errs []Message
	for _, m := range f.Messages {
		if m.Severity == SeverityError {
			errs = append(errs, m)
		}
	}
	return errs
}

// Goals returns the goal text of every outstanding sorry, in order.
func (f *Feedback) Goals() []string {
	goals := make([]string, 0, len(f.Sorries))
	for _, s := range f.Sorries {
		goals = append(goals, s.Goal)
	}
	return goals
}

// Clean reports whether the feedback has no messages and no sorries.
func (f *Feedback) Clean() bool {
	return len(f.Messages) == 0 && len(f.Sorries) == 0
}

// Summary renders messages as "line:col: severity: data", one per line.
func (f *Feedback) Summary() string {
	var b strings.Builder
	for i, m := range f.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s: %s", m.Pos, m.Severity, m.Data)
	}
	return b.String()
}
