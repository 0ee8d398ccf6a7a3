package prover

import (
	"fmt"

	"github.com/ashureev/sagredo/internal/prompts"
)

// TaskKind selects the seed prompt shape.
type TaskKind string

const (
	KindContinue                       TaskKind = "continue"
	KindAutoformalizeProof             TaskKind = "autoformalize-proof"
	KindAutoformalizeStatementAndProof TaskKind = "autoformalize-statement-and-proof"
)

// Task is what a proof attempt starts from.
type Task struct {
	Kind TaskKind `json:"kind" yaml:"kind"`
	// Code is the initial proof-language template.
	Code string `json:"code" yaml:"code"`
	// Statement and Proof are the natural-language theorem and proof used by
	// the autoformalization kinds.
	Statement string `json:"statement,omitempty" yaml:"statement,omitempty"`
	Proof     string `json:"proof,omitempty" yaml:"proof,omitempty"`
	// Preamble is a header (imports, opens, helper definitions) elaborated
	// once; snippets that start with it are checked incrementally.
	Preamble string `json:"preamble,omitempty" yaml:"preamble,omitempty"`
}

// Validate checks that the task has what its kind needs.
func (t Task) Validate() error {
	switch t.Kind {
	case KindContinue:
		if t.Code == "" {
			return fmt.Errorf("task %s: code is required", t.Kind)
		}
	case KindAutoformalizeProof, KindAutoformalizeStatementAndProof:
		if t.Statement == "" {
			return fmt.Errorf("task %s: statement is required", t.Kind)
		}
	default:
		return fmt.Errorf("unknown task kind %q", t.Kind)
	}
	return nil
}

// SeedPrompt renders the first user turn for the task.
func (t Task) SeedPrompt() string {
	switch t.Kind {
	case KindAutoformalizeProof:
		return prompts.AutoformalizeProof(t.Statement, t.Proof, t.Code)
	case KindAutoformalizeStatementAndProof:
		return prompts.AutoformalizeStatementAndProof(t.Statement, t.Proof, t.Code)
	default:
		return prompts.ContinueProof(t.Code)
	}
}
