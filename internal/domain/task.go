// Package domain contains core domain types for the prover application.
package domain

import (
	"fmt"

	"github.com/ashureev/sagredo/internal/prover"
)

// ProofTask is a named proof task as read from task files or the API.
type ProofTask struct {
	Name        string `json:"name" yaml:"name"`
	prover.Task `yaml:",inline"`
}

// Validate checks the task name and the underlying task.
func (t ProofTask) Validate() error {
	if err := t.Task.Validate(); err != nil {
		if t.Name != "" {
			return fmt.Errorf("task %q: %w", t.Name, err)
		}
		return err
	}
	return nil
}

// Label returns the name, or the kind when the task is anonymous.
func (t ProofTask) Label() string {
	if t.Name != "" {
		return t.Name
	}
	return string(t.Kind)
}
