package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/transcript"
)

func TestProofTask_YAMLInline(t *testing.T) {
	var task ProofTask
	input := `name: add_comm
kind: autoformalize-proof
statement: "a + b = b + a"
proof: "by commutativity"
code: "theorem add_comm' (a b : Nat) : a + b = b + a := by sorry"
`
	if err := yaml.Unmarshal([]byte(input), &task); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if task.Name != "add_comm" || task.Kind != prover.KindAutoformalizeProof || task.Statement == "" {
		t.Errorf("Unexpected task %+v", task)
	}
	if err := task.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestProofTask_ValidateNamesTask(t *testing.T) {
	task := ProofTask{Name: "broken", Task: prover.Task{Kind: prover.KindContinue}}
	err := task.Validate()
	if err == nil || !strings.Contains(err.Error(), `"broken"`) {
		t.Fatalf("Expected error naming the task, got %v", err)
	}
	if got := (ProofTask{Task: prover.Task{Kind: prover.KindContinue}}).Label(); got != "continue" {
		t.Errorf("Expected kind as label, got %q", got)
	}
}

func TestNewAttemptRecord(t *testing.T) {
	started := time.Now()
	a := &prover.Attempt{
		ID:         "a1",
		Task:       prover.Task{Kind: prover.KindContinue, Code: "example : 2 = 2 := by"},
		State:      prover.StateFailed,
		Reason:     prover.ReasonOracleUnavailable,
		Err:        errors.New("oracle unavailable"),
		Steps:      1,
		Transcript: transcript.New("sys", "go"),
		History:    []prover.Step{{Index: 1, State: prover.StateContinue}},
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
	}
	rec := NewAttemptRecord("two", a)
	if rec.Error != "oracle unavailable" || rec.Proved() {
		t.Errorf("Unexpected record %+v", rec)
	}
	if rec.Duration() != 2*time.Second {
		t.Errorf("Expected 2s, got %v", rec.Duration())
	}

	a.History[0].State = prover.StateComplete
	if rec.History[0].State != prover.StateContinue {
		t.Error("Record history must not alias the attempt's")
	}
}
