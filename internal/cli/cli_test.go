package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/prover"
	"github.com/ashureev/sagredo/internal/store"
	"github.com/ashureev/sagredo/internal/transcript"
)

func TestParseTasks(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name: "file with shared preamble",
			input: `preamble: |
  import Mathlib
tasks:
  - name: two
    kind: continue
    code: "theorem t : 2 + 2 = 4 := by sorry"
  - kind: autoformalize-proof
    statement: "2 + 2 = 4"
    proof: "compute"
    code: "theorem t : 2 + 2 = 4 := by sorry"
`,
			want: 2,
		},
		{
			name: "bare list",
			input: `# comment first
- kind: continue
  code: "example : 1 = 1 := by sorry"
`,
			want: 1,
		},
		{name: "empty", input: "tasks: []\n", wantErr: true},
		{name: "invalid kind", input: "- kind: guess\n  code: x\n", wantErr: true},
		{name: "not yaml", input: "tasks: [", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := parseTasks([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTasks failed: %v", err)
			}
			if len(tasks) != tt.want {
				t.Fatalf("Expected %d tasks, got %d", tt.want, len(tasks))
			}
		})
	}
}

func TestParseTasks_Defaults(t *testing.T) {
	tasks, err := parseTasks([]byte(`preamble: "import Mathlib"
tasks:
  - kind: continue
    code: "theorem a : True := by sorry"
  - kind: continue
    code: "theorem b : True := by sorry"
    preamble: "import Lean"
`))
	if err != nil {
		t.Fatalf("parseTasks failed: %v", err)
	}
	if tasks[0].Name != "task-1" || tasks[0].Preamble != "import Mathlib" {
		t.Errorf("Expected defaults applied, got %+v", tasks[0])
	}
	if tasks[1].Preamble != "import Lean" {
		t.Errorf("Expected own preamble kept, got %q", tasks[1].Preamble)
	}
}

func TestRenderOutcome(t *testing.T) {
	now := time.Now()
	proved := &domain.AttemptRecord{
		ID: "abc", Name: "two", State: prover.StateComplete, Steps: 2,
		Source: "theorem t : 2 + 2 = 4 := rfl", StartedAt: now, FinishedAt: now.Add(time.Second),
	}
	out := renderOutcome(proved)
	if !strings.Contains(out, "PROVED") || !strings.Contains(out, "2 + 2 = 4 := rfl") {
		t.Errorf("Unexpected outcome:\n%s", out)
	}

	failed := &domain.AttemptRecord{
		ID: "def", State: prover.StateFailed, Reason: prover.ReasonStepLimitExceeded,
		Error: "step limit exceeded: 3 steps", Task: prover.Task{Kind: prover.KindContinue},
	}
	out = renderOutcome(failed)
	if !strings.Contains(out, "StepLimitExceeded") || !strings.Contains(out, "step limit exceeded") {
		t.Errorf("Unexpected outcome:\n%s", out)
	}

	summary := renderBatch([]*domain.AttemptRecord{proved, failed})
	if !strings.Contains(summary, "1/2 proved") {
		t.Errorf("Unexpected batch summary:\n%s", summary)
	}
}

func TestRenderFeedback(t *testing.T) {
	fb := &checker.Feedback{
		Messages: []checker.Message{{Severity: checker.SeverityError, Pos: &checker.Position{Line: 1, Column: 22}, Data: "unsolved goals"}},
		Sorries:  []checker.Sorry{{Goal: "⊢ 2 = 2"}},
	}
	out := renderFeedback(fb)
	if !strings.Contains(out, "1:22: error: unsolved goals") || !strings.Contains(out, "⊢ 2 = 2") {
		t.Errorf("Unexpected feedback rendering:\n%s", out)
	}
	if !strings.Contains(renderFeedback(&checker.Feedback{}), "no errors") {
		t.Error("Expected clean rendering")
	}
}

func TestExportCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "attempts.db")
	t.Setenv("DB_PATH", dbPath)

	repo, err := store.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	now := time.Now().Truncate(time.Millisecond)
	rec := &domain.AttemptRecord{
		ID:         "exp-1",
		Name:       "two",
		Task:       prover.Task{Kind: prover.KindContinue, Code: "theorem t : 2 + 2 = 4 := by sorry"},
		State:      prover.StateComplete,
		Steps:      1,
		Source:     "theorem t : 2 + 2 = 4 := rfl",
		Transcript: transcript.New("system", "prove it").Append(transcript.RoleAssistant, "```lean\ntheorem t : 2 + 2 = 4 := rfl\n```"),
		StartedAt:  now,
		FinishedAt: now.Add(time.Second),
	}
	if err := repo.SaveAttempt(context.Background(), rec); err != nil {
		t.Fatalf("SaveAttempt failed: %v", err)
	}
	repo.Close()

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"export", "exp-1", "--format", "yaml", "--env-file", ""})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var got map[string]any
	if err := yaml.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("Output is not YAML: %v\n%s", err, out.String())
	}
	if got["id"] != "exp-1" || got["state"] != "COMPLETE" {
		t.Errorf("Unexpected export: %v", got)
	}

	target := filepath.Join(t.TempDir(), "a.json")
	root = NewRootCmd()
	root.SetArgs([]string{"export", "exp-1", "--output", target, "--env-file", ""})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("export to file failed: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Contains(data, []byte(`"id": "exp-1"`)) {
		t.Errorf("Unexpected JSON export:\n%s", data)
	}

	root = NewRootCmd()
	root.SetArgs([]string{"export", "missing", "--env-file", ""})
	if err := root.ExecuteContext(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestProveCommand_RejectsInvalidTask(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"prove", "--kind", "autoformalize-proof", "--code", "x", "--env-file", ""})
	err := root.ExecuteContext(context.Background())
	if err == nil || errors.Is(err, errReported) {
		t.Fatalf("Expected a validation error, got %v", err)
	}
}

func TestValidFormat(t *testing.T) {
	if err := validFormat("text", false); err == nil {
		t.Error("Expected text rejected for export")
	}
	if err := validFormat("yaml", false); err != nil {
		t.Errorf("Expected yaml accepted, got %v", err)
	}
	if err := validFormat("xml", true); err == nil {
		t.Error("Expected xml rejected")
	}
}
