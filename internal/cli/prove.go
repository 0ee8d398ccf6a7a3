package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/sagredo/internal/domain"
	"github.com/ashureev/sagredo/internal/prover"
)

type proveOptions struct {
	taskFile     string
	name         string
	kind         string
	code         string
	codeFile     string
	statement    string
	proof        string
	preambleFile string
	maxSteps     int
	format       string
	noArchive    bool
	quiet        bool
}

func newProveCmd() *cobra.Command {
	o := &proveOptions{}
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Run one proof attempt",
		Long: `Run one proof attempt from flags or a YAML task file.

The attempt ends PROVED when the checker accepts a snippet with no errors
and no sorries, or FAILED when the step limit is reached or the oracle or
checker becomes unavailable.`,
		Example: `  prover prove --code "theorem t : 2 + 2 = 4 := by sorry"
  prover prove --kind autoformalize-proof --statement "..." --proof "..." --file Stub.lean
  prover prove --task task.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.taskFile, "task", "", "YAML file describing the task")
	f.StringVar(&o.name, "name", "", "Task name")
	f.StringVar(&o.kind, "kind", string(prover.KindContinue), "Task kind: continue, autoformalize-proof, autoformalize-statement-and-proof")
	f.StringVar(&o.code, "code", "", "Initial Lean code")
	f.StringVarP(&o.codeFile, "file", "f", "", "Read the initial Lean code from a file")
	f.StringVar(&o.statement, "statement", "", "Natural-language statement")
	f.StringVar(&o.proof, "proof", "", "Natural-language proof")
	f.StringVar(&o.preambleFile, "preamble-file", "", "Lean header elaborated once and reused")
	f.IntVar(&o.maxSteps, "max-steps", 0, "Override PROVER_MAX_STEPS")
	f.StringVarP(&o.format, "format", "o", formatText, "Output format: text, json, yaml")
	f.BoolVar(&o.noArchive, "no-archive", false, "Do not archive the attempt")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "Do not print transitions")
	cmd.MarkFlagsMutuallyExclusive("code", "file")
	cmd.MarkFlagsMutuallyExclusive("task", "code")
	cmd.MarkFlagsMutuallyExclusive("task", "file")
	return cmd
}

func (o *proveOptions) task() (domain.ProofTask, error) {
	if o.taskFile != "" {
		t, err := loadTask(o.taskFile)
		if err != nil {
			return t, err
		}
		if o.name != "" {
			t.Name = o.name
		}
		return t, t.Validate()
	}

	t := domain.ProofTask{
		Name: o.name,
		Task: prover.Task{
			Kind:      prover.TaskKind(o.kind),
			Code:      o.code,
			Statement: o.statement,
			Proof:     o.proof,
		},
	}
	if o.codeFile != "" {
		data, err := os.ReadFile(o.codeFile)
		if err != nil {
			return t, fmt.Errorf("read code: %w", err)
		}
		t.Code = string(data)
	}
	if o.preambleFile != "" {
		data, err := os.ReadFile(o.preambleFile)
		if err != nil {
			return t, fmt.Errorf("read preamble: %w", err)
		}
		t.Preamble = string(data)
	}
	return t, t.Validate()
}

func (o *proveOptions) run(cmd *cobra.Command) error {
	if err := validFormat(o.format, true); err != nil {
		return err
	}
	task, err := o.task()
	if err != nil {
		return err
	}

	var observers []prover.Observer
	if !o.quiet && o.format == formatText {
		observers = append(observers, progressPrinter{w: cmd.ErrOrStderr()})
	}
	rt, err := newRuntime(runnerOverrides{maxSteps: o.maxSteps, noArchive: o.noArchive}, observers...)
	if err != nil {
		return err
	}
	defer rt.close()

	rec := rt.runner.Run(cmd.Context(), task)

	out := cmd.OutOrStdout()
	if o.format == formatText {
		fmt.Fprint(out, renderOutcome(rec))
	} else if err := writeRecord(out, rec, o.format); err != nil {
		return err
	}
	if !rec.Proved() {
		return errReported
	}
	return nil
}
