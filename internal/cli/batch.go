package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/sagredo/internal/prover"
)

type batchOptions struct {
	concurrency int
	maxSteps    int
	format      string
	noArchive   bool
	progress    bool
}

func newBatchCmd() *cobra.Command {
	o := &batchOptions{}
	cmd := &cobra.Command{
		Use:   "batch <tasks.yaml>",
		Short: "Run many independent proof attempts concurrently",
		Long: `Run every task in a YAML file. Each attempt gets its own checker
session; a failing attempt does not stop the others.

Task file layout:
  preamble: |
    import Mathlib
  tasks:
    - name: two_plus_two
      kind: continue
      code: |
        theorem t : 2 + 2 = 4 := by sorry`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.IntVarP(&o.concurrency, "concurrency", "c", 0, "Override PROVER_CONCURRENCY")
	f.IntVar(&o.maxSteps, "max-steps", 0, "Override PROVER_MAX_STEPS")
	f.StringVarP(&o.format, "format", "o", formatText, "Output format: text, json, yaml")
	f.BoolVar(&o.noArchive, "no-archive", false, "Do not archive attempts")
	f.BoolVar(&o.progress, "progress", false, "Print transitions as they happen")
	return cmd
}

func (o *batchOptions) run(cmd *cobra.Command, path string) error {
	if err := validFormat(o.format, true); err != nil {
		return err
	}
	tasks, err := loadTasks(path)
	if err != nil {
		return err
	}

	var observers []prover.Observer
	if o.progress {
		observers = append(observers, progressPrinter{w: cmd.ErrOrStderr()})
	}
	rt, err := newRuntime(runnerOverrides{
		maxSteps:    o.maxSteps,
		concurrency: o.concurrency,
		noArchive:   o.noArchive,
	}, observers...)
	if err != nil {
		return err
	}
	defer rt.close()

	recs := rt.runner.RunBatch(cmd.Context(), tasks)

	out := cmd.OutOrStdout()
	if o.format == formatText {
		fmt.Fprint(out, renderBatch(recs))
	} else if err := writeRecord(out, recs, o.format); err != nil {
		return err
	}
	for _, rec := range recs {
		if !rec.Proved() {
			return errReported
		}
	}
	return nil
}
