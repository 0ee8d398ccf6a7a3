// Package cli implements the prover command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

// errReported exits non-zero after the command already printed why.
var errReported = errors.New("failure reported")

type rootOptions struct {
	verbose bool
	envFile string
}

// NewRootCmd builds the prover command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "prover",
		Short: "Search for Lean 4 proofs with a language model",
		Long: `Drive a language model and the Lean REPL in a loop until a proof checks.

Each step asks the model for a complete Lean snippet, runs it through the
REPL, and feeds errors or open goals back to the model.

Quick Start:
  prover prove --code "theorem t : 2 + 2 = 4 := by sorry"
  prover batch tasks.yaml
  prover check Proof.lean
  prover export <attempt-id> --format yaml`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup()
		},
	}
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Environment file to load before reading configuration")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newProveCmd(), newBatchCmd(), newCheckCmd(), newExportCmd())
	return root
}

func (o *rootOptions) setup() error {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if o.envFile == "" {
		return nil
	}
	if err := godotenv.Load(o.envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("No env file found, using environment variables", "path", o.envFile)
			return nil
		}
		return fmt.Errorf("load %s: %w", o.envFile, err)
	}
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
