package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/sagredo/internal/app"
	"github.com/ashureev/sagredo/internal/checker"
	"github.com/ashureev/sagredo/internal/config"
)

func newCheckCmd() *cobra.Command {
	var preambleFile string
	cmd := &cobra.Command{
		Use:   "check <file.lean>",
		Short: "Run a Lean file through the checker",
		Long:  `Submit a file to the Lean REPL and print its messages and open goals. No model is involved.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var preamble []byte
			if preambleFile != "" {
				if preamble, err = os.ReadFile(preambleFile); err != nil {
					return fmt.Errorf("read preamble: %w", err)
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			starter, err := app.NewStarter(cfg, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Checker.Timeout)
			defer cancel()
			fb, err := checker.Check(ctx, starter, string(preamble), string(code))
			if fb == nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), renderFeedback(fb))
			if fb.HasErrors() {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&preambleFile, "preamble-file", "", "Lean header checked first; the file is checked in its environment")
	return cmd
}
