package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/sagredo/internal/config"
	"github.com/ashureev/sagredo/internal/store"
)

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <attempt-id>",
		Short: "Export an archived attempt",
		Long:  `Write an archived attempt, including its full transcript and step history, as JSON or YAML.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(format, false); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			repo, err := store.NewSQLite(cfg.Archive.DBPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			rec, err := repo.GetAttempt(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("attempt %s: %w", args[0], err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return writeRecord(w, rec, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatJSON, "Export format: json, yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}
