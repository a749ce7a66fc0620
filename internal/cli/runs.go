package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

// RunsCmd returns the runs command
func RunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent engine runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := NewContext()
			defer cancel()

			repo, closeFn, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := repo.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}
			printRuns(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")

	cmd.AddCommand(&cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one run with its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := NewContext()
			defer cancel()

			repo, closeFn, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			run, err := repo.GetRun(ctx, args[0])
			if errors.Is(err, domain.ErrRunNotFound) {
				return fmt.Errorf("run %s not found", args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to get run: %w", err)
			}

			printRuns(cmd.OutOrStdout(), []domain.AgentRun{*run})
			if run.Summary != nil {
				printSummary(cmd.OutOrStdout(), run.Summary)
			}
			return nil
		},
	})
	return cmd
}
