package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xela07ax/estate-integrity/internal/domain"
)

// ExceptionsCmd returns the exceptions command
func ExceptionsCmd() *cobra.Command {
	var (
		tenantID string
		status   string
		rule     string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "exceptions",
		Short: "List ledger exceptions",
		Long:  "List exceptions from the ledger, open ones first (default: open only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := NewContext()
			defer cancel()

			switch domain.ExceptionStatus(status) {
			case "", domain.ExceptionOpen, domain.ExceptionResolved:
			default:
				return fmt.Errorf("unknown status %q (want open or resolved)", status)
			}
			if rule != "" && !domain.KnownRule(domain.RuleCode(rule)) {
				return fmt.Errorf("unknown rule %q", rule)
			}

			repo, closeFn, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := repo.ListExceptions(ctx, domain.ExceptionFilter{
				TenantID: tenantID,
				Status:   domain.ExceptionStatus(status),
				Rule:     domain.RuleCode(rule),
				Limit:    limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list exceptions: %w", err)
			}

			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No exceptions found.")
				return nil
			}
			printExceptions(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "filter by tenant")
	cmd.Flags().StringVar(&status, "status", string(domain.ExceptionOpen), "open or resolved (empty for both)")
	cmd.Flags().StringVar(&rule, "rule", "", "filter by rule code")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows")
	return cmd
}
