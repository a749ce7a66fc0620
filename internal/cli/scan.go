package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xela07ax/estate-integrity/internal/app"
	"github.com/xela07ax/estate-integrity/internal/domain"
	"github.com/xela07ax/estate-integrity/internal/engine"
)

// ScanCmd returns the scan command
func ScanCmd() *cobra.Command {
	var (
		tenantID string
		dryRun   bool
		asJSON   bool
		memory   bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run an integrity scan",
		Long: `Run one integrity scan over all tenants, or over one tenant with --tenant.

--dry-run evaluates the rules and previews ledger changes without writing
anything and without sending notifications.

--memory reads live records but reconciles against an empty in-process
ledger: every finding shows up as new. Nothing is written and no
notifications are sent.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := NewContext()
			defer cancel()

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			a, err := app.New(ctx, cfg, logger, nil, app.Options{MemoryLedger: memory})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Coordinator.RunScan(ctx, engine.ScanRequest{
				TriggerSource: domain.TriggerManual,
				DryRun:        dryRun,
				TenantID:      tenantID,
			})
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printRunResult(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "scan only this tenant")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview without writes or notifications")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full run result as JSON")
	cmd.Flags().BoolVar(&memory, "memory", false, "reconcile against an empty in-memory ledger")
	return cmd
}
