package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xela07ax/estate-integrity/internal/infra"
	"github.com/xela07ax/estate-integrity/internal/repository/postgres"
	"go.uber.org/zap"
)

var verbose bool

// RootCmd собирает integrityctl
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "integrityctl",
		Short: "Operator CLI for the estate integrity engine",
		Long: `integrityctl runs integrity scans over estate records and inspects
the exception ledger and run history stored in Postgres.

Configuration is read from config.yaml and environment variables,
the same way the integrityd daemon reads it.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(ScanCmd())
	root.AddCommand(ExceptionsCmd())
	root.AddCommand(RunsCmd())
	root.AddCommand(SchemaCmd())
	return root
}

// NewContext отменяется по Ctrl+C
func NewContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func loadConfig() (*infra.Config, *zap.Logger, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	// В терминале человекочитаемый формат и только предупреждения
	logCfg := infra.LoggerConfig{Level: "warn", Format: "console"}
	if verbose {
		logCfg.Level = "debug"
	}
	logger, err := infra.NewLogger(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

// openRepo — только Postgres, для команд чтения
func openRepo(ctx context.Context) (*postgres.IntegrityRepo, func(), error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewIntegrityRepo(pool), pool.Close, nil
}
