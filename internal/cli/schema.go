package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/xela07ax/estate-integrity/internal/repository/postgres"
)

// SchemaCmd returns the schema command
func SchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage engine-owned tables",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create exception, run and finding tables if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := NewContext()
			defer cancel()

			repo, closeFn, err := openRepo(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s applied %d statements\n",
				okMark(), len(postgres.SchemaStatements()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the DDL without applying it",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, stmt := range postgres.SchemaStatements() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", stmt)
			}
			return nil
		},
	})
	return cmd
}
