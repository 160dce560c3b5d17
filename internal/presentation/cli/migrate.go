package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/threshold/internal/application/startup"
	schema "github.com/AtRiskMedia/threshold/internal/infrastructure/database"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the visitor store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger(rootOpts)
			if err != nil {
				return err
			}
			defer logger.Close()

			db, err := startup.OpenDatabase(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			for _, table := range schema.NewTableCreator().Tables() {
				fmt.Fprintf(cmd.OutOrStdout(), "ok  %s\n", table)
			}
			return nil
		},
	}
}
