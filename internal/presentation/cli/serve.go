package cli

import (
	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/threshold/internal/application/startup"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return startup.Initialize()
		},
	}
}
