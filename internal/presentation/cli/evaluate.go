package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/threshold/internal/application/services"
	"github.com/AtRiskMedia/threshold/internal/application/startup"
)

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool
	var format string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one tier promotion cycle and print its summary",
		Long: `Run one trusted tier promotion cycle against the configured database.

The cycle summary is written to stdout as JSON, or as a terminal report with
--format text. The command is not rate limited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "text" {
				return fmt.Errorf("invalid format %q: must be json or text", format)
			}
			logger, err := commandLogger(rootOpts)
			if err != nil {
				return err
			}

			app, err := startup.Bootstrap(cmd.Context(), logger)
			if err != nil {
				logger.Close()
				return err
			}
			defer app.Close()

			summary, err := app.Container.PromotionService.Run(cmd.Context(), services.TriggerCLI)
			if err != nil {
				return err
			}

			if format == "text" {
				NewReporter(cmd.OutOrStdout(), !noColor).CycleReport(summary)
			} else {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(summary); err != nil {
					return err
				}
			}
			if strict && len(summary.Results.Errors) > 0 {
				return fmt.Errorf("promotion cycle finished with %d errors", len(summary.Results.Errors))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the cycle reports errors")
	cmd.Flags().StringVar(&format, "format", "json", "output format (json|text)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colors in text output")
	return cmd
}
