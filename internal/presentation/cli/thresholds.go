package cli

import (
	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/threshold/internal/application/startup"
	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
	thresholdconfig "github.com/AtRiskMedia/threshold/internal/infrastructure/config"
)

// NewThresholdsCommand creates the thresholds command.
func NewThresholdsCommand(rootOpts *RootOptions) *cobra.Command {
	var defaults bool

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Print the effective thresholds as YAML",
		Long: `Print the thresholds the server would use, after the YAML file and the
rate limit environment overrides are applied. The output is a valid
thresholds file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			th := behavior.DefaultThresholds()
			if !defaults {
				logger, err := commandLogger(rootOpts)
				if err != nil {
					return err
				}
				defer logger.Close()

				th, err = startup.LoadThresholds(logger)
				if err != nil {
					return err
				}
			}

			out, err := thresholdconfig.EncodeThresholds(th)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().BoolVar(&defaults, "defaults", false, "print the compiled defaults, ignoring files and environment")
	return cmd
}
