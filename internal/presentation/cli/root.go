// Package cli provides the threshold command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/threshold/internal/application/startup"
	"github.com/AtRiskMedia/threshold/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/threshold/pkg/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose        bool
	ThresholdsFile string
}

// NewRootCommand creates the root command for the threshold CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Threshold - behavioral access tiers for anonymous visitors",
		Long: `Threshold scores anonymous visitors on patience and curiosity, applies
consequences to impatient sessions and promotes visitors through access tiers.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ThresholdsFile != "" {
				config.ThresholdsFile = opts.ThresholdsFile
			}
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr while running one-shot commands")
	cmd.PersistentFlags().StringVar(&opts.ThresholdsFile, "thresholds", "", "thresholds YAML file (overrides THRESHOLDS_FILE)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewEvaluateCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewThresholdsCommand(opts))
	cmd.AddCommand(NewFingerprintCommand())

	return cmd
}

// commandLogger keeps one-shot command output clean unless --verbose.
func commandLogger(opts *RootOptions) (*logging.ChanneledLogger, error) {
	if !opts.Verbose {
		return logging.NewNopLogger(), nil
	}
	return startup.NewLogger()
}
