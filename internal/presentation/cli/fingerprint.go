package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AtRiskMedia/threshold/internal/domain/behavior"
)

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand() *cobra.Command {
	var env behavior.Environment
	var screenWidth, screenHeight, colorDepth, timezoneOffset int

	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Compute the visitor fingerprint for an environment",
		Long: `Compute the fingerprint the server derives from a browser environment.
Flags left unset hash as unknown, exactly as missing fields do over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("screen-width") {
				env.ScreenWidth = &screenWidth
			}
			if flags.Changed("screen-height") {
				env.ScreenHeight = &screenHeight
			}
			if flags.Changed("color-depth") {
				env.ColorDepth = &colorDepth
			}
			if flags.Changed("timezone-offset") {
				env.TimezoneOffset = &timezoneOffset
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), behavior.Fingerprint(env))
			return err
		},
	}

	cmd.Flags().StringVar(&env.UserAgent, "user-agent", "", "browser user agent")
	cmd.Flags().StringVar(&env.Language, "language", "", "browser language")
	cmd.Flags().IntVar(&screenWidth, "screen-width", 0, "screen width in pixels")
	cmd.Flags().IntVar(&screenHeight, "screen-height", 0, "screen height in pixels")
	cmd.Flags().IntVar(&colorDepth, "color-depth", 0, "screen color depth")
	cmd.Flags().IntVar(&timezoneOffset, "timezone-offset", 0, "timezone offset in minutes")
	cmd.Flags().IntVar(&env.HardwareConcurrency, "hardware-concurrency", 0, "logical processor count")
	return cmd
}
