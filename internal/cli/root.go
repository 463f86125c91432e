package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/geowatch/internal/config"
	"github.com/ppiankov/geowatch/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "geowatch",
	Short: "Fake location detection for a mobile web host",
	Long: "Validates device location samples with heuristic rules (accuracy, speed,\n" +
		"altitude, provider, mock flag, implied movement), gates startup on a valid\n" +
		"fix and relays page-side verdicts to the host over a message bridge.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnv(logging.New("geowatch"))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
