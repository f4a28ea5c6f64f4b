package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// assumeYes answers every confirmation prompt with yes.
var assumeYes bool

var rootCmd = &cobra.Command{
	Use:   "rdk",
	Short: "RiskDesk - document intake console for credit risk projects",
	Long: `RiskDesk (rdk) manages the documents of credit risk review projects:
upload, delete, download, retry failed processing and push documents into a
project's knowledge base.

Document lists are kept in sync with the backend while documents are still
being processed. Run "rdk dashboard" for the interactive view.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "rdk %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation prompt")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command, then gives alerts forwarded during the run a
// chance to reach the notifier.
func Execute() error {
	err := rootCmd.Execute()
	if !waitForAlerts(&pendingAlerts, alertDrainTimeout) && Logger != nil {
		Logger.Warn("gave up waiting for alerts to be sent")
	}
	return err
}
