package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show project and document totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireBackend(); err != nil {
			return err
		}
		stats, err := Backend.GetStats(cmd.Context())
		if err != nil {
			return friendly(err)
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			return printJSON(out, stats)
		}
		fmt.Fprintf(out, "  %-22s %d\n", "Projects:", stats.TotalProjects)
		fmt.Fprintf(out, "  %-22s %d\n", "Documents:", stats.TotalDocuments)
		fmt.Fprintf(out, "  %-22s %d\n", "Processing:", stats.ProcessingDocuments)
		fmt.Fprintf(out, "  %-22s %d\n", "Completed:", stats.CompletedDocuments)
		fmt.Fprintf(out, "  %-22s %d\n", "Failed:", stats.FailedDocuments)
		fmt.Fprintf(out, "  %-22s %s\n", "Storage used:", stats.StorageUsed)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output stats as JSON")
	rootCmd.AddCommand(statsCmd)
}
