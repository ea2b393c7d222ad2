package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "marvin-memory",
	Short: "Tiered persistent memory over PostgreSQL",
	Long: `marvin-memory stores, links and retrieves tiered memories in PostgreSQL.

Writes survive backend outages through a local durable queue, retrieval
fuses full text, keyword and link graph rankings, and periodic maintenance
promotes, prunes and relinks memories.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newAddCmd(),
		newSearchCmd(),
		newRecentCmd(),
		newPopularCmd(),
		newStatsCmd(),
		newAutolinkCmd(),
		newSummarizeCmd(),
		newSuggestCmd(),
		newCleanupCmd(),
		newMaintainCmd(),
		newServeCmd(),
		newHealthCmd(),
		newMigrateCmd(),
		newVersionCmd(),
	)
}
