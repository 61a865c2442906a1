package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Multi-tier memory for conversational agents",
	Long:  "Mnemo gives a conversational agent memory that persists across sessions: decaying episodic experiences, durable semantic facts, a permanent long-term core, and branchable exploration threads.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(consolidateCmd)
}
