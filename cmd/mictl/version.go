package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mictl",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mictl %s\n", version)
		fmt.Fprintf(out, "Commit: %s\n", commit)
		fmt.Fprintf(out, "Built: %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
