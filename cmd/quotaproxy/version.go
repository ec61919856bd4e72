package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arjunv/quotaproxy/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the quotaproxy version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", rootCmd.Name(), version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
