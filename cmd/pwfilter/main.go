// Package main implements the pwfilter command: the bot filter run as a
// sidecar in front of an origin, plus the operator tooling around it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paywalls-net/filter/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "pwfilter",
		Short:   "Edge bot filter for paywalls.net accounts",
		Long:    `pwfilter detects automated agents at the edge, authorizes them against the paywalls.net service and serves agent verification artifacts.`,
		Version: version.Version,
	}

	// Add subcommands
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
