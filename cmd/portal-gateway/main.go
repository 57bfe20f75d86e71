package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portal-gateway",
		Short: "Session and proxy backend for the AgentBooks portals",
		Long: `portal-gateway serves one of the three portal backends:

  auth      sign-on, session cookie and handoff to the user's portal
  practice  handoff capture and record API proxy for practice staff
  client    handoff capture and record API proxy for clients`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serveCmd(),
		healthcheckCmd(),
		versionCmd(),
	)

	return cmd
}
