package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nanogov/governor/internal/buildinfo"
	"nanogov/governor/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Governor - bounded policy enforcement for nano-scale systems",
	Long: `Governor admits signed security policies and enforces them against
system state snapshots at the compile, load, runtime and update checkpoints.

It provides:
  - A fixed-capacity policy store with a built-in default policy
  - Deterministic first-match evaluation with Allow, Deny, Quarantine and Erase verdicts
  - Dilithium2 and Ed25519 signed policy admission, supersession and removal
  - A bounded decision log with a live websocket stream
  - A durable evidence archive in SQLite or PostgreSQL

Exit status is the verdict code for "governor enforce", 2 for configuration
errors and 1 for any other failure.`,
	Version:       buildinfo.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command and exits with the mapped status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !cli.IsSilent(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and GOVERNOR_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
