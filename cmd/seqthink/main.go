package main

import (
	"fmt"
	"os"

	"seqthink/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "seqthink",
	Short: "Sequential thinking MCP server",
	Long: `seqthink is an MCP server exposing a single sequential_thinking tool.

A client records a numbered chain of thoughts one step at a time, revising
earlier steps or branching into alternatives as its understanding changes.
The server validates each step, keeps the history for the life of the
process, and reports the chain's progress after every step.

Run "seqthink serve" to start the server over stdio, SSE or HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Bootstrap logging for every subcommand; serve re-initializes it
		// from the loaded config.
		level := "info"
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(logging.Options{Level: level, Output: os.Stderr}); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
