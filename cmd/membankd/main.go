// Package main implements the membankd CLI: memory bank management,
// reconciliation planning and application, tool invocation, and the
// MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath overrides the default config file location.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "membankd",
	Short: "Memory bank synchronizer for AI agent sessions",
	Long: `membankd keeps a local memory bank (nine Markdown documents recording
project intent and status) reconciled against GitHub issues and a
Projects V2 board, under an explicit plan/act workflow: every sync is
rendered as a proposal first and applied only after confirmation.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .membankd.yaml)")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(serveCmd)
}
