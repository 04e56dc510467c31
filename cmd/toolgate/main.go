// Toolgate — security mediation layer for agent tool calls.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Toolgate — security mediation layer for agent tool calls.",
	Long: `Toolgate sits between an AI agent runtime and the host system. Every
tool call is validated against security policy, executed in an isolated
sandbox, and recorded on an append-only audit trail. Dangerous commands,
sensitive paths, and rate-limit abuse are denied before anything runs.`,
	RunE:          runServe, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, execCmd, callCmd, mcpCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
