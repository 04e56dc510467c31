package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/toolgate/internal/config"
	"github.com/jkaninda/toolgate/internal/executor"
	"github.com/jkaninda/toolgate/internal/gateway/mcpserver"
)

var mcpUserID string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the sandboxed tools over MCP on stdio",
	Long: `Expose the sandboxed tools as an MCP (Model Context Protocol) server
on stdio. Point an MCP client at this command to give it mediated
sandbox access:

  {"command": "toolgate", "args": ["mcp", "--preset", "minimal"]}

Every call flows through the same security, sandbox, and audit
pipeline as the HTTP gateway.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	mcpCmd.Flags().StringVar(&preset, "preset", "", "security preset (minimal, standard, development)")
	mcpCmd.Flags().StringVar(&mcpUserID, "user-id", "mcp", "caller identity for rate limiting and audit")
}

func runMCP(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Stdio transport; no listening gateway.
	cfg.Gateway = nil

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := executor.New(cfg, logger)
	if err := exec.Start(ctx); err != nil {
		return err
	}
	defer exec.Stop(context.Background())

	srv := mcpserver.New(mcpserver.Config{
		UserID:  mcpUserID,
		Version: version,
	}, exec, logger)

	return srv.Start(ctx)
}
