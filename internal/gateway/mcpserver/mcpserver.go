// Package mcpserver exposes the sandboxed tools over the Model Context
// Protocol via stdio. Every call an MCP client makes flows through the
// same security, sandbox, and audit pipeline as the in-process API.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jkaninda/toolgate/internal/executor"
	"github.com/jkaninda/toolgate/internal/tools"
)

// Config configures the MCP server.
type Config struct {
	UserID  string // Caller identity for rate limiting and audit. Default "mcp".
	Version string // Reported in the MCP handshake.
}

// Server is a stdio MCP server over the mediation pipeline.
type Server struct {
	exec   *executor.Executor
	userID string
	logger *slog.Logger
	mcp    *server.MCPServer
}

// New creates the MCP server and registers the sandbox tools.
func New(cfg Config, exec *executor.Executor, logger *slog.Logger) *Server {
	userID := cfg.UserID
	if userID == "" {
		userID = "mcp"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		exec:   exec,
		userID: userID,
		logger: logger,
		mcp: server.NewMCPServer("toolgate", version,
			server.WithToolCapabilities(false),
		),
	}
	s.registerTools()
	return s
}

// Start serves MCP over stdio and blocks until the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "mcp server starting", slog.String("user_id", s.userID))
	return server.ServeStdio(s.mcp)
}

// Stop is a no-op: ServeStdio returns when stdin closes.
func (s *Server) Stop(_ context.Context) error { return nil }

// registerTools declares one MCP tool per sandboxed tool. Argument names
// match the native tool-call schema so the dispatcher sees identical input.
func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("sandbox_bash",
		mcp.WithDescription("Run a shell command in an isolated sandbox. Dangerous commands are denied by policy."),
		mcp.WithString("command", mcp.Required(), mcp.Description("Shell command to execute")),
		mcp.WithNumber("timeout", mcp.Description("Timeout in seconds. 0 uses the sandbox default.")),
	), s.handler(tools.ToolBash))

	s.mcp.AddTool(mcp.NewTool("sandbox_read",
		mcp.WithDescription("Read a file from the sandbox workspace."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file")),
	), s.handler(tools.ToolRead))

	s.mcp.AddTool(mcp.NewTool("sandbox_write",
		mcp.WithDescription("Write a file in the sandbox workspace. Parent directories are created."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full file content")),
	), s.handler(tools.ToolWrite))

	s.mcp.AddTool(mcp.NewTool("sandbox_edit",
		mcp.WithDescription("Replace the first occurrence of old_string in a file. Empty old_string creates the file."),
		mcp.WithString("file_path", mcp.Required(), mcp.Description("Path to the file")),
		mcp.WithString("old_string", mcp.Description("Text to replace")),
		mcp.WithString("new_string", mcp.Required(), mcp.Description("Replacement text")),
	), s.handler(tools.ToolEdit))

	s.mcp.AddTool(mcp.NewTool("sandbox_glob",
		mcp.WithDescription("List files in the sandbox workspace, optionally filtered by a glob pattern."),
		mcp.WithString("path", mcp.Description("Directory to list. Empty = workspace root.")),
		mcp.WithString("pattern", mcp.Description("Glob pattern, e.g. *.go")),
	), s.handler(tools.ToolGlob))

	s.mcp.AddTool(mcp.NewTool("sandbox_grep",
		mcp.WithDescription("Search file contents in the sandbox workspace with a regular expression."),
		mcp.WithString("pattern", mcp.Required(), mcp.Description("Regular expression")),
		mcp.WithString("path", mcp.Description("Directory to search. Empty = workspace root.")),
		mcp.WithString("glob", mcp.Description("File name filter, e.g. *.go")),
	), s.handler(tools.ToolGrep))
}

// handler adapts one native tool into an MCP tool handler. Denials and
// sandbox failures come back as MCP tool errors, not protocol errors.
func (s *Server) handler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call := tools.NewCall(toolName, req.GetArguments())

		result, err := s.exec.Execute(ctx, call, s.userID, "")
		if err != nil {
			return nil, fmt.Errorf("executing %s: %w", toolName, err)
		}
		if !result.Success {
			return mcp.NewToolResultError(result.Error), nil
		}
		return mcp.NewToolResultText(result.Output), nil
	}
}
