package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/toolgate/internal/config"
	"github.com/jkaninda/toolgate/internal/executor"
	"github.com/jkaninda/toolgate/internal/tools"
)

// Exit codes for the exec and call commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitPolicyDenied = 2
	ExitUnavailable  = 3
)

var (
	execTool string
	execArgs string
	execJSON bool
)

var execCmd = &cobra.Command{
	Use:   "exec [command]",
	Short: "Run one tool call through the local mediation pipeline",
	Long: `Run a single tool call through security validation, sandboxed
execution, and audit logging, then print the result.

The positional argument is a shell command for the Bash tool. Other
tools take --tool with JSON arguments.

Examples:
  toolgate exec "ls -la /tmp"
  toolgate exec --tool Read --args '{"file_path": "notes.txt"}'
  toolgate exec --preset minimal "cat /etc/hostname"

Exit codes:
  0  success
  1  execution failure
  2  denied by security policy
  3  pipeline could not start`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExec,
}

func init() {
	execCmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
	execCmd.Flags().StringVar(&preset, "preset", "", "security preset (minimal, standard, development)")
	execCmd.Flags().StringVar(&execTool, "tool", tools.ToolBash, "tool name (Bash, Read, Write, Edit, Glob, Grep)")
	execCmd.Flags().StringVar(&execArgs, "args", "", "tool arguments as JSON")
	execCmd.Flags().BoolVar(&execJSON, "json", false, "print the full result as JSON")
}

func runExec(_ *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// One-shot runs do not need a pool or a listening gateway.
	cfg.Sandbox.Pool = nil
	cfg.Gateway = nil

	arguments := map[string]any{}
	if execArgs != "" {
		if err := json.Unmarshal([]byte(execArgs), &arguments); err != nil {
			return fmt.Errorf("parsing --args: %w", err)
		}
	}
	if len(args) == 1 {
		if execTool != tools.ToolBash {
			return fmt.Errorf("positional command only applies to the Bash tool")
		}
		arguments["command"] = args[0]
	}
	if len(arguments) == 0 {
		return fmt.Errorf("nothing to run: pass a command or --args")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := executor.New(cfg, logger)
	if err := exec.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUnavailable)
	}
	defer exec.Stop(context.Background())

	result, err := exec.Execute(ctx, tools.NewCall(execTool, arguments), "cli", "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitUnavailable)
	}

	printResult(result)
	os.Exit(exitCode(result))
	return nil
}

// printResult writes the result to stdout, as JSON when requested.
func printResult(result *tools.Result) {
	if execJSON {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	if result.Output != "" {
		fmt.Print(result.Output)
		if !strings.HasSuffix(result.Output, "\n") {
			fmt.Println()
		}
	}
	if !result.Success {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
	}
}

// exitCode maps a mediation result to a process exit code.
func exitCode(result *tools.Result) int {
	switch {
	case result.Success:
		return ExitSuccess
	case strings.Contains(result.Error, "permission denied"):
		return ExitPolicyDenied
	default:
		return ExitFailure
	}
}
