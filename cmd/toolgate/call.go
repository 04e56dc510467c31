package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/toolgate/internal/tools"
)

var (
	callGatewayURL string
	callAPIKey     string
	callTool       string
	callArgs       string
	callSessionID  string
	callTimeout    int
)

var callCmd = &cobra.Command{
	Use:   "call [command]",
	Short: "Send a tool call to a running gateway",
	Long: `Send a tool call to a toolgate gateway over HTTP. The call goes
through the gateway's security, sandbox, and audit pipeline.

Examples:
  toolgate call "df -h"
  toolgate call --tool Grep --args '{"pattern": "TODO", "glob": "*.go"}'

Exit codes:
  0  success
  1  execution failure
  2  denied by security policy
  3  gateway unavailable`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callGatewayURL, "gateway-url", "http://localhost:8090", "gateway HTTP API URL")
	callCmd.Flags().StringVar(&callAPIKey, "api-key", "", "API key for gateway authentication (or TOOLGATE_API_KEY env)")
	callCmd.Flags().StringVar(&callTool, "tool", tools.ToolBash, "tool name (Bash, Read, Write, Edit, Glob, Grep)")
	callCmd.Flags().StringVar(&callArgs, "args", "", "tool arguments as JSON")
	callCmd.Flags().StringVar(&callSessionID, "session-id", "", "session ID for audit correlation")
	callCmd.Flags().IntVar(&callTimeout, "timeout", 300, "timeout in seconds")
	callCmd.Flags().BoolVar(&execJSON, "json", false, "print the full result as JSON")
}

func runCall(_ *cobra.Command, args []string) error {
	apiKey := goutils.Env("TOOLGATE_API_KEY", callAPIKey)
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required (use --api-key or set TOOLGATE_API_KEY)")
		os.Exit(ExitPolicyDenied)
	}
	gatewayURL := goutils.Env("TOOLGATE_GATEWAY_URL", callGatewayURL)

	arguments := map[string]any{}
	if callArgs != "" {
		if err := json.Unmarshal([]byte(callArgs), &arguments); err != nil {
			return fmt.Errorf("parsing --args: %w", err)
		}
	}
	if len(args) == 1 {
		if callTool != tools.ToolBash {
			return fmt.Errorf("positional command only applies to the Bash tool")
		}
		arguments["command"] = args[0]
	}
	if len(arguments) == 0 {
		return fmt.Errorf("nothing to run: pass a command or --args")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(callTimeout)*time.Second)
	defer cancel()

	reqBody, _ := json.Marshal(map[string]any{
		"tool_name":  callTool,
		"arguments":  arguments,
		"session_id": callSessionID,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", gatewayURL+"/v1/execute", bytes.NewReader(reqBody))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitFailure)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach gateway at %s: %v\n", gatewayURL, err)
		os.Exit(ExitUnavailable)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var result tools.Result
		if err := json.Unmarshal(respBody, &result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid gateway response: %v\n", err)
			os.Exit(ExitFailure)
		}
		printResult(&result)
		os.Exit(exitCode(&result))

	case http.StatusUnauthorized:
		fmt.Fprintln(os.Stderr, "Error: authentication failed")
		os.Exit(ExitPolicyDenied)

	case http.StatusServiceUnavailable:
		fmt.Fprintln(os.Stderr, "Error: gateway not ready")
		os.Exit(ExitUnavailable)

	default:
		fmt.Fprintf(os.Stderr, "Error: gateway returned %d: %s\n", resp.StatusCode, string(respBody))
		os.Exit(ExitFailure)
	}
	return nil
}
