// Package tools defines the tool-call data model shared by the security,
// sandbox, and proxy layers: the call itself, its execution result, and
// the closed tool enumeration with its risk classification.
package tools

import (
	"time"

	"github.com/google/uuid"
)

// Tool names recognized by the dispatcher. Anything outside this set is
// treated as unknown and therefore high-risk (fail-closed).
const (
	ToolBash         = "Bash"
	ToolRead         = "Read"
	ToolWrite        = "Write"
	ToolEdit         = "Edit"
	ToolGlob         = "Glob"
	ToolGrep         = "Grep"
	ToolTask         = "Task"
	ToolWebFetch     = "WebFetch"
	ToolWebSearch    = "WebSearch"
	ToolNotebookEdit = "NotebookEdit"
	ToolTodoWrite    = "TodoWrite"
)

// knownTools is the closed enumeration of recognized tool names.
var knownTools = map[string]bool{
	ToolBash:         true,
	ToolRead:         true,
	ToolWrite:        true,
	ToolEdit:         true,
	ToolGlob:         true,
	ToolGrep:         true,
	ToolTask:         true,
	ToolWebFetch:     true,
	ToolWebSearch:    true,
	ToolNotebookEdit: true,
	ToolTodoWrite:    true,
}

// highRiskTools require sandboxed execution: they run commands or mutate
// state. Unknown tools are also high-risk — see Call.HighRisk.
var highRiskTools = map[string]bool{
	ToolBash:         true,
	ToolWrite:        true,
	ToolEdit:         true,
	ToolTask:         true,
	ToolNotebookEdit: true,
}

// readOnlyTools never mutate the backend.
var readOnlyTools = map[string]bool{
	ToolRead: true,
	ToolGlob: true,
	ToolGrep: true,
}

// Known reports whether the tool name is part of the closed enumeration.
func Known(name string) bool { return knownTools[name] }

// ReadOnly reports whether the tool is in the read-only set.
func ReadOnly(name string) bool { return readOnlyTools[name] }

// Call is a single tool invocation requested by the agent runtime.
// Immutable once constructed.
type Call struct {
	Name      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	CallID    string         `json:"call_id,omitempty"`
}

// NewCall creates a Call with a generated call ID.
func NewCall(name string, args map[string]any) Call {
	return Call{Name: name, Arguments: args, CallID: uuid.New().String()}
}

// HighRisk reports whether the call must be routed through a sandbox.
// Unknown tool names are high-risk by default.
func (c Call) HighRisk() bool {
	if !knownTools[c.Name] {
		return true
	}
	return highRiskTools[c.Name]
}

// String returns the string argument under the first key that is set.
// The upstream runtime is inconsistent about argument naming
// ("path" vs "file_path", "old_string" vs "old_text").
func (c Call) String(keys ...string) string {
	for _, k := range keys {
		if v, ok := c.Arguments[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Result captures the outcome of one call attempt. Produced exactly once
// per attempt; immutable after construction.
//
// Invariant: Success=false implies Error is non-empty.
type Result struct {
	Success   bool      `json:"success"`
	Output    string    `json:"output"`
	Error     string    `json:"error,omitempty"`
	ExitCode  int       `json:"exit_code"`
	ElapsedMS int64     `json:"execution_time_ms"`
	SandboxID string    `json:"sandbox_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	FilesCreated  []string `json:"files_created,omitempty"`
	FilesModified []string `json:"files_modified,omitempty"`
	FilesDeleted  []string `json:"files_deleted,omitempty"`
}

// Failure builds a failed Result with exit code -1. Used for policy
// denials and backend errors, which never carry a meaningful exit code.
func Failure(errMsg string) *Result {
	return &Result{
		Success:   false,
		Error:     errMsg,
		ExitCode:  -1,
		Timestamp: time.Now(),
	}
}

// MaxOutputBytes is the default cap for tool output to prevent OOM.
const MaxOutputBytes = 1 << 20 // 1 MB

// TruncateOutput caps a string at maxBytes, appending a truncation notice if cut.
func TruncateOutput(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	const suffix = "\n... [output truncated]"
	if maxBytes <= len(suffix) {
		return s[:maxBytes]
	}
	return s[:maxBytes-len(suffix)] + suffix
}
