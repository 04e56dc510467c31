package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

// ErrUnsupportedTool wraps the tool name of a call the dispatcher cannot
// route. Callers treat it as a contract violation, not a policy denial.
type ErrUnsupportedTool struct {
	Tool string
}

func (e ErrUnsupportedTool) Error() string {
	return fmt.Sprintf("sandbox: unsupported tool %q", e.Tool)
}

// ExecuteTool routes a validated call to the matching sandbox operation.
// Bash, Read, Write, Edit, Glob and Grep map directly; everything else is
// rejected with ErrUnsupportedTool.
func ExecuteTool(ctx context.Context, s Sandbox, call tools.Call) (*tools.Result, error) {
	switch call.Name {
	case tools.ToolBash:
		return s.ExecuteBash(ctx, call.String("command"), callTimeout(call))

	case tools.ToolRead:
		return s.ReadFile(ctx, call.String("path", "file_path"))

	case tools.ToolWrite:
		return s.WriteFile(ctx,
			call.String("path", "file_path"),
			call.String("content"),
		)

	case tools.ToolEdit:
		return applyEdit(ctx, s, call)

	case tools.ToolGlob:
		return s.ListFiles(ctx,
			call.String("path"),
			call.String("pattern"),
		)

	case tools.ToolGrep:
		return s.SearchFiles(ctx,
			call.String("pattern"),
			call.String("path"),
			call.String("glob", "include", "file_pattern"),
		)
	}
	return nil, ErrUnsupportedTool{Tool: call.Name}
}

// applyEdit performs Edit as a read-modify-write composite: read the
// file, replace the first occurrence of old_string, write the file back.
// A missing old_string is a failure, not a no-op. An empty old_string
// writes new_string verbatim (file creation).
func applyEdit(ctx context.Context, s Sandbox, call tools.Call) (*tools.Result, error) {
	path := call.String("path", "file_path")
	oldStr := call.String("old_string", "old_text")
	newStr := call.String("new_string", "new_text")

	if oldStr == "" {
		return s.WriteFile(ctx, path, newStr)
	}

	read, err := s.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if !read.Success {
		return read, nil
	}

	if !strings.Contains(read.Output, oldStr) {
		return tools.Failure(fmt.Sprintf("old_string not found in %s", path)), nil
	}
	updated := strings.Replace(read.Output, oldStr, newStr, 1)

	result, err := s.WriteFile(ctx, path, updated)
	if err != nil {
		return nil, err
	}
	if result.Success {
		result.FilesModified = append(result.FilesModified, path)
		result.FilesCreated = nil
	}
	return result, nil
}

// callTimeout extracts the optional per-call timeout, given in seconds.
// JSON decoding yields float64; string values are tolerated. Zero means
// "use the sandbox default".
func callTimeout(call tools.Call) time.Duration {
	switch v := call.Arguments["timeout"].(type) {
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case string:
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}
