package proxy

import (
	"context"
	"maps"

	"github.com/jkaninda/toolgate/internal/tools"
)

// Decision behaviors for the permission callback protocol.
const (
	BehaviorAllow = "allow"
	BehaviorDeny  = "deny"
)

// Reserved keys injected into the updated input of an allowed decision
// after sandboxed execution.
const (
	KeySandboxResult   = "_sandbox_result"
	KeySandboxExecuted = "_sandbox_executed"
)

// Decision is the outcome of a permission check. Allowed decisions may
// rewrite the tool input; denied ones carry a human-readable message.
type Decision struct {
	Behavior     string         `json:"behavior"`
	UpdatedInput map[string]any `json:"updatedInput,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// Allow builds an allowed decision with the given input.
func Allow(updatedInput map[string]any) Decision {
	return Decision{Behavior: BehaviorAllow, UpdatedInput: updatedInput}
}

// Deny builds a denied decision.
func Deny(message string) Decision {
	return Decision{Behavior: BehaviorDeny, Message: message}
}

// Allowed reports whether the decision permits the call.
func (d Decision) Allowed() bool { return d.Behavior == BehaviorAllow }

// PermissionFunc is the hook shape agent runtimes call before running a
// tool themselves.
type PermissionFunc func(ctx context.Context, toolName string, input map[string]any) Decision

// PermissionCallback adapts the proxy to a runtime permission hook.
//
// Low-risk tools are allowed through untouched — the runtime executes
// them itself. High-risk tools (and unknown ones, fail-closed) are
// executed in the sandbox here and now: on success the call is allowed
// with the sandbox result embedded under the reserved keys, so the
// runtime can skip its own execution; on denial or failure the call is
// denied with the reason.
func (p *ToolProxy) PermissionCallback(userID, sessionID string) PermissionFunc {
	return func(ctx context.Context, toolName string, input map[string]any) Decision {
		call := tools.Call{Name: toolName, Arguments: input}
		if !call.HighRisk() {
			return Allow(input)
		}

		result := p.Execute(ctx, call, userID, sessionID)
		if !result.Success {
			msg := result.Error
			if msg == "" {
				msg = "sandboxed execution failed"
			}
			return Deny(msg)
		}

		updated := make(map[string]any, len(input)+2)
		maps.Copy(updated, input)
		updated[KeySandboxResult] = result.Output
		updated[KeySandboxExecuted] = true
		return Allow(updated)
	}
}
