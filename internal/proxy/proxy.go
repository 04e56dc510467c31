// Package proxy mediates tool calls: every call is validated against the
// security policy, executed in a sandbox, and audited, producing exactly
// one ExecutionResult per attempt.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/toolgate/internal/audit"
	"github.com/jkaninda/toolgate/internal/sandbox"
	"github.com/jkaninda/toolgate/internal/security"
	"github.com/jkaninda/toolgate/internal/tools"
)

// Outcome classifies a terminal proxy state, for metrics.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeFailed  = "failed"
)

// Recorder receives execution outcomes. Implemented by the metrics
// registry; a nil Recorder disables recording.
type Recorder interface {
	RecordExecution(tool, outcome string, elapsed time.Duration)
}

// ToolProxy is the mediation pipeline: validate, execute, audit.
// Safe for concurrent use.
type ToolProxy struct {
	security *security.Manager
	binder   sandbox.Binder
	audit    *audit.Logger
	recorder Recorder
	logger   *slog.Logger
}

// Option configures optional collaborators on a ToolProxy.
type Option func(*ToolProxy)

// WithRecorder wires outcome metrics.
func WithRecorder(r Recorder) Option {
	return func(p *ToolProxy) { p.recorder = r }
}

// New creates a ToolProxy over a security manager, a sandbox binder and
// an audit logger.
func New(sec *security.Manager, binder sandbox.Binder, auditLog *audit.Logger, logger *slog.Logger, opts ...Option) *ToolProxy {
	p := &ToolProxy{
		security: sec,
		binder:   binder,
		audit:    auditLog,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one tool call through the full pipeline and always
// returns a result — policy denials and backend failures come back as
// failed results with exit code -1, never as panics or errors. Exactly
// one audit entry is written per call.
func (p *ToolProxy) Execute(ctx context.Context, call tools.Call, userID, sessionID string) *tools.Result {
	start := time.Now()

	if err := p.security.Validate(call, userID); err != nil {
		result := tools.Failure(err.Error())
		p.finish(ctx, call, result, userID, sessionID, OutcomeDenied, start)
		return result
	}

	result := p.executeSandboxed(ctx, call)

	outcome := OutcomeAllowed
	if !result.Success {
		outcome = OutcomeFailed
	}
	p.finish(ctx, call, result, userID, sessionID, outcome, start)
	return result
}

// executeSandboxed acquires a sandbox, dispatches the call, and converts
// every backend error or panic into a failed result.
func (p *ToolProxy) executeSandboxed(ctx context.Context, call tools.Call) (result *tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "sandbox backend panicked",
				slog.String("tool", call.Name),
				slog.Any("panic", r),
			)
			result = tools.Failure(fmt.Sprintf("sandbox backend panicked: %v", r))
		}
	}()

	sb, err := p.binder.Acquire(ctx)
	if err != nil {
		return tools.Failure(err.Error())
	}
	defer p.binder.Release(ctx, sb)

	result, err = sandbox.ExecuteTool(ctx, sb, call)
	if err != nil {
		return tools.Failure(err.Error())
	}
	if result.SandboxID == "" {
		result.SandboxID = sb.ID()
	}
	return result
}

// finish stamps timing, audits, records metrics, and logs — the single
// exit path for every terminal state.
func (p *ToolProxy) finish(ctx context.Context, call tools.Call, result *tools.Result, userID, sessionID, outcome string, start time.Time) {
	elapsed := time.Since(start)
	result.ElapsedMS = elapsed.Milliseconds()
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	p.audit.Log(ctx, call, result, userID, sessionID)

	if p.recorder != nil {
		p.recorder.RecordExecution(call.Name, outcome, elapsed)
	}

	level := slog.LevelInfo
	if outcome != OutcomeAllowed {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "tool call finished",
		slog.String("tool", call.Name),
		slog.String("outcome", outcome),
		slog.Bool("success", result.Success),
		slog.Int64("elapsed_ms", result.ElapsedMS),
		slog.String("user_id", userID),
	)
}
