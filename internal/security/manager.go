package security

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jkaninda/toolgate/internal/ratelimit"
	"github.com/jkaninda/toolgate/internal/tools"
)

// Config configures the security manager.
type Config struct {
	AllowedTools     []string // Empty = all tools allowed.
	BlockedTools     []string
	CommandBlacklist []string // Case-insensitive regular expressions.
	CommandWhitelist []string // Prefix match. Empty = no whitelist enforcement.
	WorkingDir       string
	RateLimit        ratelimit.Config
}

// Recorder receives one notification per recorded violation. Implemented
// by the metrics collector; nil-safe by omission.
type Recorder interface {
	RecordViolation(violationType, risk string)
}

// Manager composes the command analyzer, path validator, rate limiter,
// and tool allow/deny lists into one verdict per tool call. It owns the
// append-only violation log.
type Manager struct {
	analyzer *CommandAnalyzer
	paths    *PathValidator
	limiter  *ratelimit.Limiter

	allowedTools []string
	blockedTools []string

	mu         sync.Mutex
	violations []Finding

	recorder Recorder // Optional violation hook.
	logger   *slog.Logger
}

// Option configures optional hooks on a Manager.
type Option func(*Manager)

// WithRecorder forwards each recorded violation to r.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates a security manager. Blacklist compilation errors
// are configuration errors and fatal to startup.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) (*Manager, error) {
	analyzer, err := NewCommandAnalyzer(cfg.CommandBlacklist, cfg.CommandWhitelist)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		analyzer:     analyzer,
		paths:        NewPathValidator(cfg.WorkingDir),
		limiter:      ratelimit.NewLimiter(cfg.RateLimit),
		allowedTools: cfg.AllowedTools,
		blockedTools: cfg.BlockedTools,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Validate runs the ordered policy checks against one tool call.
// Returns nil when the call is allowed; otherwise an error wrapping
// ErrPermissionDenied whose message is the violated rule's description.
// The first failing check wins and is recorded as a violation.
//
// Order is deliberate — cheapest and most decisive checks first:
// rate limit, tool block-list, tool allow-list, then the tool-specific
// command or path check.
func (m *Manager) Validate(call tools.Call, callerID string) error {
	if callerID == "" {
		callerID = ratelimit.DefaultKey
	}

	if err := m.limiter.Allow(callerID); err != nil {
		return m.deny(call, ViolationRateLimit, err.Error(), RiskMedium)
	}

	if slices.Contains(m.blockedTools, call.Name) {
		reason := fmt.Sprintf("tool %s is blocked", call.Name)
		return m.deny(call, ViolationToolBlocked, reason, RiskHigh)
	}

	if len(m.allowedTools) > 0 && !slices.Contains(m.allowedTools, call.Name) {
		reason := fmt.Sprintf("tool %s is not in the allow list", call.Name)
		return m.deny(call, ViolationToolNotAllowed, reason, RiskMedium)
	}

	switch call.Name {
	case tools.ToolBash:
		command := call.String("command")
		if safe, reason := m.analyzer.IsSafe(command); !safe {
			return m.deny(call, ViolationUnsafeCommand, reason, RiskHigh)
		}

	case tools.ToolRead:
		path := call.String("path", "file_path")
		if ok, reason := m.paths.ValidateRead(path); !ok {
			return m.deny(call, ViolationInvalidReadPath, reason, RiskMedium)
		}

	case tools.ToolWrite, tools.ToolEdit:
		path := call.String("path", "file_path")
		if ok, reason := m.paths.ValidateWrite(path); !ok {
			return m.deny(call, ViolationInvalidWritePath, reason, RiskHigh)
		}
	}

	return nil
}

// deny records the violation and returns the wrapped denial.
func (m *Manager) deny(call tools.Call, vtype, reason string, risk RiskLevel) error {
	f := Finding{
		Timestamp:   time.Now(),
		Type:        vtype,
		Description: reason,
		RiskLevel:   risk,
		Tool:        call.Name,
		Arguments:   call.Arguments,
		Blocked:     true,
	}

	m.mu.Lock()
	m.violations = append(m.violations, f)
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.RecordViolation(vtype, risk.String())
	}

	m.logger.Warn("security violation",
		slog.String("violation_type", vtype),
		slog.String("tool", call.Name),
		slog.String("risk_level", risk.String()),
		slog.String("description", reason),
	)

	return fmt.Errorf("%w: %s", ErrPermissionDenied, reason)
}

// Violations returns a copy of the violation log, optionally filtered by
// time range and risk level. Zero times and a negative risk disable the
// corresponding filter.
func (m *Manager) Violations(start, end time.Time, risk RiskLevel) []Finding {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Finding, 0, len(m.violations))
	for _, v := range m.violations {
		if !start.IsZero() && v.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && v.Timestamp.After(end) {
			continue
		}
		if risk >= 0 && v.RiskLevel != risk {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Export returns every violation as a flat record for log shipping.
func (m *Manager) Export() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]map[string]any, len(m.violations))
	for i, v := range m.violations {
		out[i] = v.Flat()
	}
	return out
}

// Stats aggregates violation counts by risk level and violation type.
type Stats struct {
	Total  int            `json:"total_violations"`
	ByRisk map[string]int `json:"by_risk_level"`
	ByType map[string]int `json:"by_violation_type"`
}

// Stats returns aggregate violation counts.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Total:  len(m.violations),
		ByRisk: make(map[string]int),
		ByType: make(map[string]int),
	}
	for _, v := range m.violations {
		s.ByRisk[v.RiskLevel.String()]++
		s.ByType[v.Type]++
	}
	return s
}
