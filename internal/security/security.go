// Package security implements default-deny policy enforcement for tool
// calls: command risk analysis, path validation, rate limiting, and the
// composed manager that produces one verdict per call.
package security

import (
	"errors"
	"time"
)

// ErrPermissionDenied is the sentinel wrapped by every policy denial.
var ErrPermissionDenied = errors.New("permission denied")

// RiskLevel classifies the danger of a finding.
type RiskLevel int

// RiskAny disables risk-level filtering in Manager.Violations.
const RiskAny RiskLevel = -1

const (
	RiskLow      RiskLevel = iota // Recorded, never blocking.
	RiskMedium                    // Recorded, never blocking.
	RiskHigh                      // Blocking.
	RiskCritical                  // Blocking.
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseRiskLevel converts a string to a RiskLevel.
// Unrecognized values default to RiskCritical (default-deny principle).
func ParseRiskLevel(s string) RiskLevel {
	switch s {
	case "low":
		return RiskLow
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	case "critical":
		return RiskCritical
	default:
		return RiskCritical
	}
}

// Blocking reports whether findings at this level deny the call.
// Low and medium findings are recorded but non-blocking.
func (r RiskLevel) Blocking() bool { return r >= RiskHigh }

// Violation types. The first seven mirror the catalog categories; the
// rest are produced by the manager's own checks.
const (
	ViolationFilesystemDestruction = "filesystem_destruction"
	ViolationSystemDestruction     = "system_destruction"
	ViolationPrivilegeEscalation   = "privilege_escalation"
	ViolationRemoteCodeExecution   = "remote_code_execution"
	ViolationNetworkAttack         = "network_attack"
	ViolationInformationDisclosure = "information_disclosure"
	ViolationResourceExhaustion    = "resource_exhaustion"

	ViolationBlacklistMatch     = "blacklist_match"
	ViolationWhitelistViolation = "whitelist_violation"
	ViolationRateLimit          = "rate_limit"
	ViolationToolBlocked        = "tool_blocked"
	ViolationToolNotAllowed     = "tool_not_allowed"
	ViolationUnsafeCommand      = "unsafe_command"
	ViolationInvalidReadPath    = "invalid_read_path"
	ViolationInvalidWritePath   = "invalid_write_path"
)

// Finding is a single policy-check match against a command or path.
// Append-only: never mutated after creation.
type Finding struct {
	Timestamp   time.Time      `json:"timestamp"`
	Type        string         `json:"violation_type"`
	Description string         `json:"description"`
	RiskLevel   RiskLevel      `json:"-"`
	Tool        string         `json:"tool_name"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Blocked     bool           `json:"blocked"`
}

// Flat returns the finding as a flat record for export.
func (f Finding) Flat() map[string]any {
	return map[string]any{
		"timestamp":      f.Timestamp.Format(time.RFC3339Nano),
		"violation_type": f.Type,
		"description":    f.Description,
		"risk_level":     f.RiskLevel.String(),
		"tool_name":      f.Tool,
		"blocked":        f.Blocked,
	}
}
