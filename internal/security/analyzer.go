package security

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

// riskRule is one entry in the built-in catalog of dangerous command patterns.
type riskRule struct {
	pattern     *regexp.Regexp
	description string
	risk        RiskLevel
}

func rule(pattern, description string, risk RiskLevel) riskRule {
	return riskRule{
		pattern:     regexp.MustCompile("(?i)" + pattern),
		description: description,
		risk:        risk,
	}
}

// riskCatalog maps violation categories to their dangerous command
// patterns. The patterns intentionally overlap with the configurable
// blacklist — the catalog is the floor, not the ceiling.
var riskCatalog = map[string][]riskRule{
	ViolationFilesystemDestruction: {
		rule(`rm\s+-rf\s+/(\s|$)`, "root directory deletion", RiskCritical),
		rule(`rm\s+-rf\s+/\*`, "deletion of all files under root", RiskCritical),
		rule(`rm\s+-rf\s+~`, "home directory deletion", RiskHigh),
		rule(`mkfs\.\w+`, "filesystem format", RiskCritical),
		rule(`dd\s+if=/dev/(zero|random)\s+of=/dev/[sh]d`, "disk overwrite", RiskCritical),
	},
	ViolationSystemDestruction: {
		rule(`:\(\)\{\s*:\|:&\s*\};:`, "fork bomb", RiskCritical),
		rule(`>\s*/dev/[sh]d[a-z]`, "disk device overwrite", RiskCritical),
		rule(`chmod\s+-R\s+777\s+/`, "recursive world-writable permissions on root", RiskHigh),
		rule(`chmod\s+777\s+/etc`, "world-writable system configuration", RiskHigh),
	},
	ViolationPrivilegeEscalation: {
		rule(`\bsudo\b`, "sudo invocation", RiskHigh),
		rule(`\bsu\s+-`, "user switch", RiskHigh),
		rule(`chmod\s+\+?[ugo]*s`, "setuid/setgid bit", RiskHigh),
	},
	ViolationRemoteCodeExecution: {
		rule(`curl.*\|\s*(ba)?sh`, "remote script execution (curl)", RiskCritical),
		rule(`wget.*\|\s*(ba)?sh`, "remote script execution (wget)", RiskCritical),
		rule(`curl.*-o\s*/tmp.*&&.*sh`, "download and execute", RiskHigh),
		rule(`python\s+-c\s+['"]import\s+urllib`, "python remote download", RiskMedium),
	},
	ViolationNetworkAttack: {
		rule(`nc\s+-l`, "network listener", RiskHigh),
		rule(`nmap\s+`, "network scan", RiskMedium),
		rule(`tcpdump\s+`, "packet capture", RiskMedium),
	},
	ViolationInformationDisclosure: {
		rule(`cat\s+/etc/passwd`, "user list read", RiskLow),
		rule(`cat\s+/etc/shadow`, "password hash read", RiskHigh),
		rule(`cat\s+~/\.ssh/`, "SSH key read", RiskHigh),
		rule(`cat\s+.*\.env`, "environment file read", RiskMedium),
		rule(`printenv|env\s*$`, "environment dump", RiskLow),
	},
	ViolationResourceExhaustion: {
		rule(`while\s+true.*do`, "infinite loop", RiskMedium),
		rule(`for\s*\(\s*;\s*;\s*\)`, "infinite loop", RiskMedium),
		rule(`dd\s+if=/dev/zero\s+of=`, "disk fill", RiskHigh),
		rule(`yes\s+`, "unbounded output", RiskMedium),
	},
}

// CommandAnalyzer evaluates shell commands against the built-in risk
// catalog plus a caller-supplied blacklist and optional whitelist.
type CommandAnalyzer struct {
	blacklist []*regexp.Regexp
	whitelist []string // Prefix match. Empty = no whitelist enforcement.
}

// NewCommandAnalyzer compiles the caller-supplied blacklist patterns
// (case-insensitive). Invalid patterns are a configuration error.
func NewCommandAnalyzer(blacklist, whitelist []string) (*CommandAnalyzer, error) {
	compiled := make([]*regexp.Regexp, 0, len(blacklist))
	for _, p := range blacklist {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("compiling blacklist pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &CommandAnalyzer{blacklist: compiled, whitelist: whitelist}, nil
}

// Analyze collects every finding the command raises. Matches are never
// short-circuited — one command can raise findings in several categories.
// An empty command trivially raises none.
func (a *CommandAnalyzer) Analyze(command string) []Finding {
	if command == "" {
		return nil
	}

	var findings []Finding
	add := func(vtype, description string, risk RiskLevel) {
		findings = append(findings, Finding{
			Timestamp:   time.Now(),
			Type:        vtype,
			Description: description,
			RiskLevel:   risk,
			Tool:        tools.ToolBash,
			Arguments:   map[string]any{"command": command},
			Blocked:     risk.Blocking(),
		})
	}

	for _, re := range a.blacklist {
		if re.MatchString(command) {
			add(ViolationBlacklistMatch,
				fmt.Sprintf("command matches blacklist pattern: %s", re.String()),
				RiskHigh)
		}
	}

	for category, rules := range riskCatalog {
		for _, r := range rules {
			if r.pattern.MatchString(command) {
				add(category, r.description, r.risk)
			}
		}
	}

	if len(a.whitelist) > 0 {
		allowed := false
		for _, prefix := range a.whitelist {
			if strings.HasPrefix(strings.TrimSpace(command), prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			add(ViolationWhitelistViolation, "command is not in the whitelist", RiskMedium)
		}
	}

	return findings
}

// IsSafe reports whether the command may run. It returns false iff at
// least one finding is high or critical; the reason joins every blocking
// finding's description and severity. Low/medium findings never block
// but a configured whitelist with no match does.
func (a *CommandAnalyzer) IsSafe(command string) (bool, string) {
	findings := a.Analyze(command)

	var reasons []string
	for _, f := range findings {
		if f.RiskLevel.Blocking() || f.Type == ViolationWhitelistViolation {
			reasons = append(reasons, fmt.Sprintf("%s (%s)", f.Description, f.RiskLevel))
		}
	}
	if len(reasons) > 0 {
		return false, strings.Join(reasons, "; ")
	}
	return true, ""
}
