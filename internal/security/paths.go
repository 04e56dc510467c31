package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// sensitivePaths deny both read and write. Entries with a leading "~"
// are expanded against the current user's home directory at construction.
var sensitivePaths = []string{
	"/etc/passwd",
	"/etc/shadow",
	"/etc/sudoers",
	"/root",
	"~/.ssh",
	"~/.gnupg",
	"~/.aws",
	"~/.config",
}

// readOnlyPaths deny write only.
var readOnlyPaths = []string{
	"/etc",
	"/usr",
	"/bin",
	"/sbin",
	"/lib",
	"/lib64",
	"/boot",
	"/sys",
	"/proc",
	"/dev",
}

// PathValidator checks filesystem paths against the sensitive and
// read-only sets after normalization.
type PathValidator struct {
	workingDir string
	home       string
	sensitive  []string
	readOnly   []string
}

// NewPathValidator creates a validator that resolves relative paths
// against workingDir.
func NewPathValidator(workingDir string) *PathValidator {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/root"
	}

	sensitive := make([]string, len(sensitivePaths))
	for i, p := range sensitivePaths {
		if strings.HasPrefix(p, "~") {
			p = filepath.Join(home, p[1:])
		}
		sensitive[i] = p
	}

	return &PathValidator{
		workingDir: workingDir,
		home:       home,
		sensitive:  sensitive,
		readOnly:   readOnlyPaths,
	}
}

// ValidateRead reports whether the path may be read.
// Only the sensitive set is consulted.
func (v *PathValidator) ValidateRead(path string) (bool, string) {
	normalized := v.Normalize(path)
	for _, s := range v.sensitive {
		if strings.HasPrefix(normalized, s) || strings.Contains(normalized, s) {
			return false, fmt.Sprintf("read of sensitive path denied: %s", s)
		}
	}
	return true, ""
}

// ValidateWrite reports whether the path may be written.
// Both sets are consulted, sensitive first.
func (v *PathValidator) ValidateWrite(path string) (bool, string) {
	normalized := v.Normalize(path)
	for _, s := range v.sensitive {
		if strings.HasPrefix(normalized, s) || strings.Contains(normalized, s) {
			return false, fmt.Sprintf("write to sensitive path denied: %s", s)
		}
	}
	for _, r := range v.readOnly {
		if strings.HasPrefix(normalized, r) {
			return false, fmt.Sprintf("write to read-only system path denied: %s", r)
		}
	}
	return true, ""
}

// Normalize expands a leading home marker, resolves relative paths
// against the working directory, and collapses "." and ".." segments.
func (v *PathValidator) Normalize(path string) string {
	if strings.HasPrefix(path, "~") {
		path = filepath.Join(v.home, path[1:])
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.workingDir, path)
	}
	return filepath.Clean(path)
}
