// Package sandbox provides isolated execution backends for tool calls:
// a process-based sandbox for local development and a Docker-based one
// for hardened deployments, plus a pool that bounds and reuses them.
package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

const (
	// maxOutputBytes caps stdout/stderr to prevent OOM from chatty commands.
	maxOutputBytes = tools.MaxOutputBytes

	defaultTimeout    = 30 * time.Second
	defaultCPUSeconds = 60
	defaultMemoryMB   = 512
)

// ErrNotConnected is returned by operations on a sandbox whose Connect
// has not succeeded (or whose Disconnect already ran).
var ErrNotConnected = errors.New("sandbox: not connected")

// ResourceLimits bounds a single execution.
type ResourceLimits struct {
	MaxCPUSeconds int
	MaxMemoryMB   int
}

// Sandbox is an isolated execution environment. Implementations hold a
// session: Connect acquires the underlying resources, Disconnect releases
// them, and every operation between the two runs inside that session.
//
// All operations return a Result describing the outcome; the error return
// is reserved for transport-level failures (backend unreachable, timeout)
// where no result could be produced.
type Sandbox interface {
	// ID identifies the sandbox instance for audit correlation.
	ID() string

	// Connected reports whether the session is live.
	Connected() bool

	// Connect establishes the session. Calling Connect on a live session
	// is a no-op.
	Connect(ctx context.Context) error

	// Disconnect tears the session down and releases its resources.
	// Idempotent.
	Disconnect(ctx context.Context) error

	// ExecuteBash runs a shell command. A zero timeout selects the
	// sandbox default. A non-zero exit code is a result, not an error.
	ExecuteBash(ctx context.Context, command string, timeout time.Duration) (*tools.Result, error)

	// ReadFile returns the contents of a file in the result output.
	ReadFile(ctx context.Context, path string) (*tools.Result, error)

	// WriteFile writes content to a file, creating parent directories.
	WriteFile(ctx context.Context, path, content string) (*tools.Result, error)

	// ListFiles lists entries under path, optionally filtered by a glob
	// pattern, one per output line.
	ListFiles(ctx context.Context, path, pattern string) (*tools.Result, error)

	// SearchFiles greps for pattern under path, optionally restricted to
	// files matching filePattern. Matches are "path:line:text" lines.
	SearchFiles(ctx context.Context, pattern, path, filePattern string) (*tools.Result, error)
}

// Factory creates a new, unconnected sandbox. The pool owns the
// Connect/Disconnect lifecycle of everything a factory produces.
type Factory func() (Sandbox, error)

// generateSandboxID returns a unique id: <prefix>-<16 hex chars>.
func generateSandboxID(prefix string) (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "-" + hex.EncodeToString(b), nil
}

// limitedWriter wraps a writer and stops writing after a byte limit.
// Excess data is silently discarded (not an error — just capped).
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		return len(p), nil // Silently discard.
	}
	if len(p) > lw.remaining {
		p = p[:lw.remaining]
	}
	n, err := lw.w.Write(p)
	lw.remaining -= n
	return n, err
}
