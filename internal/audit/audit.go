// Package audit keeps the append-only record of every tool-call attempt
// and its outcome. Entries are held in memory for export and optionally
// mirrored to a JSONL file and a database store.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

// maxOutputInEntry caps the output captured per entry. Full output stays
// in the ExecutionResult returned to the caller; the audit trail only
// keeps a summary.
const maxOutputInEntry = 1000

// Entry is an immutable record of one tool-call attempt.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Tool      string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Success   bool           `json:"success"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	ExitCode  int            `json:"exit_code"`
	ElapsedMS int64          `json:"execution_time_ms"`
	SandboxID string         `json:"sandbox_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
}

// Flat returns the entry as a flat key-value record for log shipping.
func (e Entry) Flat() map[string]any {
	return map[string]any{
		"timestamp":         e.Timestamp.Format(time.RFC3339Nano),
		"tool_name":         e.Tool,
		"success":           e.Success,
		"output":            e.Output,
		"error":             e.Error,
		"exit_code":         e.ExitCode,
		"execution_time_ms": e.ElapsedMS,
		"sandbox_id":        e.SandboxID,
		"user_id":           e.UserID,
		"session_id":        e.SessionID,
	}
}

// Store persists audit entries. Append-only: no update or delete methods
// exist — immutability is enforced at the interface level.
type Store interface {
	Append(ctx context.Context, e Entry) error
}

// Logger is the append-only audit log. Safe for concurrent writers; the
// order of entries reflects call completion order.
type Logger struct {
	enabled bool

	mu      sync.Mutex
	entries []Entry
	file    *os.File

	store  Store // Optional durable store. Failures are logged, not escalated.
	logger *slog.Logger
}

// Option configures optional sinks on a Logger.
type Option func(*Logger)

// WithStore mirrors entries into a durable store.
func WithStore(s Store) Option {
	return func(l *Logger) { l.store = s }
}

// NewLogger creates an audit logger. When path is non-empty, entries are
// also appended to a JSONL file (one JSON object per line, 0600).
// A disabled logger discards everything.
func NewLogger(enabled bool, path string, logger *slog.Logger, opts ...Option) (*Logger, error) {
	l := &Logger{enabled: enabled, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	if enabled && path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return nil, fmt.Errorf("opening audit log %s: %w", path, err)
		}
		l.file = f
	}
	return l, nil
}

// Log appends one entry for a completed call attempt. Exactly one entry
// is written per ToolProxy execution regardless of outcome.
func (l *Logger) Log(ctx context.Context, call tools.Call, result *tools.Result, userID, sessionID string) {
	if !l.enabled {
		return
	}

	entry := Entry{
		Timestamp: time.Now(),
		Tool:      call.Name,
		Arguments: call.Arguments,
		Success:   result.Success,
		Output:    tools.TruncateOutput(result.Output, maxOutputInEntry),
		Error:     result.Error,
		ExitCode:  result.ExitCode,
		ElapsedMS: result.ElapsedMS,
		SandboxID: result.SandboxID,
		UserID:    userID,
		SessionID: sessionID,
	}

	// Marshal outside the lock; only the append and file write are serialized.
	var line []byte
	if l.file != nil {
		if data, err := json.Marshal(entry); err == nil {
			line = append(data, '\n')
		}
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	var writeErr error
	if l.file != nil && line != nil {
		_, writeErr = l.file.Write(line)
	}
	l.mu.Unlock()

	if writeErr != nil {
		l.logger.ErrorContext(ctx, "audit file write failed",
			slog.String("error", writeErr.Error()),
		)
	}

	if l.store != nil {
		if err := l.store.Append(ctx, entry); err != nil {
			l.logger.ErrorContext(ctx, "audit store append failed",
				slog.String("tool", entry.Tool),
				slog.String("error", err.Error()),
			)
		}
	}

	level := slog.LevelInfo
	if !result.Success {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "audit",
		slog.String("tool", call.Name),
		slog.Bool("success", result.Success),
		slog.Int64("elapsed_ms", result.ElapsedMS),
		slog.String("sandbox_id", result.SandboxID),
	)
}

// Entries returns a copy of the log, optionally filtered by time range
// and tool name. Zero times and an empty tool disable the filters.
func (l *Logger) Entries(start, end time.Time, tool string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if !start.IsZero() && e.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			continue
		}
		if tool != "" && e.Tool != tool {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Export returns every entry as a flat record, preserving append order.
func (l *Logger) Export() []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]map[string]any, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Flat()
	}
	return out
}

// Len returns the number of entries.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close closes the JSONL file sink, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
