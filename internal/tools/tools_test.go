package tools

import (
	"strings"
	"testing"
)

func TestCallHighRisk(t *testing.T) {
	tests := []struct {
		name string
		tool string
		want bool
	}{
		{"bash is high risk", ToolBash, true},
		{"write is high risk", ToolWrite, true},
		{"edit is high risk", ToolEdit, true},
		{"task is high risk", ToolTask, true},
		{"notebook edit is high risk", ToolNotebookEdit, true},
		{"read is not high risk", ToolRead, false},
		{"glob is not high risk", ToolGlob, false},
		{"grep is not high risk", ToolGrep, false},
		{"todo write is not high risk", ToolTodoWrite, false},
		{"unknown tool defaults to high risk", "LaunchMissiles", true},
		{"empty name defaults to high risk", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Call{Name: tt.tool}
			if got := c.HighRisk(); got != tt.want {
				t.Errorf("HighRisk(%q) = %v, want %v", tt.tool, got, tt.want)
			}
		})
	}
}

func TestCallStringFallbackKeys(t *testing.T) {
	c := Call{Name: ToolRead, Arguments: map[string]any{"file_path": "/tmp/a.txt"}}
	if got := c.String("path", "file_path"); got != "/tmp/a.txt" {
		t.Errorf("String = %q, want %q", got, "/tmp/a.txt")
	}
	if got := c.String("content"); got != "" {
		t.Errorf("String on missing key = %q, want empty", got)
	}
	// Non-string values are skipped.
	c = Call{Name: ToolBash, Arguments: map[string]any{"timeout": 30}}
	if got := c.String("timeout"); got != "" {
		t.Errorf("String on non-string value = %q, want empty", got)
	}
}

func TestNewCallGeneratesID(t *testing.T) {
	a := NewCall(ToolBash, map[string]any{"command": "ls"})
	b := NewCall(ToolBash, map[string]any{"command": "ls"})
	if a.CallID == "" || b.CallID == "" {
		t.Fatal("expected generated call IDs")
	}
	if a.CallID == b.CallID {
		t.Error("call IDs should be unique per call")
	}
}

func TestFailure(t *testing.T) {
	r := Failure("backend unreachable")
	if r.Success {
		t.Error("Failure result must have Success=false")
	}
	if r.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", r.ExitCode)
	}
	if r.Error == "" {
		t.Error("failed result must carry a non-empty error")
	}
	if r.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
}

func TestTruncateOutput(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := TruncateOutput(long, 50)
	if len(got) > 50 {
		t.Errorf("truncated length = %d, want <= 50", len(got))
	}
	if !strings.Contains(got, "truncated") {
		t.Error("expected truncation notice")
	}
	if got := TruncateOutput("short", 50); got != "short" {
		t.Errorf("short string modified: %q", got)
	}
}
