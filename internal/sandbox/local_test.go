package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

func newConnectedLocal(t *testing.T) *LocalSandbox {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}

	s := NewLocalSandbox(LocalConfig{WorkingDir: t.TempDir()}, discardLogger())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestLocalExecuteBash(t *testing.T) {
	s := newConnectedLocal(t)

	result, err := s.ExecuteBash(context.Background(), "echo hello", 0)
	if err != nil {
		t.Fatalf("ExecuteBash: %v", err)
	}
	if !result.Success || result.ExitCode != 0 {
		t.Fatalf("result = %+v, want success", result)
	}
	if got := strings.TrimSpace(result.Output); got != "hello" {
		t.Errorf("output = %q, want hello", got)
	}
	if result.SandboxID == "" {
		t.Error("result should carry the sandbox id")
	}
}

func TestLocalExecuteBashNonZeroExit(t *testing.T) {
	s := newConnectedLocal(t)

	result, err := s.ExecuteBash(context.Background(), "exit 3", 0)
	if err != nil {
		t.Fatalf("non-zero exit must be a result, not an error: %v", err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
	if result.Error == "" {
		t.Error("failed result must carry an error message")
	}
}

func TestLocalExecuteBashTimeout(t *testing.T) {
	s := newConnectedLocal(t)

	_, err := s.ExecuteBash(context.Background(), "sleep 5", 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("err = %v, want a timeout", err)
	}
}

func TestLocalExecuteBashNoEnvLeak(t *testing.T) {
	t.Setenv("TOOLGATE_TEST_SECRET", "hunter2")
	s := newConnectedLocal(t)

	result, err := s.ExecuteBash(context.Background(), "env", 0)
	if err != nil {
		t.Fatalf("ExecuteBash: %v", err)
	}
	if strings.Contains(result.Output, "hunter2") {
		t.Error("host environment leaked into the sandbox")
	}
}

func TestLocalFileRoundTrip(t *testing.T) {
	s := newConnectedLocal(t)
	ctx := context.Background()

	write, err := s.WriteFile(ctx, "notes/todo.txt", "buy milk")
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !write.Success || len(write.FilesCreated) != 1 {
		t.Fatalf("write result = %+v, want one created file", write)
	}

	read, err := s.ReadFile(ctx, "notes/todo.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if read.Output != "buy milk" {
		t.Errorf("read output = %q, want buy milk", read.Output)
	}

	// Overwrite reports modified, not created.
	write, err = s.WriteFile(ctx, "notes/todo.txt", "buy oat milk")
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if len(write.FilesModified) != 1 || len(write.FilesCreated) != 0 {
		t.Errorf("overwrite result = %+v, want one modified file", write)
	}
}

func TestLocalReadMissingFile(t *testing.T) {
	s := newConnectedLocal(t)

	result, err := s.ReadFile(context.Background(), "does/not/exist.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if result.Success {
		t.Error("reading a missing file must fail")
	}
	if result.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", result.ExitCode)
	}
}

func TestLocalListFiles(t *testing.T) {
	s := newConnectedLocal(t)
	ctx := context.Background()

	for _, name := range []string{"a.go", "b.go", "c.txt"} {
		if _, err := s.WriteFile(ctx, name, "x"); err != nil {
			t.Fatal(err)
		}
	}

	result, err := s.ListFiles(ctx, "", "*.go")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	lines := strings.Split(result.Output, "\n")
	if len(lines) != 2 {
		t.Fatalf("matches = %v, want 2", lines)
	}
	if !strings.HasSuffix(lines[0], "a.go") || !strings.HasSuffix(lines[1], "b.go") {
		t.Errorf("matches = %v, want a.go and b.go", lines)
	}
}

func TestLocalSearchFiles(t *testing.T) {
	s := newConnectedLocal(t)
	ctx := context.Background()

	if _, err := s.WriteFile(ctx, "main.go", "package main\nfunc main() {}\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.WriteFile(ctx, "readme.md", "hello\n"); err != nil {
		t.Fatal(err)
	}

	result, err := s.SearchFiles(ctx, `func \w+`, "", "*.go")
	if err != nil {
		t.Fatalf("SearchFiles: %v", err)
	}
	if !strings.Contains(result.Output, "main.go:2:") {
		t.Errorf("output = %q, want a main.go:2 match", result.Output)
	}
	if strings.Contains(result.Output, "readme.md") {
		t.Error("file pattern filter was ignored")
	}
}

func TestLocalDisconnectRemovesOwnedWorkspace(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	s := NewLocalSandbox(LocalConfig{}, discardLogger())
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	workDir := s.workDir
	if _, err := os.Stat(workDir); err != nil {
		t.Fatalf("workspace missing after Connect: %v", err)
	}

	if err := s.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := os.Stat(workDir); !os.IsNotExist(err) {
		t.Error("owned workspace should be removed on Disconnect")
	}

	// Idempotent.
	if err := s.Disconnect(ctx); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}
}

func TestLocalOpsRequireConnection(t *testing.T) {
	s := NewLocalSandbox(LocalConfig{WorkingDir: t.TempDir()}, discardLogger())

	if _, err := s.ExecuteBash(context.Background(), "true", 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
	if _, err := s.ReadFile(context.Background(), "x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "/ws"},
		{"a/b.txt", "/ws/a/b.txt"},
		{"/abs/file", "/abs/file"},
		{"./a/../b", "/ws/b"},
	}
	for _, tt := range tests {
		if got := resolve("/ws", tt.path); got != filepath.Clean(tt.want) {
			t.Errorf("resolve(/ws, %q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLocalEditThroughDispatcher(t *testing.T) {
	s := newConnectedLocal(t)
	ctx := context.Background()

	if _, err := s.WriteFile(ctx, "cfg.yaml", "debug: false\n"); err != nil {
		t.Fatal(err)
	}

	call := tools.Call{Name: tools.ToolEdit, Arguments: map[string]any{
		"file_path":  "cfg.yaml",
		"old_string": "debug: false",
		"new_string": "debug: true",
	}}
	result, err := ExecuteTool(ctx, s, call)
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if !result.Success {
		t.Fatalf("edit failed: %s", result.Error)
	}

	read, err := s.ReadFile(ctx, "cfg.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if read.Output != "debug: true\n" {
		t.Errorf("content = %q, want debug: true", read.Output)
	}
}
