package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

const (
	// maxSearchMatches caps Grep output to keep results readable.
	maxSearchMatches = 1000

	// maxSearchFileBytes skips very large files during search.
	maxSearchFileBytes = 10 << 20 // 10 MB
)

// LocalConfig configures the process-based sandbox.
type LocalConfig struct {
	// WorkingDir anchors relative paths and command execution. Empty
	// means a private temp workspace, created on Connect and removed on
	// Disconnect.
	WorkingDir     string
	DefaultTimeout time.Duration
	Limits         ResourceLimits
	Env            map[string]string
}

// LocalSandbox executes tool calls as isolated OS processes on the host.
//
// Security guarantees:
//   - Commands run in their own process group (Setpgid); the entire
//     group is killed on timeout/cancel
//   - No environment inheritance from the parent — only a minimal safe set
//   - Resource limits enforced via ulimit
//   - stdout/stderr capped to prevent OOM
//
// It offers process-level isolation only; use DockerSandbox when the
// workload is untrusted.
type LocalSandbox struct {
	cfg    LocalConfig
	logger *slog.Logger

	mu          sync.Mutex
	id          string
	connected   bool
	workDir     string
	ownsWorkDir bool
}

// NewLocalSandbox creates a process-based sandbox. Call Connect before use.
func NewLocalSandbox(cfg LocalConfig, logger *slog.Logger) *LocalSandbox {
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.Limits.MaxCPUSeconds == 0 {
		cfg.Limits.MaxCPUSeconds = defaultCPUSeconds
	}
	if cfg.Limits.MaxMemoryMB == 0 {
		cfg.Limits.MaxMemoryMB = defaultMemoryMB
	}
	return &LocalSandbox{cfg: cfg, logger: logger}
}

// ID implements Sandbox.
func (s *LocalSandbox) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Connected implements Sandbox.
func (s *LocalSandbox) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect prepares the workspace directory and marks the session live.
func (s *LocalSandbox) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	id, err := generateSandboxID("local")
	if err != nil {
		return fmt.Errorf("generating sandbox id: %w", err)
	}

	workDir := s.cfg.WorkingDir
	owns := false
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "toolgate-sbx-*")
		if err != nil {
			return fmt.Errorf("creating sandbox workspace: %w", err)
		}
		owns = true
	} else {
		if err := os.MkdirAll(workDir, 0750); err != nil {
			return fmt.Errorf("creating sandbox workspace %s: %w", workDir, err)
		}
	}

	s.id = id
	s.workDir = workDir
	s.ownsWorkDir = owns
	s.connected = true

	s.logger.Info("local sandbox connected",
		slog.String("sandbox_id", id),
		slog.String("workspace", workDir),
	)
	return nil
}

// Disconnect removes the private workspace (when owned) and marks the
// session closed. Idempotent.
func (s *LocalSandbox) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false

	if s.ownsWorkDir {
		if err := os.RemoveAll(s.workDir); err != nil {
			s.logger.Warn("failed to remove sandbox workspace",
				slog.String("dir", s.workDir),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.Info("local sandbox disconnected", slog.String("sandbox_id", s.id))
	return nil
}

// session snapshots the live state, failing fast when disconnected.
func (s *LocalSandbox) session() (id, workDir string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return "", "", ErrNotConnected
	}
	return s.id, s.workDir, nil
}

// resolve anchors relative paths at the workspace.
func resolve(workDir, path string) string {
	if path == "" {
		return workDir
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}
	return filepath.Clean(path)
}

// ExecuteBash runs a shell command inside the workspace.
func (s *LocalSandbox) ExecuteBash(ctx context.Context, command string, timeout time.Duration) (*tools.Result, error) {
	id, workDir, err := s.session()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("empty command")
	}

	if timeout == 0 {
		timeout = s.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// The command is wrapped:
	//   sh -c 'ulimit -v KB; ulimit -t SEC; exec "$@"' _ /bin/sh -c <command>
	//
	// Using exec "$@" with positional parameters prevents the user's
	// command from being interpolated into the ulimit shell string.
	memKB := s.cfg.Limits.MaxMemoryMB * 1024
	shellScript := fmt.Sprintf(
		"ulimit -v %d 2>/dev/null; ulimit -t %d 2>/dev/null; exec \"$@\"",
		memKB, s.cfg.Limits.MaxCPUSeconds,
	)
	cmd := exec.CommandContext(ctx, "/bin/sh",
		"-c", shellScript, "_", // "_" is the $0 placeholder
		"/bin/sh", "-c", command,
	)
	cmd.Dir = workDir

	// Process group isolation — kill the whole group on cancel so child
	// processes spawned by the command are also terminated.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	// Sanitized environment — NO inheritance from the host process.
	cmd.Env = buildEnv(workDir, s.cfg.Env)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	s.logger.Info("sandbox executing",
		slog.String("sandbox_id", id),
		slog.String("dir", workDir),
		slog.Duration("timeout", timeout),
	)

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if ctx.Err() != nil {
			s.logger.Warn("sandbox execution timed out",
				slog.String("sandbox_id", id),
				slog.Duration("timeout", timeout),
			)
			return nil, fmt.Errorf("execution timed out after %s", timeout)
		}

		// Non-zero exit code is not an error — it's a result.
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("execution failed: %w", runErr)
		}
	}

	s.logger.Info("sandbox execution completed",
		slog.String("sandbox_id", id),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", duration),
	)

	result := &tools.Result{
		Success:   exitCode == 0,
		Output:    stdoutBuf.String(),
		ExitCode:  exitCode,
		SandboxID: id,
		Timestamp: time.Now(),
	}
	stderr := strings.TrimSpace(stderrBuf.String())
	if !result.Success {
		result.Error = stderr
		if result.Error == "" {
			result.Error = fmt.Sprintf("command exited with status %d", exitCode)
		}
	} else if stderr != "" {
		if result.Output != "" {
			result.Output += "\n"
		}
		result.Output += stderr
	}
	return result, nil
}

// ReadFile returns the file content as the result output.
func (s *LocalSandbox) ReadFile(ctx context.Context, path string) (*tools.Result, error) {
	id, workDir, err := s.session()
	if err != nil {
		return nil, err
	}
	full := resolve(workDir, path)

	data, err := os.ReadFile(full)
	if err != nil {
		return tools.Failure(fmt.Sprintf("reading %s: %v", full, err)), nil
	}
	return &tools.Result{
		Success:   true,
		Output:    tools.TruncateOutput(string(data), maxOutputBytes),
		SandboxID: id,
		Timestamp: time.Now(),
	}, nil
}

// WriteFile writes content, creating parent directories as needed.
func (s *LocalSandbox) WriteFile(ctx context.Context, path, content string) (*tools.Result, error) {
	id, workDir, err := s.session()
	if err != nil {
		return nil, err
	}
	full := resolve(workDir, path)

	_, statErr := os.Stat(full)
	existed := statErr == nil

	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return tools.Failure(fmt.Sprintf("creating directory for %s: %v", full, err)), nil
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return tools.Failure(fmt.Sprintf("writing %s: %v", full, err)), nil
	}

	result := &tools.Result{
		Success:   true,
		Output:    fmt.Sprintf("wrote %d bytes to %s", len(content), full),
		SandboxID: id,
		Timestamp: time.Now(),
	}
	if existed {
		result.FilesModified = []string{full}
	} else {
		result.FilesCreated = []string{full}
	}
	return result, nil
}

// ListFiles lists directory entries, or glob matches when a pattern is given.
func (s *LocalSandbox) ListFiles(ctx context.Context, path, pattern string) (*tools.Result, error) {
	id, workDir, err := s.session()
	if err != nil {
		return nil, err
	}
	dir := resolve(workDir, path)

	var names []string
	if pattern == "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return tools.Failure(fmt.Sprintf("listing %s: %v", dir, err)), nil
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
	} else {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return tools.Failure(fmt.Sprintf("bad glob pattern %q: %v", pattern, err)), nil
		}
		names = matches
	}
	sort.Strings(names)

	return &tools.Result{
		Success:   true,
		Output:    strings.Join(names, "\n"),
		SandboxID: id,
		Timestamp: time.Now(),
	}, nil
}

// SearchFiles greps for a regular expression under path. Matches are
// reported as "path:line:text" lines, capped at maxSearchMatches.
func (s *LocalSandbox) SearchFiles(ctx context.Context, pattern, path, filePattern string) (*tools.Result, error) {
	id, workDir, err := s.session()
	if err != nil {
		return nil, err
	}
	root := resolve(workDir, path)

	re, err := regexp.Compile(pattern)
	if err != nil {
		return tools.Failure(fmt.Sprintf("bad search pattern %q: %v", pattern, err)), nil
	}

	var matches []string
	walkErr := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil // Skip unreadable entries.
		}
		if len(matches) >= maxSearchMatches {
			return filepath.SkipAll
		}
		if filePattern != "" {
			if ok, _ := filepath.Match(filePattern, d.Name()); !ok {
				return nil
			}
		}
		if info, err := d.Info(); err != nil || info.Size() > maxSearchFileBytes {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		line := 0
		for scanner.Scan() {
			line++
			if re.Match(scanner.Bytes()) {
				matches = append(matches, fmt.Sprintf("%s:%d:%s", p, line, scanner.Text()))
				if len(matches) >= maxSearchMatches {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil {
		return tools.Failure(fmt.Sprintf("searching %s: %v", root, walkErr)), nil
	}

	return &tools.Result{
		Success:   true,
		Output:    strings.Join(matches, "\n"),
		SandboxID: id,
		Timestamp: time.Now(),
	}, nil
}

// buildEnv constructs a minimal, safe environment. The parent process's
// environment is NEVER inherited — this prevents API keys and other
// secrets from leaking into sandboxed commands.
func buildEnv(workDir string, extra map[string]string) []string {
	env := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + workDir,
		"TMPDIR=" + workDir,
		"LANG=en_US.UTF-8",
		"TERM=dumb",
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
