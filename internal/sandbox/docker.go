package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jkaninda/toolgate/internal/tools"
)

const (
	defaultDockerPIDsLimit = 64
	defaultDockerCPUCores  = 1.0
	defaultDockerImage     = "toolgate-runtime:latest"
	dockerWorkDir          = "/workspace"
)

// DockerConfig configures the Docker-based sandbox.
type DockerConfig struct {
	Image          string        // Container image (e.g. "toolgate-runtime:latest").
	DefaultTimeout time.Duration // Wall-clock timeout per execution.
	MemoryMB       int           // --memory hard limit.
	CPUCores       float64       // --cpus rate limit (e.g. 0.5 = half a core).
	PIDsLimit      int           // --pids-limit (prevents fork bombs).
	NetworkAllowed bool          // false = --network=none (no network stack at all).
}

// DockerSandbox executes tool calls inside one long-lived hardened
// container per session: Connect starts it, Disconnect removes it, and
// file state persists across calls in a tmpfs workspace.
//
// Security guarantees:
//   - ALL Linux capabilities dropped (--cap-drop=ALL)
//   - Read-only root filesystem (--read-only) with tmpfs for writable dirs
//   - Privilege escalation blocked (--security-opt=no-new-privileges)
//   - Non-root user (--user=65534:65534)
//   - No host PID namespace, no docker socket mount, no privileged mode
//   - Network disabled by default (--network=none)
//   - Memory hard limit with no swap (OOM kill on exceed)
//   - PIDs limit prevents fork bombs
//   - stdout/stderr capped to prevent OOM on the host
type DockerSandbox struct {
	cfg    DockerConfig
	logger *slog.Logger

	mu        sync.Mutex
	id        string
	connected bool
}

// NewDockerSandbox creates a Docker-based sandbox. Call Connect before use.
func NewDockerSandbox(cfg DockerConfig, logger *slog.Logger) *DockerSandbox {
	if cfg.Image == "" {
		cfg.Image = defaultDockerImage
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = defaultTimeout
	}
	if cfg.MemoryMB == 0 {
		cfg.MemoryMB = defaultMemoryMB
	}
	if cfg.CPUCores <= 0 {
		cfg.CPUCores = defaultDockerCPUCores
	}
	if cfg.PIDsLimit <= 0 {
		cfg.PIDsLimit = defaultDockerPIDsLimit
	}
	return &DockerSandbox{cfg: cfg, logger: logger}
}

// ID implements Sandbox. The id doubles as the container name.
func (s *DockerSandbox) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Connected implements Sandbox.
func (s *DockerSandbox) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Connect starts the session container with full hardening.
func (s *DockerSandbox) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	name, err := generateSandboxID("toolgate-sbx")
	if err != nil {
		return fmt.Errorf("generating sandbox id: %w", err)
	}

	args := s.buildRunArgs(name)
	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("starting sandbox container: %w: %s", err, strings.TrimSpace(string(out)))
	}

	s.id = name
	s.connected = true
	s.logger.Info("docker sandbox connected",
		slog.String("sandbox_id", name),
		slog.String("image", s.cfg.Image),
	)
	return nil
}

// Disconnect force-removes the session container. Idempotent; removal
// errors are logged, not returned — a dangling container only wastes
// resources until the next reap.
func (s *DockerSandbox) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	s.connected = false

	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(rmCtx, "docker", "rm", "-f", s.id).CombinedOutput()
	if err != nil && !bytes.Contains(out, []byte("No such container")) {
		s.logger.Warn("docker rm -f failed",
			slog.String("sandbox_id", s.id),
			slog.String("error", err.Error()),
			slog.String("output", string(out)),
		)
	}
	s.logger.Info("docker sandbox disconnected", slog.String("sandbox_id", s.id))
	return nil
}

// buildRunArgs constructs the docker run argument list for the session
// container. The container idles on sleep; every call goes through exec.
func (s *DockerSandbox) buildRunArgs(name string) []string {
	memoryFlag := strconv.Itoa(s.cfg.MemoryMB) + "m"
	cpuFlag := strconv.FormatFloat(s.cfg.CPUCores, 'f', 2, 64)
	pidsFlag := strconv.Itoa(s.cfg.PIDsLimit)

	args := []string{
		"run", "-d",
		"--name", name,

		// --- Security hardening ---
		"--cap-drop=ALL",                   // Drop all 38+ Linux capabilities.
		"--security-opt=no-new-privileges", // Block setuid/setgid escalation.
		"--read-only",                      // Read-only root filesystem.
		"--user=65534:65534",               // Non-root (nobody).

		// --- Resource limits ---
		"--memory=" + memoryFlag,      // Hard memory limit.
		"--memory-swap=" + memoryFlag, // Same as memory = disable swap (OOM kill).
		"--cpus=" + cpuFlag,           // CPU rate limit.
		"--pids-limit=" + pidsFlag,    // Fork bomb protection.

		// --- Writable tmpfs for the session workspace ---
		"--tmpfs", "/tmp:rw,noexec,nosuid,size=64m",
		"--tmpfs", dockerWorkDir + ":rw,nosuid,size=256m",

		// --- Sanitized environment (no host inheritance) ---
		"--env", "HOME=" + dockerWorkDir,
		"--env", "PATH=/usr/local/bin:/usr/bin:/bin",
		"--env", "LANG=en_US.UTF-8",
		"--env", "TERM=dumb",

		"--workdir", dockerWorkDir,
	}

	// Network policy: disabled by default (no network stack at all).
	if s.cfg.NetworkAllowed {
		args = append(args, "--network=bridge")
	} else {
		args = append(args, "--network=none")
	}

	args = append(args, s.cfg.Image, "sleep", "infinity")
	return args
}

// containerExec runs argv inside the session container via docker exec.
func (s *DockerSandbox) containerExec(ctx context.Context, timeout time.Duration, stdin string, argv ...string) (stdout, stderr string, exitCode int, err error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return "", "", 0, ErrNotConnected
	}
	name := s.id
	s.mu.Unlock()

	if timeout == 0 {
		timeout = s.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append([]string{"exec", "-i", name}, argv...)
	cmd := exec.CommandContext(ctx, "docker", args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdoutBuf, remaining: maxOutputBytes}
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: maxOutputBytes}

	runErr := cmd.Run()
	if runErr != nil {
		if ctx.Err() != nil {
			return "", "", 0, fmt.Errorf("execution timed out after %s", timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("docker exec failed: %w", runErr)
		}
	}
	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// ExecuteBash runs a shell command inside the session container.
func (s *DockerSandbox) ExecuteBash(ctx context.Context, command string, timeout time.Duration) (*tools.Result, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("empty command")
	}

	start := time.Now()
	stdout, stderr, exitCode, err := s.containerExec(ctx, timeout, "", "/bin/sh", "-c", command)
	if err != nil {
		return nil, err
	}

	s.logger.Info("docker sandbox execution completed",
		slog.String("sandbox_id", s.ID()),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", time.Since(start)),
	)

	result := &tools.Result{
		Success:   exitCode == 0,
		Output:    stdout,
		ExitCode:  exitCode,
		SandboxID: s.ID(),
		Timestamp: time.Now(),
	}
	trimmed := strings.TrimSpace(stderr)
	if !result.Success {
		result.Error = trimmed
		if result.Error == "" {
			result.Error = fmt.Sprintf("command exited with status %d", exitCode)
		}
	} else if trimmed != "" {
		if result.Output != "" {
			result.Output += "\n"
		}
		result.Output += trimmed
	}
	return result, nil
}

// ReadFile returns the file content as the result output.
func (s *DockerSandbox) ReadFile(ctx context.Context, path string) (*tools.Result, error) {
	stdout, stderr, exitCode, err := s.containerExec(ctx, 0, "", "cat", "--", containerPath(path))
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return tools.Failure(strings.TrimSpace(stderr)), nil
	}
	return &tools.Result{
		Success:   true,
		Output:    stdout,
		SandboxID: s.ID(),
		Timestamp: time.Now(),
	}, nil
}

// WriteFile streams content into the file over docker exec stdin.
func (s *DockerSandbox) WriteFile(ctx context.Context, path, content string) (*tools.Result, error) {
	full := containerPath(path)

	// Existence check first, so the result can report created vs modified.
	_, _, testCode, err := s.containerExec(ctx, 0, "", "test", "-e", full)
	if err != nil {
		return nil, err
	}
	existed := testCode == 0

	script := `mkdir -p "$(dirname "$1")" && cat > "$1"`
	_, stderr, exitCode, err := s.containerExec(ctx, 0, content, "/bin/sh", "-c", script, "_", full)
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return tools.Failure(strings.TrimSpace(stderr)), nil
	}

	result := &tools.Result{
		Success:   true,
		Output:    fmt.Sprintf("wrote %d bytes to %s", len(content), full),
		SandboxID: s.ID(),
		Timestamp: time.Now(),
	}
	if existed {
		result.FilesModified = []string{full}
	} else {
		result.FilesCreated = []string{full}
	}
	return result, nil
}

// ListFiles lists directory entries, or shell glob matches when a
// pattern is given.
func (s *DockerSandbox) ListFiles(ctx context.Context, path, pattern string) (*tools.Result, error) {
	dir := containerPath(path)

	var stdout, stderr string
	var exitCode int
	var err error
	if pattern == "" {
		stdout, stderr, exitCode, err = s.containerExec(ctx, 0, "", "ls", "-1A", "--", dir)
	} else {
		// The pattern is expanded by the container shell relative to dir.
		script := fmt.Sprintf(`cd "$1" && ls -1d %s`, pattern)
		stdout, stderr, exitCode, err = s.containerExec(ctx, 0, "", "/bin/sh", "-c", script, "_", dir)
	}
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return tools.Failure(strings.TrimSpace(stderr)), nil
	}
	return &tools.Result{
		Success:   true,
		Output:    strings.TrimRight(stdout, "\n"),
		SandboxID: s.ID(),
		Timestamp: time.Now(),
	}, nil
}

// SearchFiles greps recursively under path inside the container.
func (s *DockerSandbox) SearchFiles(ctx context.Context, pattern, path, filePattern string) (*tools.Result, error) {
	argv := []string{"grep", "-rnE"}
	if filePattern != "" {
		argv = append(argv, "--include="+filePattern)
	}
	argv = append(argv, "--", pattern, containerPath(path))

	stdout, stderr, exitCode, err := s.containerExec(ctx, 0, "", argv...)
	if err != nil {
		return nil, err
	}
	// grep exits 1 on "no matches" — that's an empty result, not a failure.
	if exitCode > 1 {
		return tools.Failure(strings.TrimSpace(stderr)), nil
	}
	return &tools.Result{
		Success:   true,
		Output:    strings.TrimRight(stdout, "\n"),
		SandboxID: s.ID(),
		Timestamp: time.Now(),
	}, nil
}

// containerPath anchors relative paths at the container workspace.
func containerPath(path string) string {
	if path == "" {
		return dockerWorkDir
	}
	if !strings.HasPrefix(path, "/") {
		return dockerWorkDir + "/" + path
	}
	return path
}
