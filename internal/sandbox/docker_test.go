package sandbox

import (
	"context"
	"os/exec"
	"slices"
	"strings"
	"testing"
)

func TestDockerBuildRunArgsHardening(t *testing.T) {
	s := NewDockerSandbox(DockerConfig{Image: "alpine:3"}, discardLogger())
	args := s.buildRunArgs("toolgate-sbx-test")

	for _, flag := range []string{
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--read-only",
		"--user=65534:65534",
		"--network=none",
		"--memory=512m",
		"--memory-swap=512m",
		"--pids-limit=64",
	} {
		if !slices.Contains(args, flag) {
			t.Errorf("docker args missing %q:\n%v", flag, args)
		}
	}

	// The image comes last before the idle command.
	joined := strings.Join(args, " ")
	if !strings.HasSuffix(joined, "alpine:3 sleep infinity") {
		t.Errorf("args = %q, want trailing image + sleep infinity", joined)
	}
}

func TestDockerBuildRunArgsNetworkAllowed(t *testing.T) {
	s := NewDockerSandbox(DockerConfig{NetworkAllowed: true}, discardLogger())
	args := s.buildRunArgs("n")

	if !slices.Contains(args, "--network=bridge") {
		t.Error("network-allowed config should use the bridge network")
	}
	if slices.Contains(args, "--network=none") {
		t.Error("network-allowed config must not disable the network")
	}
}

func TestDockerOpsRequireConnection(t *testing.T) {
	s := NewDockerSandbox(DockerConfig{}, discardLogger())

	if _, err := s.ExecuteBash(context.Background(), "true", 0); err == nil {
		t.Fatal("operations before Connect must fail")
	}
}

// TestDockerSandboxIntegration exercises the full session lifecycle
// against a real daemon. Skipped when docker is unavailable.
func TestDockerSandboxIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available")
	}
	if err := exec.Command("docker", "info").Run(); err != nil {
		t.Skip("docker daemon not running")
	}

	s := NewDockerSandbox(DockerConfig{Image: "alpine:3"}, discardLogger())
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Disconnect(ctx)

	result, err := s.ExecuteBash(ctx, "echo from-container", 0)
	if err != nil {
		t.Fatalf("ExecuteBash: %v", err)
	}
	if got := strings.TrimSpace(result.Output); got != "from-container" {
		t.Errorf("output = %q, want from-container", got)
	}

	// File state persists across calls within the session.
	if _, err := s.WriteFile(ctx, "state.txt", "persisted"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	read, err := s.ReadFile(ctx, "state.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if read.Output != "persisted" {
		t.Errorf("read = %q, want persisted", read.Output)
	}
}
