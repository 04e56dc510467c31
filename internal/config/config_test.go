package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
sandbox:
  provider: docker
  image: alpine:3
  max_memory_mb: 256
  max_execution_seconds: 15
  pool:
    max_size: 3
security:
  blocked_tools: [WebFetch]
  rate_limit:
    max_requests: 20
    window_seconds: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider() != ProviderDocker {
		t.Errorf("provider = %q, want docker", cfg.Provider())
	}
	if cfg.Sandbox.Pool == nil || cfg.Sandbox.Pool.MaxSize != 3 {
		t.Errorf("pool = %+v, want max_size 3", cfg.Sandbox.Pool)
	}
	if got := cfg.ExecutionTimeout(); got != 15*time.Second {
		t.Errorf("execution timeout = %v, want 15s", got)
	}
	if got := cfg.Security.RateLimit.Window(); got != 30*time.Second {
		t.Errorf("rate limit window = %v, want 30s", got)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "sandbox": {"provider": "local", "working_dir": "/tmp/ws"},
  "security": {"command_whitelist": ["ls", "cat"]}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.WorkingDir != "/tmp/ws" {
		t.Errorf("working_dir = %q, want /tmp/ws", cfg.Sandbox.WorkingDir)
	}
	if len(cfg.Security.CommandWhitelist) != 2 {
		t.Errorf("whitelist = %v, want 2 entries", cfg.Security.CommandWhitelist)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"bad provider",
			"sandbox:\n  provider: firecracker\n",
			"sandbox.provider",
		},
		{
			"negative memory",
			"sandbox:\n  max_memory_mb: -1\n",
			"max_memory_mb",
		},
		{
			"bad storage driver",
			"storage:\n  driver: mysql\n",
			"storage.driver",
		},
		{
			"postgres without dsn",
			"storage:\n  driver: postgres\n",
			"dsn",
		},
		{
			"gateway without keys",
			"gateway:\n  enabled: true\n",
			"api_keys",
		},
		{
			"tracing without endpoint",
			"observability:\n  tracing:\n    enabled: true\n",
			"endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TOOLGATE_DATA_DIR", "/var/lib/toolgate")
	t.Setenv("TOOLGATE_SANDBOX_PROVIDER", "docker")
	t.Setenv("TOOLGATE_API_KEY", "secret-key")

	path := writeConfig(t, "config.yaml", "sandbox:\n  provider: local\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/toolgate" {
		t.Errorf("data_dir = %q, want env override", cfg.DataDir)
	}
	if cfg.Provider() != ProviderDocker {
		t.Errorf("provider = %q, want docker from env", cfg.Provider())
	}
	if cfg.Gateway == nil || len(cfg.Gateway.APIKeys) != 1 || cfg.Gateway.APIKeys[0] != "secret-key" {
		t.Errorf("gateway = %+v, want api key from env", cfg.Gateway)
	}
}

func TestPresetsValidate(t *testing.T) {
	for _, name := range []string{PresetMinimal, PresetStandard, PresetDevelopment} {
		cfg := FromPreset(name)
		if cfg == nil {
			t.Fatalf("FromPreset(%q) = nil", name)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("preset %q does not validate: %v", name, err)
		}
	}
	if FromPreset("paranoid") != nil {
		t.Error("unknown preset should return nil")
	}
}

func TestPresetPostures(t *testing.T) {
	minimal := Minimal()
	if len(minimal.Security.CommandWhitelist) == 0 {
		t.Error("minimal preset should restrict commands to a whitelist")
	}
	if minimal.Sandbox.NetworkAllowed {
		t.Error("minimal preset must not allow network access")
	}

	dev := Development()
	if !dev.Sandbox.NetworkAllowed {
		t.Error("development preset should allow network access")
	}
	if dev.Security.RateLimit != nil {
		t.Error("development preset should not rate limit")
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/toolgate"}

	if got := cfg.DatabasePath(); got != "/var/lib/toolgate/toolgate.db" {
		t.Errorf("DatabasePath = %q", got)
	}
	if got := cfg.AuditLogPath(); got != "/var/lib/toolgate/audit.jsonl" {
		t.Errorf("AuditLogPath = %q", got)
	}
	if got := cfg.GatewayAddr(); got != ":8090" {
		t.Errorf("GatewayAddr = %q, want default", got)
	}

	cfg.Audit.LogPath = "/custom/audit.jsonl"
	if got := cfg.AuditLogPath(); got != "/custom/audit.jsonl" {
		t.Errorf("AuditLogPath = %q, want the explicit path", got)
	}
}

func TestAuditEnabledDefault(t *testing.T) {
	var a AuditConfig
	if !a.IsEnabled() {
		t.Error("audit should default to enabled")
	}
	off := false
	a.Enabled = &off
	if a.IsEnabled() {
		t.Error("explicit false should disable audit")
	}
}
