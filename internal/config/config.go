// Package config handles loading and validating toolgate configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Sandbox providers.
const (
	ProviderLocal  = "local"
	ProviderDocker = "docker"
)

// Config is the root configuration for toolgate.
type Config struct {
	// DataDir holds the SQLite database and the JSONL audit log.
	// Default: ~/.toolgate/data. Override: TOOLGATE_DATA_DIR env var.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	Sandbox       SandboxConfig        `json:"sandbox" yaml:"sandbox"`
	Security      SecurityConfig       `json:"security" yaml:"security"`
	Audit         AuditConfig          `json:"audit" yaml:"audit"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = SQLite default
	Gateway       *GatewayConfig       `json:"gateway,omitempty" yaml:"gateway,omitempty"`             // nil = HTTP gateway disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// SandboxConfig selects and tunes the execution backend.
type SandboxConfig struct {
	Provider            string  `json:"provider" yaml:"provider"`                            // "local" (default) or "docker".
	WorkingDir          string  `json:"working_dir" yaml:"working_dir"`                      // Anchor for relative paths. Empty = private temp workspace.
	Image               string  `json:"image,omitempty" yaml:"image,omitempty"`              // Docker image for the docker provider.
	MaxMemoryMB         int     `json:"max_memory_mb" yaml:"max_memory_mb"`                  // Default: 512.
	MaxCPUSeconds       int     `json:"max_cpu_seconds" yaml:"max_cpu_seconds"`              // Default: 60 (local provider).
	CPUCores            float64 `json:"cpu_cores" yaml:"cpu_cores"`                          // Default: 1.0 (docker provider).
	PIDsLimit           int     `json:"pids_limit" yaml:"pids_limit"`                        // Default: 64 (docker provider).
	MaxExecutionSeconds int     `json:"max_execution_seconds" yaml:"max_execution_seconds"` // Per-call wall clock. Default: 30.
	NetworkAllowed      bool    `json:"network_allowed" yaml:"network_allowed"`              // Default: false.

	Pool *PoolConfig `json:"pool,omitempty" yaml:"pool,omitempty"` // nil = one persistent sandbox.

	// SessionTimeoutSeconds disposes of idle pooled sandboxes. Zero
	// disables the reaper. Ignored without a pool.
	SessionTimeoutSeconds int `json:"session_timeout_seconds" yaml:"session_timeout_seconds"`
}

// PoolConfig bounds concurrent sandboxes.
type PoolConfig struct {
	MaxSize     int  `json:"max_size" yaml:"max_size"`         // Default: 5.
	AutoCleanup bool `json:"auto_cleanup" yaml:"auto_cleanup"` // true = dispose on release instead of reusing.
}

// SecurityConfig is the mediation policy.
type SecurityConfig struct {
	AllowedTools     []string `json:"allowed_tools,omitempty" yaml:"allowed_tools,omitempty"` // Empty = all tools allowed.
	BlockedTools     []string `json:"blocked_tools,omitempty" yaml:"blocked_tools,omitempty"`
	CommandBlacklist []string `json:"command_blacklist,omitempty" yaml:"command_blacklist,omitempty"` // Extra regexp rules.
	CommandWhitelist []string `json:"command_whitelist,omitempty" yaml:"command_whitelist,omitempty"` // Empty = no prefix restriction.

	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // nil = unlimited.
}

// RateLimitConfig bounds calls per caller per window.
type RateLimitConfig struct {
	MaxRequests   int `json:"max_requests" yaml:"max_requests"`
	WindowSeconds int `json:"window_seconds" yaml:"window_seconds"` // Default: 60.
}

// Window returns the configured window as a duration.
func (r *RateLimitConfig) Window() time.Duration {
	if r == nil || r.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(r.WindowSeconds) * time.Second
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`   // nil = enabled.
	LogPath string `json:"log_path,omitempty" yaml:"log_path,omitempty"` // JSONL sink. Empty = derived from data dir.
}

// IsEnabled reports whether auditing is on. Defaults to true.
func (a AuditConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// StorageConfig configures the durable audit store.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"` // "sqlite" (default) or "postgres".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // Default: derived from data dir.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN string `json:"dsn" yaml:"dsn"` // Override: TOOLGATE_DB_DSN env var.
}

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Addr       string   `json:"addr" yaml:"addr"`                             // Default: ":8090".
	APIKeys    []string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // Bearer tokens. Override: TOOLGATE_API_KEY env var adds one.
	EnableDocs bool     `json:"enable_docs,omitempty" yaml:"enable_docs,omitempty"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OTLP span export. Spans are sampled with a
// parent-based ratio sampler; SampleRate outside (0, 1] falls back to
// sampling everything.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"` // Collector host:port, no scheme.
	Protocol    string  `json:"protocol" yaml:"protocol"` // "grpc" (default) or "http".
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
	Insecure    bool    `json:"insecure" yaml:"insecure"` // Plaintext transport to the collector.
}

// DefaultConfigPath returns the default config file path (~/.toolgate/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/toolgate.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".toolgate", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML,
// everything else for JSON. Environment variables take precedence over
// file values.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnvOverrides lets environment variables take precedence over
// file or preset values. Load calls this; preset-based startup must
// call it explicitly.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TOOLGATE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TOOLGATE_SANDBOX_PROVIDER"); v != "" {
		c.Sandbox.Provider = v
	}
	if v := os.Getenv("TOOLGATE_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("TOOLGATE_API_KEY"); v != "" {
		if c.Gateway == nil {
			c.Gateway = &GatewayConfig{Enabled: true}
		}
		c.Gateway.APIKeys = append(c.Gateway.APIKeys, v)
	}
}

// Validate checks the configuration. Called once at startup; a failure
// is fatal.
func (c *Config) Validate() error {
	switch c.Sandbox.Provider {
	case "", ProviderLocal, ProviderDocker:
	default:
		return fmt.Errorf("sandbox.provider %q is not supported (use local or docker)", c.Sandbox.Provider)
	}
	if c.Sandbox.MaxMemoryMB < 0 {
		return fmt.Errorf("sandbox.max_memory_mb must not be negative")
	}
	if c.Sandbox.MaxExecutionSeconds < 0 {
		return fmt.Errorf("sandbox.max_execution_seconds must not be negative")
	}
	if c.Sandbox.Pool != nil && c.Sandbox.Pool.MaxSize < 0 {
		return fmt.Errorf("sandbox.pool.max_size must not be negative")
	}
	if c.Sandbox.SessionTimeoutSeconds < 0 {
		return fmt.Errorf("sandbox.session_timeout_seconds must not be negative")
	}
	if rl := c.Security.RateLimit; rl != nil {
		if rl.MaxRequests < 0 || rl.WindowSeconds < 0 {
			return fmt.Errorf("security.rate_limit values must not be negative")
		}
	}
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite or postgres)", c.Storage.Driver)
		}
		if c.Storage.Driver == "postgres" && (c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "") {
			return fmt.Errorf("storage.postgres.dsn is required (set TOOLGATE_DB_DSN env var)")
		}
	}
	if c.Gateway != nil && c.Gateway.Enabled && len(c.Gateway.APIKeys) == 0 {
		return fmt.Errorf("gateway.api_keys is required when the gateway is enabled (set TOOLGATE_API_KEY env var)")
	}
	if t := c.tracing(); t != nil && t.Enabled {
		switch t.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol must be grpc or http")
		}
		if t.Endpoint == "" {
			return fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled")
		}
	}
	return nil
}

func (c *Config) tracing() *TracingConfig {
	if c.Observability == nil {
		return nil
	}
	return c.Observability.Tracing
}

// Provider returns the sandbox provider, defaulting to local.
func (c *Config) Provider() string {
	if c.Sandbox.Provider == "" {
		return ProviderLocal
	}
	return c.Sandbox.Provider
}

// ExecutionTimeout returns the per-call wall clock limit.
func (c *Config) ExecutionTimeout() time.Duration {
	if c.Sandbox.MaxExecutionSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Sandbox.MaxExecutionSeconds) * time.Second
}

// SessionTimeout returns the idle-sandbox timeout; zero disables reaping.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Sandbox.SessionTimeoutSeconds) * time.Second
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".toolgate", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "toolgate.db")
}

// AuditLogPath returns the JSONL audit log path under the data directory.
func (c *Config) AuditLogPath() string {
	if c.Audit.LogPath != "" {
		return c.Audit.LogPath
	}
	return filepath.Join(c.ResolvedDataDir(), "audit.jsonl")
}

// GatewayAddr returns the gateway listen address, defaulting to ":8090".
func (c *Config) GatewayAddr() string {
	if c.Gateway == nil || c.Gateway.Addr == "" {
		return ":8090"
	}
	return c.Gateway.Addr
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
