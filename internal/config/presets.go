package config

// Preset names accepted by FromPreset.
const (
	PresetMinimal     = "minimal"
	PresetStandard    = "standard"
	PresetDevelopment = "development"
)

// Minimal returns a locked-down configuration: a short command
// whitelist, tight resource limits, and no sandbox reuse.
func Minimal() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Provider:            ProviderLocal,
			MaxMemoryMB:         256,
			MaxExecutionSeconds: 10,
			Pool:                &PoolConfig{MaxSize: 1, AutoCleanup: true},
		},
		Security: SecurityConfig{
			BlockedTools: []string{"WebFetch", "WebSearch", "Task"},
			CommandWhitelist: []string{
				"ls", "cat", "echo", "pwd", "head", "tail", "wc", "grep", "find",
			},
			RateLimit: &RateLimitConfig{MaxRequests: 10, WindowSeconds: 60},
		},
	}
}

// Standard returns the recommended defaults for mediating a coding
// agent: full tool set, pattern catalog enforcement, a bounded reusing
// pool.
func Standard() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Provider:              ProviderLocal,
			MaxMemoryMB:           512,
			MaxExecutionSeconds:   30,
			Pool:                  &PoolConfig{MaxSize: 5},
			SessionTimeoutSeconds: 600,
		},
		Security: SecurityConfig{
			RateLimit: &RateLimitConfig{MaxRequests: 100, WindowSeconds: 60},
		},
	}
}

// Development returns a permissive configuration for trusted local use:
// network access, generous limits, no rate limiting.
func Development() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Provider:            ProviderLocal,
			MaxMemoryMB:         1024,
			MaxExecutionSeconds: 120,
			NetworkAllowed:      true,
			Pool:                &PoolConfig{MaxSize: 10},
		},
		Security: SecurityConfig{},
	}
}

// FromPreset returns the named preset, or nil when the name is unknown.
func FromPreset(name string) *Config {
	switch name {
	case PresetMinimal:
		return Minimal()
	case PresetStandard:
		return Standard()
	case PresetDevelopment:
		return Development()
	}
	return nil
}
