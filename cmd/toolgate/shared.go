package main

import (
	"fmt"
	"log/slog"
	"os"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/toolgate/internal/config"
)

var (
	configPath string
	preset     string
)

// newLogger builds the process logger. Logs go to stderr so stdout
// stays clean for command output and the MCP stdio transport.
func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// loadConfig resolves the effective configuration: an explicit preset
// wins, then a config file, then the standard preset.
func loadConfig() (*config.Config, error) {
	if preset != "" {
		cfg := config.FromPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset %q (minimal, standard, development)", preset)
		}
		cfg.ApplyEnvOverrides()
		return cfg, nil
	}

	path := goutils.Env("TOOLGATE_CONFIG", configPath)
	if _, err := os.Stat(path); err == nil {
		return config.Load(path)
	}

	cfg := config.Standard()
	cfg.ApplyEnvOverrides()
	return cfg, nil
}
