package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/toolgate/internal/config"
	"github.com/jkaninda/toolgate/internal/executor"
	"github.com/jkaninda/toolgate/internal/gateway/httpapi"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API gateway",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `toolgate --config path` and `toolgate serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&preset, "preset", "", "security preset (minimal, standard, development)")
		cmd.Flags().StringVar(&serveAddr, "addr", "", "override HTTP listen address (e.g. :8090)")
	}
}

// runServe starts the mediation pipeline and serves it over HTTP.
func runServe(_ *cobra.Command, _ []string) error {
	logger := newLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		if cfg.Gateway == nil {
			cfg.Gateway = &config.GatewayConfig{Enabled: true}
		}
		cfg.Gateway.Addr = serveAddr
	}
	if cfg.Gateway == nil || !cfg.Gateway.Enabled {
		return fmt.Errorf("gateway is not enabled in config (set gateway.enabled or TOOLGATE_API_KEY)")
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exec := executor.New(cfg, logger)
	if err := exec.Start(ctx); err != nil {
		return err
	}
	defer exec.Stop(context.Background())

	gwCfg := httpapi.Config{
		ListenAddr: cfg.GatewayAddr(),
		EnableDocs: cfg.Gateway.EnableDocs,
		APIKeys:    apiKeyMap(cfg.Gateway.APIKeys),
	}
	if m := exec.Metrics(); m != nil {
		gwCfg.MetricsRegistry = m.Registry
		gwCfg.Metrics = m
	}
	gwCfg.Tracer = exec.Tracer()

	gw := httpapi.NewGateway(gwCfg, exec, logger)

	errs := make(chan error, 1)
	go func() { errs <- gw.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping gateway", slog.String("error", err.Error()))
	}
	return nil
}

// apiKeyMap maps configured API keys to stable caller identities.
func apiKeyMap(keys []string) map[string]string {
	m := make(map[string]string, len(keys))
	for i, k := range keys {
		m[k] = fmt.Sprintf("client-%d", i+1)
	}
	return m
}
