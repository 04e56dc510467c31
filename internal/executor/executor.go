// Package executor assembles the mediation pipeline from configuration
// and owns its lifecycle: security manager, audit trail, sandbox pool,
// proxy, metrics, and the idle reaper.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/toolgate/internal/audit"
	"github.com/jkaninda/toolgate/internal/config"
	"github.com/jkaninda/toolgate/internal/observability"
	"github.com/jkaninda/toolgate/internal/proxy"
	"github.com/jkaninda/toolgate/internal/ratelimit"
	"github.com/jkaninda/toolgate/internal/reaper"
	"github.com/jkaninda/toolgate/internal/sandbox"
	"github.com/jkaninda/toolgate/internal/security"
	"github.com/jkaninda/toolgate/internal/tools"
)

// ErrNotStarted is returned when operations run before Start succeeds.
var ErrNotStarted = errors.New("executor: not started")

// Executor is the top-level facade over the mediation pipeline.
// Construct with New, then Start before use and Stop at shutdown.
type Executor struct {
	cfg    *config.Config
	logger *slog.Logger

	security *security.Manager
	auditLog *audit.Logger
	store    *audit.GormStore
	proxy    *proxy.ToolProxy
	obs      *observability.Observability

	binder     sandbox.Binder
	pool       *sandbox.Pool   // Non-nil only in pool mode.
	single     *sandbox.Single // Non-nil only in single-session mode.
	stopReaper func()

	started bool
}

// New creates an unstarted Executor.
func New(cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{cfg: cfg, logger: logger}
}

// Start validates the configuration and brings the pipeline up.
// A validation failure is fatal; nothing is left running.
func (e *Executor) Start(ctx context.Context) error {
	if e.started {
		return nil
	}
	if err := e.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	obs, err := observability.New(e.cfg.Observability)
	if err != nil {
		return err
	}
	e.obs = obs

	var secOpts []security.Option
	if m := e.obs.MetricsOrNil(); m != nil {
		secOpts = append(secOpts, security.WithRecorder(m))
	}
	sec, err := security.NewManager(security.Config{
		AllowedTools:     e.cfg.Security.AllowedTools,
		BlockedTools:     e.cfg.Security.BlockedTools,
		CommandBlacklist: e.cfg.Security.CommandBlacklist,
		CommandWhitelist: e.cfg.Security.CommandWhitelist,
		WorkingDir:       e.cfg.Sandbox.WorkingDir,
		RateLimit:        e.rateLimit(),
	}, e.logger, secOpts...)
	if err != nil {
		return fmt.Errorf("building security manager: %w", err)
	}
	e.security = sec

	if err := e.startAudit(ctx); err != nil {
		return err
	}

	factory := e.sandboxFactory()
	if pc := e.cfg.Sandbox.Pool; pc != nil {
		e.pool = sandbox.NewPool(factory, sandbox.PoolConfig{
			MaxSize: pc.MaxSize,
			Reuse:   !pc.AutoCleanup,
		}, e.logger)
		e.binder = e.pool
	} else {
		e.single = sandbox.NewSingle(factory)
		e.binder = e.single
	}

	opts := []proxy.Option{}
	if m := e.obs.MetricsOrNil(); m != nil {
		opts = append(opts, proxy.WithRecorder(m))
	}
	e.proxy = proxy.New(e.security, e.binder, e.auditLog, e.logger, opts...)

	if e.pool != nil {
		if timeout := e.cfg.SessionTimeout(); timeout > 0 {
			r, err := reaper.New(e.pool, timeout, "", e.obs.MetricsOrNil(), e.logger)
			if err != nil {
				return err
			}
			e.stopReaper = r.Start(ctx)
		}
	}

	e.started = true
	e.logger.InfoContext(ctx, "executor started",
		slog.String("provider", e.cfg.Provider()),
		slog.Bool("pooled", e.pool != nil),
	)
	return nil
}

// startAudit builds the audit logger with its JSONL and database sinks.
func (e *Executor) startAudit(ctx context.Context) error {
	enabled := e.cfg.Audit.IsEnabled()

	var logPath string
	var opts []audit.Option
	if enabled {
		if err := os.MkdirAll(e.cfg.ResolvedDataDir(), 0750); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		logPath = e.cfg.AuditLogPath()

		store, err := e.openStore()
		if err != nil {
			return err
		}
		if store != nil {
			e.store = store
			opts = append(opts, audit.WithStore(store))
		}
	}

	auditLog, err := audit.NewLogger(enabled, logPath, e.logger, opts...)
	if err != nil {
		return err
	}
	e.auditLog = auditLog
	return nil
}

// openStore opens the durable audit store per the storage config.
// SQLite is the default; postgres is opt-in.
func (e *Executor) openStore() (*audit.GormStore, error) {
	if e.cfg.Storage.StorageDriver() == "postgres" {
		return audit.OpenPostgres(e.cfg.Storage.Postgres.DSN)
	}
	return audit.OpenSQLite(e.cfg.DatabasePath())
}

// sandboxFactory builds the provider factory from config.
func (e *Executor) sandboxFactory() sandbox.Factory {
	cfg := e.cfg
	if cfg.Provider() == config.ProviderDocker {
		dc := sandbox.DockerConfig{
			Image:          cfg.Sandbox.Image,
			DefaultTimeout: cfg.ExecutionTimeout(),
			MemoryMB:       cfg.Sandbox.MaxMemoryMB,
			CPUCores:       cfg.Sandbox.CPUCores,
			PIDsLimit:      cfg.Sandbox.PIDsLimit,
			NetworkAllowed: cfg.Sandbox.NetworkAllowed,
		}
		return func() (sandbox.Sandbox, error) {
			return sandbox.NewDockerSandbox(dc, e.logger), nil
		}
	}

	lc := sandbox.LocalConfig{
		WorkingDir:     cfg.Sandbox.WorkingDir,
		DefaultTimeout: cfg.ExecutionTimeout(),
		Limits: sandbox.ResourceLimits{
			MaxCPUSeconds: cfg.Sandbox.MaxCPUSeconds,
			MaxMemoryMB:   cfg.Sandbox.MaxMemoryMB,
		},
	}
	return func() (sandbox.Sandbox, error) {
		return sandbox.NewLocalSandbox(lc, e.logger), nil
	}
}

func (e *Executor) rateLimit() ratelimit.Config {
	rl := e.cfg.Security.RateLimit
	if rl == nil {
		return ratelimit.Config{}
	}
	return ratelimit.Config{
		MaxRequests: rl.MaxRequests,
		Window:      rl.Window(),
	}
}

// Stop tears the pipeline down in reverse start order. Individual
// failures are logged and tolerated; shutdown always completes.
func (e *Executor) Stop(ctx context.Context) {
	if !e.started {
		return
	}
	e.started = false

	if e.stopReaper != nil {
		e.stopReaper()
		e.stopReaper = nil
	}
	if e.pool != nil {
		e.pool.CloseAll(ctx)
	}
	if e.single != nil {
		if err := e.single.Close(ctx); err != nil {
			e.logger.Warn("closing sandbox", slog.String("error", err.Error()))
		}
	}
	if e.auditLog != nil {
		if err := e.auditLog.Close(); err != nil {
			e.logger.Warn("closing audit log", slog.String("error", err.Error()))
		}
	}
	e.obs.Shutdown(ctx)
	e.logger.InfoContext(ctx, "executor stopped")
}

// Execute runs one tool call through the mediation pipeline.
func (e *Executor) Execute(ctx context.Context, call tools.Call, userID, sessionID string) (*tools.Result, error) {
	if !e.started {
		return nil, ErrNotStarted
	}
	return e.proxy.Execute(ctx, call, userID, sessionID), nil
}

// ExecuteBash mediates a shell command.
func (e *Executor) ExecuteBash(ctx context.Context, command, userID string) (*tools.Result, error) {
	return e.Execute(ctx, tools.NewCall(tools.ToolBash, map[string]any{"command": command}), userID, "")
}

// ReadFile mediates a file read.
func (e *Executor) ReadFile(ctx context.Context, path, userID string) (*tools.Result, error) {
	return e.Execute(ctx, tools.NewCall(tools.ToolRead, map[string]any{"file_path": path}), userID, "")
}

// WriteFile mediates a file write.
func (e *Executor) WriteFile(ctx context.Context, path, content, userID string) (*tools.Result, error) {
	return e.Execute(ctx, tools.NewCall(tools.ToolWrite, map[string]any{
		"file_path": path,
		"content":   content,
	}), userID, "")
}

// ListFiles mediates a directory listing.
func (e *Executor) ListFiles(ctx context.Context, path, pattern, userID string) (*tools.Result, error) {
	return e.Execute(ctx, tools.NewCall(tools.ToolGlob, map[string]any{
		"path":    path,
		"pattern": pattern,
	}), userID, "")
}

// SearchFiles mediates a content search.
func (e *Executor) SearchFiles(ctx context.Context, pattern, path, filePattern, userID string) (*tools.Result, error) {
	return e.Execute(ctx, tools.NewCall(tools.ToolGrep, map[string]any{
		"pattern": pattern,
		"path":    path,
		"glob":    filePattern,
	}), userID, "")
}

// PermissionCallback returns the runtime permission hook bound to a
// caller identity.
func (e *Executor) PermissionCallback(userID, sessionID string) (proxy.PermissionFunc, error) {
	if !e.started {
		return nil, ErrNotStarted
	}
	return e.proxy.PermissionCallback(userID, sessionID), nil
}

// Audit exposes the audit trail for export surfaces.
func (e *Executor) Audit() *audit.Logger { return e.auditLog }

// Security exposes the violation log and stats.
func (e *Executor) Security() *security.Manager { return e.security }

// Metrics exposes the metrics collector, or nil when disabled.
func (e *Executor) Metrics() *observability.MetricsCollector { return e.obs.MetricsOrNil() }

// Tracer exposes the OTel tracer, or nil when tracing is disabled.
func (e *Executor) Tracer() trace.Tracer {
	if e.obs == nil || e.obs.Tracer == nil {
		return nil
	}
	return e.obs.Tracer.Tracer()
}

// PoolStats reports pool occupancy. ok is false in single-session mode.
func (e *Executor) PoolStats() (stats sandbox.PoolStats, ok bool) {
	if e.pool == nil {
		return sandbox.PoolStats{}, false
	}
	return e.pool.Stats(), true
}
