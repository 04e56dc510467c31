// Package httpapi implements the HTTP API gateway for toolgate.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"
	"github.com/jkaninda/toolgate/internal/audit"
	"github.com/jkaninda/toolgate/internal/executor"
	"github.com/jkaninda/toolgate/internal/observability"
	"github.com/jkaninda/toolgate/internal/sandbox"
	"github.com/jkaninda/toolgate/internal/security"
	"github.com/jkaninda/toolgate/internal/tools"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr     string            // e.g., ":8090"
	EnableDocs     bool              // Serve OpenAPI docs.
	APIKeys        map[string]string // API key → user ID mapping. Keys from env.
	MaxRequestSize int64             // Maximum request body in bytes. 0 = 1 MB default.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP surface over the mediation pipeline. Every tool
// call goes through the same security, sandbox, and audit path as the
// in-process API.
type Gateway struct {
	config Config
	exec   *executor.Executor
	logger *slog.Logger
	server *http.Server

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway over a started executor.
func NewGateway(cfg Config, exec *executor.Executor, logger *slog.Logger) *Gateway {
	maxBody := cfg.MaxRequestSize
	if maxBody <= 0 {
		maxBody = defaultMaxRequestSize
	}
	return &Gateway{
		config: cfg,
		exec:   exec,
		logger: logger,
		okapi:  okapi.New(okapi.WithMaxMultipartMemory(maxBody)),
	}
}

// WithOpenAPIDocs enables interactive API documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Toolgate API",
			Version: "v1",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Metrics/tracing middleware (applied globally).
	if g.config.Metrics != nil || g.config.Tracer != nil {
		g.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(g.config.Metrics, g.config.Tracer, next)
		})
	}

	// Authenticated /v1 group.
	g.group = g.okapi.Group("/v1", g.authenticate)

	g.group.Post("/execute", g.handleExecute,
		okapi.DocSummary("Execute a tool call through the mediation pipeline"),
		okapi.DocTags("Execute"),
		okapi.DocRequestBody(ExecuteRequest{}),
		okapi.DocResponse(tools.Result{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
	)

	g.group.Get("/audit", g.handleAudit,
		okapi.DocSummary("Export the audit trail"),
		okapi.DocTags("Audit"),
		okapi.DocResponse(AuditResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/violations", g.handleViolations,
		okapi.DocSummary("Export recorded security violations"),
		okapi.DocTags("Audit"),
		okapi.DocResponse(ViolationsResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	g.group.Get("/stats", g.handleStats,
		okapi.DocSummary("Aggregate security and pool statistics"),
		okapi.DocTags("Audit"),
		okapi.DocResponse(StatsResponse{}),
	)
	g.group.Get("/healthz", g.handleHealth,
		okapi.DocSummary("Authenticated health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// ExecuteRequest is the JSON body for POST /v1/execute.
type ExecuteRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	SessionID string         `json:"session_id,omitempty"`
}

func (g *Gateway) handleExecute(c *okapi.Context) error {
	userID := c.GetString("userID")
	if userID == "" {
		return c.AbortUnauthorized("Unauthorized")
	}

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("invalid request body")
	}
	if req.ToolName == "" {
		return c.AbortBadRequest("tool_name is required")
	}

	correlationID := newCorrelationID()
	g.logger.Info("http execute",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.String("tool", req.ToolName),
	)

	call := tools.NewCall(req.ToolName, req.Arguments)
	result, err := g.exec.Execute(c.Context(), call, userID, req.SessionID)
	if err != nil {
		if errors.Is(err, executor.ErrNotStarted) {
			return c.AbortServiceUnavailable("executor not started")
		}
		g.logger.Error("execution failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return c.AbortInternalServerError("execution failed")
	}

	// Denials and sandbox failures are mediation outcomes, not HTTP
	// errors: they come back as Success=false with exit code -1.
	return c.OK(result)
}

// ExportFilter carries the optional query filters for the audit and
// violation export endpoints. Times are RFC 3339.
type ExportFilter struct {
	Tool  string `query:"tool" json:"tool,omitempty"`
	Risk  string `query:"risk" json:"risk,omitempty"` // low, medium, high, critical
	Start string `query:"start" json:"start,omitempty"`
	End   string `query:"end" json:"end,omitempty"`
}

// AuditResponse is the JSON response for GET /v1/audit.
type AuditResponse struct {
	Count   int           `json:"count"`
	Entries []audit.Entry `json:"entries"`
}

func (g *Gateway) handleAudit(c *okapi.Context) error {
	var filter ExportFilter
	if err := c.Bind(&filter); err != nil {
		return c.AbortBadRequest("invalid query parameters")
	}
	start, end, err := filter.timeRange()
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	entries := g.exec.Audit().Entries(start, end, filter.Tool)
	return c.OK(AuditResponse{Count: len(entries), Entries: entries})
}

// ViolationsResponse is the JSON response for GET /v1/violations.
type ViolationsResponse struct {
	Count      int              `json:"count"`
	Violations []map[string]any `json:"violations"`
}

func (g *Gateway) handleViolations(c *okapi.Context) error {
	var filter ExportFilter
	if err := c.Bind(&filter); err != nil {
		return c.AbortBadRequest("invalid query parameters")
	}
	start, end, err := filter.timeRange()
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	risk := security.RiskAny
	if filter.Risk != "" {
		risk = security.ParseRiskLevel(filter.Risk)
	}

	findings := g.exec.Security().Violations(start, end, risk)
	out := make([]map[string]any, len(findings))
	for i, f := range findings {
		out[i] = f.Flat()
	}
	return c.OK(ViolationsResponse{Count: len(out), Violations: out})
}

// StatsResponse is the JSON response for GET /v1/stats.
type StatsResponse struct {
	Security     security.Stats     `json:"security"`
	Pool         *sandbox.PoolStats `json:"pool,omitempty"`
	AuditEntries int                `json:"audit_entries"`
}

func (g *Gateway) handleStats(c *okapi.Context) error {
	resp := StatsResponse{
		Security:     g.exec.Security().Stats(),
		AuditEntries: g.exec.Audit().Len(),
	}
	if stats, ok := g.exec.PoolStats(); ok {
		resp.Pool = &stats
	}
	return c.OK(resp)
}

// HealthResponse is the JSON response for the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness reports whether the mediation pipeline can take calls.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.exec.Audit() == nil {
		return c.JSON(http.StatusServiceUnavailable, &HealthResponse{Status: "starting"})
	}
	return c.OK(&HealthResponse{Status: "ok"})
}

// --- Authentication ---

// authenticate validates the API key and stores the mapped user ID on
// the request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = mapped
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

// --- Helpers ---

// timeRange parses the filter's RFC 3339 start/end values.
func (f ExportFilter) timeRange() (start, end time.Time, err error) {
	if f.Start != "" {
		start, err = time.Parse(time.RFC3339, f.Start)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("start must be RFC 3339")
		}
	}
	if f.End != "" {
		end, err = time.Parse(time.RFC3339, f.End)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("end must be RFC 3339")
		}
	}
	return start, end, nil
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
