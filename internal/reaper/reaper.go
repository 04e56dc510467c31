// Package reaper disposes of pooled sandboxes that have sat idle past
// the session timeout, on a cron schedule.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/toolgate/internal/observability"
	"github.com/jkaninda/toolgate/internal/sandbox"
)

const defaultSchedule = "@every 1m"

// Reaper sweeps the pool on a schedule. It only ever touches idle
// sandboxes; leased ones are left alone.
type Reaper struct {
	pool     *sandbox.Pool
	maxIdle  time.Duration
	schedule cron.Schedule
	metrics  *observability.MetricsCollector // May be nil.
	logger   *slog.Logger
}

// New creates a Reaper. spec is a cron expression or descriptor
// ("*/5 * * * *", "@every 30s"); empty selects a one-minute sweep.
func New(pool *sandbox.Pool, maxIdle time.Duration, spec string, metrics *observability.MetricsCollector, logger *slog.Logger) (*Reaper, error) {
	if maxIdle <= 0 {
		return nil, fmt.Errorf("reaper: max idle must be positive")
	}
	if spec == "" {
		spec = defaultSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing reap schedule %q: %w", spec, err)
	}
	return &Reaper{
		pool:     pool,
		maxIdle:  maxIdle,
		schedule: schedule,
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Start begins the sweep loop. Returns a cancel function.
func (r *Reaper) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		r.logger.InfoContext(ctx, "sandbox reaper started",
			slog.Duration("max_idle", r.maxIdle),
		)
		for {
			next := r.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				r.logger.Info("sandbox reaper stopped")
				return
			case <-timer.C:
				r.sweep(ctx)
			}
		}
	}()

	return cancel
}

// sweep runs one reap cycle and publishes pool occupancy.
func (r *Reaper) sweep(ctx context.Context) {
	reaped := r.pool.ReapIdle(ctx, r.maxIdle)
	stats := r.pool.Stats()
	r.metrics.SetPoolStats(stats)

	if reaped > 0 {
		r.logger.InfoContext(ctx, "sweep complete",
			slog.Int("reaped", reaped),
			slog.Int("idle", stats.Idle),
			slog.Int("in_use", stats.InUse),
		)
	}
}
