package reaper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jkaninda/toolgate/internal/sandbox"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localFactory() (sandbox.Sandbox, error) {
	return sandbox.NewLocalSandbox(sandbox.LocalConfig{}, discard()), nil
}

func TestNewRejectsBadInput(t *testing.T) {
	pool := sandbox.NewPool(localFactory, sandbox.PoolConfig{Reuse: true}, discard())

	if _, err := New(pool, 0, "", nil, discard()); err == nil {
		t.Error("zero max idle should be rejected")
	}
	if _, err := New(pool, time.Minute, "not a schedule", nil, discard()); err == nil {
		t.Error("bad cron spec should be rejected")
	}
}

func TestNewAcceptsDescriptorsAndExpressions(t *testing.T) {
	pool := sandbox.NewPool(localFactory, sandbox.PoolConfig{Reuse: true}, discard())

	for _, spec := range []string{"", "@every 30s", "*/5 * * * *"} {
		if _, err := New(pool, time.Minute, spec, nil, discard()); err != nil {
			t.Errorf("New(%q) = %v, want nil", spec, err)
		}
	}
}

func TestReaperSweepsIdleSandboxes(t *testing.T) {
	pool := sandbox.NewPool(localFactory, sandbox.PoolConfig{MaxSize: 2, Reuse: true}, discard())
	ctx := context.Background()

	sb, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	pool.Release(ctx, sb)

	r, err := New(pool, 200*time.Millisecond, "@every 100ms", nil, discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := r.Start(ctx)
	defer stop()

	deadline := time.After(5 * time.Second)
	for pool.Stats().Created != 0 {
		select {
		case <-deadline:
			t.Fatalf("idle sandbox was not reaped; stats = %+v", pool.Stats())
		case <-time.After(50 * time.Millisecond):
		}
	}
	if sb.Connected() {
		t.Error("reaped sandbox should be disconnected")
	}
}
