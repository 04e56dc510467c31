package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultPoolSize = 5

// Binder hands out a sandbox for the duration of one tool call.
// Implemented by Pool (bounded, reusing) and Single (one persistent
// session).
type Binder interface {
	Acquire(ctx context.Context) (Sandbox, error)
	Release(ctx context.Context, s Sandbox)
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// MaxSize bounds the number of live sandboxes. Zero selects the
	// default of 5.
	MaxSize int

	// Reuse returns released sandboxes to the idle set instead of
	// disposing of them.
	Reuse bool
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Created int `json:"created"`
	InUse   int `json:"in_use"`
	Idle    int `json:"idle"`
	MaxSize int `json:"max_size"`
}

// idleEntry tracks when a sandbox went idle, for the reaper.
type idleEntry struct {
	sb    Sandbox
	since time.Time
}

// Pool bounds concurrent sandboxes and reuses released ones. Acquire
// blocks once MaxSize sandboxes are leased, until a lease is released or
// the context is canceled. Never more than MaxSize sandboxes exist at
// once.
type Pool struct {
	factory Factory
	reuse   bool
	maxSize int
	logger  *slog.Logger

	// sem holds one token per outstanding lease.
	sem chan struct{}

	mu      sync.Mutex
	idle    []idleEntry
	inUse   map[Sandbox]bool
	created int
	closed  bool

	now func() time.Time // Injectable for tests.
}

// NewPool creates a sandbox pool around factory.
func NewPool(factory Factory, cfg PoolConfig, logger *slog.Logger) *Pool {
	size := cfg.MaxSize
	if size <= 0 {
		size = defaultPoolSize
	}
	return &Pool{
		factory: factory,
		reuse:   cfg.Reuse,
		maxSize: size,
		logger:  logger,
		sem:     make(chan struct{}, size),
		inUse:   make(map[Sandbox]bool),
		now:     time.Now,
	}
}

// Acquire leases a sandbox, creating and connecting one when no idle
// sandbox exists and the bound permits. Blocks when the pool is
// exhausted until a release or ctx cancellation.
func (p *Pool) Acquire(ctx context.Context) (Sandbox, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquiring sandbox: %w", ctx.Err())
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		return nil, fmt.Errorf("acquiring sandbox: pool is closed")
	}
	if n := len(p.idle); n > 0 {
		entry := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.inUse[entry.sb] = true
		p.mu.Unlock()
		return entry.sb, nil
	}
	p.created++
	p.mu.Unlock()

	sb, err := p.newConnected(ctx)
	if err != nil {
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		<-p.sem
		return nil, err
	}

	p.mu.Lock()
	p.inUse[sb] = true
	p.mu.Unlock()
	return sb, nil
}

func (p *Pool) newConnected(ctx context.Context) (Sandbox, error) {
	sb, err := p.factory()
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}
	if err := sb.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting sandbox: %w", err)
	}
	p.logger.Info("sandbox created", slog.String("sandbox_id", sb.ID()))
	return sb, nil
}

// Release returns a leased sandbox. With reuse enabled and a live
// session it goes back to the idle set; otherwise it is disposed of.
// Releasing a sandbox that is not leased is a no-op, so repeated
// releases never corrupt the occupancy accounting.
func (p *Pool) Release(ctx context.Context, sb Sandbox) {
	if sb == nil {
		return
	}

	p.mu.Lock()
	if !p.inUse[sb] {
		p.mu.Unlock()
		return
	}
	delete(p.inUse, sb)

	if p.reuse && !p.closed && sb.Connected() {
		p.idle = append(p.idle, idleEntry{sb: sb, since: p.now()})
		p.mu.Unlock()
		<-p.sem
		return
	}
	p.created--
	p.mu.Unlock()

	p.dispose(ctx, sb)
	<-p.sem
}

func (p *Pool) dispose(ctx context.Context, sb Sandbox) {
	if err := sb.Disconnect(ctx); err != nil {
		p.logger.Warn("sandbox disconnect failed",
			slog.String("sandbox_id", sb.ID()),
			slog.String("error", err.Error()),
		)
	}
}

// ReapIdle disposes of idle sandboxes that have been unused for at least
// maxIdle and returns how many were removed. Leased sandboxes are never
// touched.
func (p *Pool) ReapIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := p.now().Add(-maxIdle)

	p.mu.Lock()
	var keep []idleEntry
	var expired []Sandbox
	for _, entry := range p.idle {
		if entry.since.Before(cutoff) || entry.since.Equal(cutoff) {
			expired = append(expired, entry.sb)
		} else {
			keep = append(keep, entry)
		}
	}
	p.idle = keep
	p.created -= len(expired)
	p.mu.Unlock()

	for _, sb := range expired {
		p.dispose(ctx, sb)
	}
	if len(expired) > 0 {
		p.logger.Info("reaped idle sandboxes", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// CloseAll disconnects every sandbox, idle and leased, and rejects
// further acquires. Intended for process shutdown, when no calls are in
// flight.
func (p *Pool) CloseAll(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	all := make([]Sandbox, 0, len(p.idle)+len(p.inUse))
	for _, entry := range p.idle {
		all = append(all, entry.sb)
	}
	for sb := range p.inUse {
		all = append(all, sb)
	}
	p.idle = nil
	p.inUse = map[Sandbox]bool{}
	p.created = 0
	p.mu.Unlock()

	for _, sb := range all {
		p.dispose(ctx, sb)
	}
	p.logger.Info("sandbox pool closed", slog.Int("disposed", len(all)))
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Created: p.created,
		InUse:   len(p.inUse),
		Idle:    len(p.idle),
		MaxSize: p.maxSize,
	}
}

// Single is a Binder around one persistent sandbox: every call shares
// the same session, so file state carries across calls. Used when pool
// mode is disabled.
type Single struct {
	mu sync.Mutex
	sb Sandbox

	factory Factory
}

// NewSingle creates a Binder that lazily connects one sandbox on first
// Acquire and keeps it for the process lifetime.
func NewSingle(factory Factory) *Single {
	return &Single{factory: factory}
}

// Acquire returns the shared sandbox, creating and connecting it on
// first use.
func (s *Single) Acquire(ctx context.Context) (Sandbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sb == nil {
		sb, err := s.factory()
		if err != nil {
			return nil, fmt.Errorf("creating sandbox: %w", err)
		}
		s.sb = sb
	}
	if !s.sb.Connected() {
		if err := s.sb.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connecting sandbox: %w", err)
		}
	}
	return s.sb, nil
}

// Release is a no-op; the session persists across calls.
func (s *Single) Release(ctx context.Context, sb Sandbox) {}

// Close disconnects the shared sandbox, if one was ever created.
func (s *Single) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sb == nil {
		return nil
	}
	return s.sb.Disconnect(ctx)
}
