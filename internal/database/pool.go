// Package database owns physical access to the backing PostgreSQL store:
// a resilient connection pool with validation, bounded retries and health
// reporting, plus a local durable fallback queue for writes made while the
// backend is unreachable.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable indicates the backend could not be reached after all
// acquire retries were exhausted. Callers are expected to degrade (queue
// writes, return empty reads) rather than crash.
var ErrUnavailable = errors.New("backend unavailable")

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus is the result of a pool health probe. It carries enough
// detail for both automated maintenance decisions and human diagnostics.
type HealthStatus struct {
	Status      string        `json:"status"`
	Latency     time.Duration `json:"latency"`
	ActiveConns int32         `json:"active_connections"`
	TotalConns  int32         `json:"total_connections"`
	Error       string        `json:"error,omitempty"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	// ConnString is a pgx DSN or URL for the backing store.
	ConnString string

	// MinConns/MaxConns bound the physical connection set. Defaults: 2/10.
	MinConns int32
	MaxConns int32

	// AcquireTimeout bounds a single acquire attempt. Default: 10s.
	AcquireTimeout time.Duration

	// AcquireRetries is the total number of acquire attempts before giving
	// up with ErrUnavailable. Default: 3.
	AcquireRetries uint

	// AcquireRetryDelay is the fixed delay between attempts. Default: 2s.
	AcquireRetryDelay time.Duration
}

func (c *PoolConfig) applyDefaults() {
	if c.MinConns <= 0 {
		c.MinConns = 2
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 10 * time.Second
	}
	if c.AcquireRetries == 0 {
		c.AcquireRetries = 3
	}
	if c.AcquireRetryDelay <= 0 {
		c.AcquireRetryDelay = 2 * time.Second
	}
}

// Pool wraps a pgx connection pool and owns its lifecycle: every handed-out
// connection is validated with a round trip first, and a failed validation
// tears the underlying pool down so the next acquire rebuilds it from
// scratch instead of reusing poisoned connections.
//
// Pool is safe for concurrent use by multiple goroutines.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool // nil when torn down; rebuilt lazily on next acquire
}

// NewPool creates a Pool. Creation is lazy: the backend does not need to be
// reachable at construction time, only when connections are acquired.
func NewPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*Pool, error) {
	if cfg.ConnString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	p := &Pool{cfg: cfg, logger: logger}

	// Build eagerly so config errors surface now; connection errors don't,
	// pgxpool connects on demand.
	pool, err := p.build(ctx)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	return p, nil
}

// build constructs a fresh pgx pool from the stored config.
func (p *Pool) build(ctx context.Context) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(p.cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MinConns = p.cfg.MinConns
	poolCfg.MaxConns = p.cfg.MaxConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// current returns the live pgx pool, rebuilding it if a previous failure
// tore it down.
func (p *Pool) current(ctx context.Context) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		return p.pool, nil
	}

	pool, err := p.build(ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Info("connection pool re-initialized")
	p.pool = pool
	return pool, nil
}

// invalidate closes and discards the given pgx pool if it is still the
// current one. Concurrent acquirers holding the same broken pool all funnel
// through here; only the first closes it.
func (p *Pool) invalidate(broken *pgxpool.Pool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool == broken && p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

// Acquire returns a validated connection from the pool. Each attempt is
// bounded by AcquireTimeout and validated with a SELECT 1 round trip; a
// failed attempt tears down and rebuilds the underlying pool. After
// AcquireRetries attempts with AcquireRetryDelay between them, Acquire
// gives up and returns an error wrapping ErrUnavailable.
//
// The caller must Release the connection.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	attempt := 0
	op := func() (*pgxpool.Conn, error) {
		attempt++
		conn, err := p.acquireOnce(ctx)
		if err != nil {
			p.logger.Warn("connection acquire attempt failed",
				"attempt", attempt, "max_attempts", p.cfg.AcquireRetries, "error", err)
			return nil, err
		}
		return conn, nil
	}

	conn, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(p.cfg.AcquireRetryDelay)),
		backoff.WithMaxTries(p.cfg.AcquireRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: acquiring connection after %d attempts: %w",
			ErrUnavailable, attempt, err)
	}
	return conn, nil
}

// acquireOnce performs a single acquire + validation attempt.
func (p *Pool) acquireOnce(ctx context.Context) (*pgxpool.Conn, error) {
	pool, err := p.current(ctx)
	if err != nil {
		return nil, err
	}

	acqCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	conn, err := pool.Acquire(acqCtx)
	if err != nil {
		p.invalidate(pool)
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	// Validate before handing out. A stale connection fails here rather
	// than in the caller's first query.
	var one int
	if err := conn.QueryRow(acqCtx, "SELECT 1").Scan(&one); err != nil {
		conn.Release()
		p.invalidate(pool)
		return nil, fmt.Errorf("validating connection: %w", err)
	}

	return conn, nil
}

// Exec acquires a validated connection, runs the statement, and releases.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	defer conn.Release()

	return conn.Exec(ctx, sql, args...)
}

// Health probes the backend with a SELECT 1 round trip. It never returns an
// error: total failure is reported as StatusUnhealthy with the captured
// error string.
func (p *Pool) Health(ctx context.Context) HealthStatus {
	st := HealthStatus{Status: StatusUnhealthy, CheckedAt: time.Now()}

	pool, err := p.current(ctx)
	if err != nil {
		st.Error = err.Error()
		return st
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	var one int
	if err := pool.QueryRow(probeCtx, "SELECT 1").Scan(&one); err != nil {
		st.Error = err.Error()
		return st
	}
	st.Latency = time.Since(start)

	stat := pool.Stat()
	st.Status = StatusHealthy
	st.ActiveConns = stat.AcquiredConns()
	st.TotalConns = stat.TotalConns()
	return st
}

// Close shuts down the underlying pgx pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}
