// Package database opens the Postgres pool and applies schema migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
	// ConnectTimeout bounds how long NewPool keeps retrying the first ping.
	// Zero means a single attempt.
	ConnectTimeout time.Duration
}

// NewPool builds a pgx pool and waits until the server answers a ping.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := backoff.Retry(func() error { return pool.Ping(ctx) }, connectPolicy(ctx, cfg.ConnectTimeout)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func connectPolicy(ctx context.Context, timeout time.Duration) backoff.BackOff {
	if timeout <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = timeout
	return backoff.WithContext(b, ctx)
}
