package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions sizes the pool. Zero fields fall back to DefaultPoolOptions.
type PoolOptions struct {
	MaxConns     int32
	MinConns     int32
	PingAttempts int
	PingBackoff  time.Duration
}

func DefaultPoolOptions() PoolOptions {
	return PoolOptions{MaxConns: 4, MinConns: 1, PingAttempts: 5, PingBackoff: time.Second}
}

// Connect opens a pool and waits for the server to answer a ping, retrying
// with a linear backoff while ctx allows.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	def := DefaultPoolOptions()
	if opts.MaxConns <= 0 {
		opts.MaxConns = def.MaxConns
	}
	if opts.MinConns <= 0 || opts.MinConns > opts.MaxConns {
		opts.MinConns = min(def.MinConns, opts.MaxConns)
	}
	if opts.PingAttempts <= 0 {
		opts.PingAttempts = def.PingAttempts
	}
	if opts.PingBackoff <= 0 {
		opts.PingBackoff = def.PingBackoff
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return pool, nil
		}
		if attempt >= opts.PingAttempts {
			break
		}
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("ping db: %w", ctx.Err())
		case <-time.After(time.Duration(attempt) * opts.PingBackoff):
		}
	}
	pool.Close()
	return nil, fmt.Errorf("ping db after %d attempts: %w", opts.PingAttempts, err)
}

// OpenSnapshots prepares the snapshot table on an open pool.
func OpenSnapshots(ctx context.Context, pool *pgxpool.Pool, gameID string) (*Snapshots, error) {
	s := NewSnapshots(pool, gameID)
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
