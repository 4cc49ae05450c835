// Package db opens and tunes the warehouse connection pool. Schema DDL is
// applied out of band by the migrate command, never here.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	maxConns        = 10
	minConns        = 2
	maxConnLifetime = 30 * time.Minute
	pingTimeout     = 10 * time.Second
)

// DB wraps the warehouse pool. The pool is exported because the stores and
// the sync processor take it directly as their DBTX/Beginner.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Open connects to the warehouse and verifies the connection with a ping
// before handing the pool out.
func Open(ctx context.Context, url string, logger zerolog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnLifetime = maxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	l := logger.With().Str("component", "db").Logger()
	l.Debug().
		Str("database", cfg.ConnConfig.Database).
		Str("host", cfg.ConnConfig.Host).
		Msg("warehouse pool opened")

	return &DB{Pool: pool, logger: l}, nil
}

// Close releases the pool.
func (d *DB) Close() {
	d.logger.Debug().Msg("closing warehouse pool")
	d.Pool.Close()
}
