// Package db stores schema documents in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

const (
	defaultMaxConns       = 4
	defaultConnectTimeout = 10 * time.Second
)

// PoolParams configures NewPool. Zero values take the defaults.
type PoolParams struct {
	URL string
	// ApplicationName is reported to the server as application_name.
	ApplicationName string
	MaxConns        int32
	ConnectTimeout  time.Duration
}

// NewPool opens a small pool for the schema store and checks it with a ping.
func NewPool(ctx context.Context, p PoolParams) (*pgxpool.Pool, error) {
	if p.URL == "" {
		return nil, fmt.Errorf("%s - database URL is empty", logPrefix)
	}
	config, err := pgxpool.ParseConfig(p.URL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// Documents are read at startup and by the schema commands only.
	config.MaxConns = defaultMaxConns
	if p.MaxConns > 0 {
		config.MaxConns = p.MaxConns
	}
	config.MinConns = 0
	timeout := p.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	config.ConnConfig.ConnectTimeout = timeout
	if p.ApplicationName != "" {
		config.ConnConfig.RuntimeParams["application_name"] = p.ApplicationName
	}

	slog.Info(fmt.Sprintf("%s - Connecting to %s:%d/%s", logPrefix, config.ConnConfig.Host, config.ConnConfig.Port, config.ConnConfig.Database))
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}
	return pool, nil
}
