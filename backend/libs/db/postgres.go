package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Options tunes the connection pool. Zero values fall back to defaults.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	PingTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 {
		o.MaxIdleConns = 2
	}
	if o.ConnLifetime <= 0 {
		o.ConnLifetime = time.Hour
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 5 * time.Second
	}
	return o
}

// NewPostgresDB opens a pgx/stdlib backed *sql.DB pool and pings it once.
func NewPostgresDB(ctx context.Context, dsn string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}
	opts = opts.withDefaults()

	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.ConnLifetime)
	conn.SetConnMaxIdleTime(opts.ConnLifetime / 2)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()

	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}
