package db

import (
	"context"
	"database/sql"
	"time"

	libdb "smartplug/backend/libs/db"
)

// NewPostgres connects to the console database with the shared helper.
func NewPostgres(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	return libdb.NewPostgresDB(ctx, dsn, libdb.Options{
		MaxOpenConns: maxOpen,
		ConnLifetime: 30 * time.Minute,
	})
}
