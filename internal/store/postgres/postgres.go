// Package postgres opens the self-hosted store through the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mimitomo/internal/store/sqlstore"
)

// Open opens a PostgreSQL connection using the pgx stdlib driver and
// verifies connectivity.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New opens the database and returns the store. Tables are created by
// Migrate, run from the migrate command or on serve startup.
func New(ctx context.Context, dsn string, opts ...sqlstore.Option) (*sqlstore.Store, error) {
	db, err := Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return sqlstore.New(db, sqlstore.Postgres, opts...), nil
}
