// Package sqlstore implements ports.Store over database/sql. The sqlite and
// postgres packages open a connection and pick the dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mimitomo/internal/ports"
)

// Store is a ports.Store backed by one *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

type Option func(*Store)

// WithNow overrides the clock used for created_at.
func WithNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Users() ports.Users               { return &users{s} }
func (s *Store) ProfileItems() ports.ProfileItems { return &profileItems{s} }
func (s *Store) Reminders() ports.Reminders       { return &reminders{s} }
func (s *Store) Memories() ports.Memories         { return &memories{s} }
func (s *Store) ChatMessages() ports.ChatMessages { return &chatMessages{s} }

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
}

// execOne runs a statement that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// stamp fills the id and creation time of a new row.
func (s *Store) stamp(id string, created time.Time) (string, time.Time) {
	if id == "" {
		id = uuid.New().String()
	}
	if created.IsZero() {
		created = s.now()
	}
	return id, created.UTC().Truncate(time.Millisecond)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ports.ErrNotFound
	}
	return err
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
