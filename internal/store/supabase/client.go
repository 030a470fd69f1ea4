// Package supabase stores records through PostgREST and images through
// Supabase Storage.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mimitomo/internal/ports"
)

const defaultTimeout = 15 * time.Second

// Config points at a Supabase project.
type Config struct {
	URL     string
	Key     string
	Bucket  string
	Timeout time.Duration
}

// Store implements ports.Store and ports.ObjectStorage.
type Store struct {
	client  *resty.Client
	baseURL string
	bucket  string
}

func New(cfg Config) (*Store, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" || strings.TrimSpace(cfg.Key) == "" {
		return nil, errors.New("supabase url and key are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "memories"
	}

	client := resty.New().
		SetBaseURL(base).
		SetHeader("apikey", cfg.Key).
		SetAuthToken(cfg.Key).
		SetTimeout(cfg.Timeout)

	return &Store{client: client, baseURL: base, bucket: cfg.Bucket}, nil
}

func (s *Store) Users() ports.Users               { return &users{s} }
func (s *Store) ProfileItems() ports.ProfileItems { return &profileItems{s} }
func (s *Store) Reminders() ports.Reminders       { return &reminders{s} }
func (s *Store) Memories() ports.Memories         { return &memories{s} }
func (s *Store) ChatMessages() ports.ChatMessages { return &chatMessages{s} }

func (s *Store) Close() error {
	return nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supabase %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (s *Store) rest(ctx context.Context) *resty.Request {
	return s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return &StatusError{
			Method: resp.Request.Method,
			Path:   resp.Request.URL,
			Status: resp.StatusCode(),
			Body:   strings.TrimSpace(resp.String()),
		}
	}
	return nil
}

func tablePath(table string) string {
	return "/rest/v1/" + table
}

func eq(value string) string {
	return "eq." + value
}

// insertRow posts one row and decodes the representation returned for it.
func insertRow[T any](ctx context.Context, s *Store, table string, payload any) (T, error) {
	var zero T
	var rows []T
	resp, err := s.rest(ctx).
		SetHeader("Prefer", "return=representation").
		SetBody(payload).
		Post(tablePath(table))
	if err := check(resp, err); err != nil {
		return zero, err
	}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return zero, fmt.Errorf("decode %s insert: %w", table, err)
	}
	if len(rows) == 0 {
		return zero, fmt.Errorf("supabase returned no %s row", table)
	}
	return rows[0], nil
}

func selectRows[T any](ctx context.Context, s *Store, table string, params map[string]string) ([]T, error) {
	rows := []T{}
	resp, err := s.rest(ctx).
		SetQueryParam("select", "*").
		SetQueryParams(params).
		Get(tablePath(table))
	if err := check(resp, err); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", table, err)
	}
	return rows, nil
}

func getRow[T any](ctx context.Context, s *Store, table string, id string) (T, error) {
	var zero T
	rows, err := selectRows[T](ctx, s, table, map[string]string{"id": eq(id)})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ports.ErrNotFound
	}
	return rows[0], nil
}

func patchRow[T any](ctx context.Context, s *Store, table string, id string, payload any) (T, error) {
	var zero T
	var rows []T
	resp, err := s.rest(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParam("id", eq(id)).
		SetBody(payload).
		Patch(tablePath(table))
	if err := check(resp, err); err != nil {
		return zero, err
	}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return zero, fmt.Errorf("decode %s update: %w", table, err)
	}
	if len(rows) == 0 {
		return zero, ports.ErrNotFound
	}
	return rows[0], nil
}

// deleteRows removes rows matching params and reports how many went.
func deleteRows(ctx context.Context, s *Store, table string, params map[string]string) (int, error) {
	var rows []json.RawMessage
	resp, err := s.rest(ctx).
		SetHeader("Prefer", "return=representation").
		SetQueryParams(params).
		Delete(tablePath(table))
	if err := check(resp, err); err != nil {
		return 0, err
	}
	if len(resp.Body()) == 0 {
		return 0, nil
	}
	if err := json.Unmarshal(resp.Body(), &rows); err != nil {
		return 0, fmt.Errorf("decode %s delete: %w", table, err)
	}
	return len(rows), nil
}

func deleteRow(ctx context.Context, s *Store, table string, id string) error {
	n, err := deleteRows(ctx, s, table, map[string]string{"id": eq(id)})
	if err != nil {
		return err
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Put uploads an object and returns its public URL.
func (s *Store) Put(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "true").
		SetBody(body).
		Post(s.objectPath(key))
	if err := check(resp, err); err != nil {
		return "", err
	}
	return s.PublicURL(key), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	resp, err := s.client.R().SetContext(ctx).Delete(s.objectPath(key))
	if resp != nil && resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	return check(resp, err)
}

// PublicURL is where a public bucket serves key.
func (s *Store) PublicURL(key string) string {
	return s.baseURL + "/storage/v1/object/public/" + url.PathEscape(s.bucket) + "/" + escapeKey(key)
}

func (s *Store) objectPath(key string) string {
	return "/storage/v1/object/" + url.PathEscape(s.bucket) + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	parts := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
