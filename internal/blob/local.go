// Package blob keeps uploaded images on the local filesystem. The HTTP API
// serves the directory under the configured base URL.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("invalid object key")

// Local implements ports.ObjectStorage on a directory.
type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir string, baseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Dir is the directory objects are written to.
func (l *Local) Dir() string {
	return l.dir
}

func (l *Local) Put(ctx context.Context, key string, _ string, body io.Reader) (string, error) {
	target, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, readerWithContext{ctx: ctx, r: body}); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", err
	}
	return l.baseURL + "/" + path.Clean(key), nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	target, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// resolve maps key into the directory and rejects keys that escape it.
func (l *Local) resolve(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if key == "" || cleaned == "/" || cleaned != "/"+key {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(l.dir, filepath.FromSlash(cleaned)), nil
}

type readerWithContext struct {
	ctx context.Context
	r   io.Reader
}

func (r readerWithContext) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
