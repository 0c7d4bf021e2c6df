// Package localfs implements the file store port on the local filesystem.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/port/filestore"
)

const refScheme = "local://"

// Store keeps objects as files below a root directory.
type Store struct {
	root string
}

var _ filestore.Store = (*Store)(nil)

// New creates the root directory if needed and returns a Store rooted there.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("localfs root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("localfs mkdir %s: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Put writes to a temporary file first and renames it into place so
// readers never see a partial object.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, _ string) (string, error) {
	path, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("localfs mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("localfs create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("localfs write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("localfs close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("localfs rename %s: %w", key, err)
	}
	return refScheme + key, nil
}

func (s *Store) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.refPath(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // path is confined to root by refPath
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open %s: %w", ref, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	return f, nil
}

func (s *Store) Delete(_ context.Context, ref string) error {
	path, err := s.refPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func (s *Store) refPath(ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, refScheme)
	if !ok {
		return "", fmt.Errorf("%w: not a local storage reference: %q", domain.ErrValidation, ref)
	}
	return s.path(key)
}

// path resolves key below root and rejects keys that escape it.
func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty storage key", domain.ErrValidation)
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: storage key %q escapes the root", domain.ErrValidation, key)
	}
	return p, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
