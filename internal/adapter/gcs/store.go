// Package gcs implements the file store port on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/Strob0t/Tasktrack/internal/domain"
	"github.com/Strob0t/Tasktrack/internal/port/filestore"
)

// Store keeps objects in a single bucket under an optional prefix.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ filestore.Store = (*Store)(nil)

// New creates a GCS client. With an empty credentialsFile the client uses
// application default credentials.
func New(ctx context.Context, bucket, prefix, credentialsFile string) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("gcs credentials %s: %w", credentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) (string, error) {
	name := s.objectName(key)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	w.CacheControl = "private, no-store"

	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close %s: %w", name, err)
	}
	return s.ref(name), nil
}

func (s *Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	name, err := s.parseRef(ref)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("open %s: %w", ref, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	return rc, nil
}

func (s *Store) Delete(ctx context.Context, ref string) error {
	name, err := s.parseRef(ref)
	if err != nil {
		return err
	}
	if err := s.client.Bucket(s.bucket).Object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

func (s *Store) objectName(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *Store) ref(name string) string {
	return "gs://" + s.bucket + "/" + name
}

// parseRef accepts only references into this store's bucket.
func (s *Store) parseRef(ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, "gs://"+s.bucket+"/")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: not a reference into bucket %s: %q", domain.ErrValidation, s.bucket, ref)
	}
	return name, nil
}
