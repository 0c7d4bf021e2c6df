// Package filestore defines the port for storing uploaded evidence files.
package filestore

import (
	"context"
	"io"
)

// Store persists file contents under caller-chosen keys and hands back an
// opaque reference for later reads. Keys are content-addressed by the
// caller, so Put of an existing key overwrites identical bytes.
type Store interface {
	// Put writes r under key and returns the storage reference.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (ref string, err error)

	// Open returns a reader for a reference produced by Put. A missing
	// object yields an error wrapping domain.ErrNotFound.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, ref string) error
}
