// Package storage describes the object store that holds published dataset
// snapshots.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore is what publishing and fetching snapshots needs. Snapshots
// are immutable, so there is no delete.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	// Get returns ErrObjectNotFound for a missing key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the objects under prefix. Keys are relative to the store.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
