package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when nothing has been stored under the key.
var ErrNotFound = errors.New("snapshot not found")

// Snapshots defines the interface for persisting opaque snapshots
// of the reminder collection under a string key.
type Snapshots interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}
