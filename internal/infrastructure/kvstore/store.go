// Package kvstore provides a string-keyed blob store used for durable
// coordinator state that does not warrant a relational table, such as crash
// recovery snapshots.
package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is a durable key-value store. Values are opaque bytes; callers own
// serialization.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
