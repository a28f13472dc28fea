// In file: internal/storage/backend.go
package storage

import (
	"context"
	"time"
)

// PutOptions control how a value is written
type PutOptions struct {
	// TTL of zero means the entry never expires
	TTL time.Duration
}

// ListOptions bound a prefix listing
type ListOptions struct {
	// Limit <= 0 means unlimited
	Limit int
}

// Backend is the key-value record store shared by the registry, the event log and the mailbox.
// Writes are last-write-wins and there are no transactions.
type Backend interface {
	// Get returns nil, nil when the key is missing or expired
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, opts PutOptions) error
	// Delete of a missing key is not an error
	Delete(ctx context.Context, key string) error
	// ListByPrefix returns live keys in ascending byte order
	ListByPrefix(ctx context.Context, prefix string, opts ListOptions) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
