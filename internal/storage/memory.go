package storage

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/logging"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryBackend keeps records in a map; expired entries are dropped lazily
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	closed  bool
	now     func() time.Time
	logger  *slog.Logger
}

// NewMemoryBackend creates a new memory-based storage backend
func NewMemoryBackend() *MemoryBackend {
	logger := logging.GetGlobalLogger("storage.memory")
	logger.Info("Creating memory backend")

	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock replaces the time source used for expiry
func (m *MemoryBackend) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryBackend) check(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if m.closed {
		return errors.New(errors.ErrCodeStorageClosed, "memory backend is closed")
	}
	if strings.TrimSpace(key) == "" {
		return errors.ValidationRequired("key")
	}
	return nil
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(ctx, key); err != nil {
		return nil, err
	}
	entry, ok := m.entries[key]
	if !ok || entry.expired(m.now()) {
		return nil, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (m *MemoryBackend) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, key); err != nil {
		return err
	}
	if opts.TTL < 0 {
		return errors.Newf(errors.ErrCodeValidationRange, "ttl must be non-negative, got %s", opts.TTL)
	}

	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if opts.TTL > 0 {
		entry.expiresAt = m.now().Add(opts.TTL)
	}
	m.entries[key] = entry

	m.logger.DebugContext(ctx, "Stored record",
		slog.String("key", key),
		slog.Int("size", len(value)),
		slog.Duration("ttl", opts.TTL),
	)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(ctx, key); err != nil {
		return err
	}
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) ListByPrefix(ctx context.Context, prefix string, opts ListOptions) ([]string, error) {
	timer := logging.StartTimer(ctx, m.logger, "listByPrefix")
	defer timer.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if m.closed {
		return nil, errors.New(errors.ErrCodeStorageClosed, "memory backend is closed")
	}

	now := m.now()
	keys := make([]string, 0)
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}
	return keys, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errors.New(errors.ErrCodeStorageClosed, "memory backend is closed")
	}
	return ctx.Err()
}

// Len counts live entries
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	n := 0
	for _, entry := range m.entries {
		if !entry.expired(now) {
			n++
		}
	}
	return n
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.entries = make(map[string]memoryEntry)
	m.logger.Info("Memory backend closed")
	return nil
}
