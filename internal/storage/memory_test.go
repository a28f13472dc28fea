package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
)

func TestMemoryBackend_NewMemoryBackend(t *testing.T) {
	backend := NewMemoryBackend()
	require.NotNil(t, backend)
	assert.Equal(t, 0, backend.Len())
}

func TestMemoryBackend_ReturnsCopies(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	value := []byte("original")
	require.NoError(t, backend.Put(ctx, "k", value, PutOptions{}))
	value[0] = 'X'

	got, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))

	got[0] = 'Y'
	again, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestMemoryBackend_CanceledContext(t *testing.T) {
	backend := NewMemoryBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, backend.Put(ctx, "k", []byte("v"), PutOptions{}), context.Canceled)
	_, err = backend.ListByPrefix(ctx, "", ListOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryBackend_Closed(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Put(ctx, "k", []byte("v"), PutOptions{}))
	require.NoError(t, backend.Close())

	_, err := backend.Get(ctx, "k")
	assert.True(t, errors.Is(err, errors.ErrCodeStorageClosed))
	assert.True(t, errors.Is(backend.Ping(ctx), errors.ErrCodeStorageClosed))
}

func TestMemoryBackend_ListPrunesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	backend := NewMemoryBackend()
	backend.SetClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "a", []byte("1"), PutOptions{TTL: time.Second}))
	require.NoError(t, backend.Put(ctx, "b", []byte("2"), PutOptions{}))
	assert.Equal(t, 2, backend.Len())

	clock.Advance(2 * time.Second)
	keys, err := backend.ListByPrefix(ctx, "", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)
	assert.Equal(t, 1, backend.Len())
}
