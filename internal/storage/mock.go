package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a testify mock of Backend for fault-injection tests
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBackend) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	args := m.Called(ctx, key, value, opts)
	return args.Error(0)
}

func (m *MockBackend) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBackend) ListByPrefix(ctx context.Context, prefix string, opts ListOptions) ([]string, error) {
	args := m.Called(ctx, prefix, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockBackend) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) Close() error {
	args := m.Called()
	return args.Error(0)
}
