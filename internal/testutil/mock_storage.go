//go:build !production

package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/server/storage"
)

// MockStore 实现 storage.StateStore 的 mock
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Put(ctx context.Context, sessionID string, state *game.State, ttl time.Duration) error {
	args := m.Called(ctx, sessionID, state, ttl)
	return args.Error(0)
}

func (m *MockStore) Get(ctx context.Context, sessionID string) (*game.State, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.State), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	args := m.Called(ctx, sessionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) HealthCheck(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockStore) Update(ctx context.Context, sessionID string, ttl time.Duration, fn storage.UpdateFunc) (*game.State, error) {
	args := m.Called(ctx, sessionID, ttl, fn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*game.State), args.Error(1)
}
