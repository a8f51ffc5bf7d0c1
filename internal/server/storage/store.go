package storage

import (
	"context"
	"time"

	"github.com/palemoky/gamestate/internal/game"
)

// StateStore 带 TTL 的会话状态存储，不含业务逻辑。
// Get 返回 (nil, nil) 表示会话不存在或已过期。
type StateStore interface {
	Put(ctx context.Context, sessionID string, state *game.State, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (*game.State, error)
	Delete(ctx context.Context, sessionID string) (bool, error)
	HealthCheck(ctx context.Context) bool

	// Update 以乐观锁方式读-改-写，冲突时重试
	Update(ctx context.Context, sessionID string, ttl time.Duration, fn UpdateFunc) (*game.State, error)
}

// UpdateFunc 根据当前状态（可能为 nil）计算下一个状态
type UpdateFunc func(current *game.State) (*game.State, error)
