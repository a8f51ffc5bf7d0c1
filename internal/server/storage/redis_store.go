package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/palemoky/gamestate/internal/apperrors"
	"github.com/palemoky/gamestate/internal/game"
)

const (
	// Redis key 前缀
	stateKeyPrefix = "game:state:"

	// DefaultTTL 会话状态过期时间
	DefaultTTL = 2 * time.Hour

	defaultOpTimeout      = 2 * time.Second
	defaultUpdateAttempts = 10
)

// ErrTooManyConflicts 乐观写多次冲突后放弃
var ErrTooManyConflicts = errors.New("too many concurrent writers")

// ErrCommitUnconfirmed EXEC 已发出但未收到确认，写入可能已生效，不再重试
var ErrCommitUnconfirmed = errors.New("commit unconfirmed")

// StateKey 返回会话在 Redis 中的 key
func StateKey(sessionID string) string {
	return stateKeyPrefix + sessionID
}

// RedisStore Redis 存储
type RedisStore struct {
	client         *redis.Client
	codec          Codec
	opTimeout      time.Duration
	maxRetries     int
	updateAttempts int
}

// Option 配置 RedisStore
type Option func(*RedisStore)

// WithCodec 设置序列化方式
func WithCodec(c Codec) Option {
	return func(rs *RedisStore) {
		if c != nil {
			rs.codec = c
		}
	}
}

// WithOpTimeout 设置单次操作超时
func WithOpTimeout(d time.Duration) Option {
	return func(rs *RedisStore) {
		if d > 0 {
			rs.opTimeout = d
		}
	}
}

// WithMaxRetries 设置存储不可用时的重试次数（0 表示不重试）
func WithMaxRetries(n int) Option {
	return func(rs *RedisStore) {
		if n >= 0 {
			rs.maxRetries = n
		}
	}
}

// WithUpdateAttempts 设置乐观写冲突时的最大尝试次数
func WithUpdateAttempts(n int) Option {
	return func(rs *RedisStore) {
		if n > 0 {
			rs.updateAttempts = n
		}
	}
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	rs := &RedisStore{
		client:         client,
		codec:          JSONCodec{},
		opTimeout:      defaultOpTimeout,
		updateAttempts: defaultUpdateAttempts,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

// Client 返回底层 Redis 客户端
func (rs *RedisStore) Client() *redis.Client {
	return rs.client
}

// Put 覆盖会话状态并重置 TTL
func (rs *RedisStore) Put(ctx context.Context, sessionID string, state *game.State, ttl time.Duration) error {
	data, err := rs.codec.Marshal(state)
	if err != nil {
		return apperrors.New(apperrors.SerializationError, "put", sessionID, err)
	}

	err = rs.retry(ctx, func(ctx context.Context) error {
		return rs.client.Set(ctx, StateKey(sessionID), data, ttlOrDefault(ttl)).Err()
	})
	if err != nil {
		return apperrors.New(apperrors.StoreUnavailable, "put", sessionID, err)
	}
	return nil
}

// Get 读取会话状态，不存在时返回 (nil, nil)
func (rs *RedisStore) Get(ctx context.Context, sessionID string) (*game.State, error) {
	var data []byte
	err := rs.retry(ctx, func(ctx context.Context) error {
		b, err := rs.client.Get(ctx, StateKey(sessionID)).Bytes()
		if errors.Is(err, redis.Nil) {
			data = nil
			return nil
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, apperrors.New(apperrors.StoreUnavailable, "get", sessionID, err)
	}
	if data == nil {
		return nil, nil
	}

	state, err := rs.codec.Unmarshal(data)
	if err != nil {
		return nil, apperrors.New(apperrors.SerializationError, "get", sessionID, err)
	}
	return state, nil
}

// Delete 删除会话状态，返回是否确实删除了记录
func (rs *RedisStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	var n int64
	err := rs.retry(ctx, func(ctx context.Context) error {
		var err error
		n, err = rs.client.Del(ctx, StateKey(sessionID)).Result()
		return err
	})
	if err != nil {
		return false, apperrors.New(apperrors.StoreUnavailable, "delete", sessionID, err)
	}
	return n > 0, nil
}

// HealthCheck 探测 Redis 是否可达，不会返回错误
func (rs *RedisStore) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	if err := rs.client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis 健康检查失败", "err", err)
		return false
	}
	return true
}

// Update 在 WATCH 事务中读-改-写，其他写者插入时重试。
// EXEC 发出后的失败不重试，避免同一次转换被应用两次。
func (rs *RedisStore) Update(ctx context.Context, sessionID string, ttl time.Duration, fn UpdateFunc) (*game.State, error) {
	key := StateKey(sessionID)

	for attempt := 0; attempt < rs.updateAttempts; attempt++ {
		var next *game.State
		err := rs.retry(ctx, func(ctx context.Context) error {
			err := rs.client.Watch(ctx, func(tx *redis.Tx) error {
				n, err := rs.applyTx(ctx, tx, key, sessionID, ttl, fn)
				if err == nil {
					next = n
				}
				return err
			}, key)

			var stateErr *apperrors.StateError
			if errors.Is(err, redis.TxFailedErr) || errors.As(err, &stateErr) {
				return backoff.Permanent(err)
			}
			return err
		})

		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			log.Debug("会话写冲突，重试", "session", sessionID, "attempt", attempt+1)
			continue
		}

		var stateErr *apperrors.StateError
		if errors.As(err, &stateErr) {
			return nil, stateErr
		}
		return nil, apperrors.New(apperrors.StoreUnavailable, "update", sessionID, err)
	}

	return nil, apperrors.New(apperrors.StoreUnavailable, "update", sessionID, ErrTooManyConflicts)
}

// applyTx 读取当前值、计算新值，并在 MULTI/EXEC 中写回
func (rs *RedisStore) applyTx(ctx context.Context, tx *redis.Tx, key, sessionID string, ttl time.Duration, fn UpdateFunc) (*game.State, error) {
	current, err := rs.readTx(ctx, tx, key, sessionID)
	if err != nil {
		return nil, err
	}

	next, err := fn(current)
	if err != nil {
		return nil, apperrors.New(apperrors.TransitionFailure, "update", sessionID, err)
	}
	if next == nil {
		return nil, apperrors.New(apperrors.TransitionFailure, "update", sessionID, errors.New("transition returned no state"))
	}

	data, err := rs.codec.Marshal(next)
	if err != nil {
		return nil, apperrors.New(apperrors.SerializationError, "update", sessionID, err)
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, ttlOrDefault(ttl))
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.New(apperrors.StoreUnavailable, "update", sessionID, fmt.Errorf("%w: %w", ErrCommitUnconfirmed, err))
	}
	return next, nil
}

func (rs *RedisStore) readTx(ctx context.Context, tx *redis.Tx, key, sessionID string) (*game.State, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state, err := rs.codec.Unmarshal(data)
	if err != nil {
		return nil, apperrors.New(apperrors.SerializationError, "update", sessionID, err)
	}
	return state, nil
}

// --- 管理接口辅助方法 ---

// ScanSessionIDs 列出所有未过期的会话 ID
func (rs *RedisStore) ScanSessionIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	var ids []string
	iter := rs.client.Scan(ctx, 0, stateKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), stateKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.New(apperrors.StoreUnavailable, "scan", "", err)
	}
	return ids, nil
}

// TTL 返回会话剩余存活时间；不存在时返回 0
func (rs *RedisStore) TTL(ctx context.Context, sessionID string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.opTimeout)
	defer cancel()

	d, err := rs.client.TTL(ctx, StateKey(sessionID)).Result()
	if err != nil {
		return 0, apperrors.New(apperrors.StoreUnavailable, "ttl", sessionID, err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// retry 每次尝试带独立超时；存储不可用时按指数退避重试
func (rs *RedisStore) retry(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := func() error {
		opCtx, cancel := context.WithTimeout(ctx, rs.opTimeout)
		defer cancel()
		return op(opCtx)
	}

	if rs.maxRetries == 0 {
		return attempt()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	notify := func(err error, wait time.Duration) {
		log.Warn("存储操作失败，准备重试", "err", err, "wait", wait)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(rs.maxRetries)), ctx)
	return backoff.RetryNotify(attempt, policy, notify)
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
