package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/palemoky/gamestate/internal/apperrors"
	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/server/storage"
	"github.com/palemoky/gamestate/internal/telemetry"
)

// Coordinator 会话状态协调器：唯一修改会话状态的入口。
// 同一会话的读-改-写在进程内由 keyLock 串行化，跨进程由 StateStore.Update 保证。
type Coordinator struct {
	store  storage.StateStore
	locks  *keyLock
	ttl    time.Duration
	now    func() time.Time
	tracer trace.Tracer
}

// Option 配置 Coordinator
type Option func(*Coordinator)

// WithTTL 设置会话过期时间
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTracer 替换 tracer
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New 创建协调器
func New(store storage.StateStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		locks:  newKeyLock(),
		ttl:    storage.DefaultTTL,
		now:    time.Now,
		tracer: telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UpdateState 对会话执行一次状态转换并持久化，返回新状态。
// 转换函数的错误或 panic 转为 TransitionFailure，不会向上传播 panic。
func (c *Coordinator) UpdateState(ctx context.Context, sessionID string, transition game.Transition) (next *game.State, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.update", sessionID)
	defer func() { endSpan(span, err) }()
	defer c.recoverInto(&err, "update", sessionID)

	unlock := c.locks.Lock(sessionID)
	defer unlock()

	next, err = c.store.Update(ctx, sessionID, c.ttl, c.stamped(sessionID, transition))
	if err != nil {
		return nil, classify(err, "update", sessionID)
	}

	span.SetAttributes(
		attribute.String("session.phase", string(next.Phase)),
		attribute.Int("session.player_count", next.PlayerCount),
	)
	log.Debug("会话状态已更新", "session", sessionID, "phase", next.Phase, "players", next.PlayerCount)
	return next, nil
}

// EnsureDefault 返回已有状态；会话不存在时创建默认状态并持久化。
// 会话已存在时不写入，重复调用返回相同状态。
func (c *Coordinator) EnsureDefault(ctx context.Context, sessionID string) (state *game.State, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.ensure_default", sessionID)
	defer func() { endSpan(span, err) }()
	defer c.recoverInto(&err, "ensure_default", sessionID)

	unlock := c.locks.Lock(sessionID)
	defer unlock()

	current, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err, "ensure_default", sessionID)
	}
	if current != nil {
		span.SetAttributes(attribute.Bool("session.created", false))
		return current, nil
	}

	// 其他实例可能已抢先创建，此时原样保留
	state, err = c.store.Update(ctx, sessionID, c.ttl, func(cur *game.State) (*game.State, error) {
		if cur != nil {
			return cur, nil
		}
		return game.NewDefault(sessionID, c.now()), nil
	})
	if err != nil {
		return nil, classify(err, "ensure_default", sessionID)
	}

	span.SetAttributes(attribute.Bool("session.created", true))
	log.Info("创建默认会话", "session", sessionID)
	return state, nil
}

// Get 读取会话状态，不存在时返回 (nil, nil)
func (c *Coordinator) Get(ctx context.Context, sessionID string) (*game.State, error) {
	state, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err, "get", sessionID)
	}
	return state, nil
}

// Delete 删除会话，返回是否存在
func (c *Coordinator) Delete(ctx context.Context, sessionID string) (bool, error) {
	unlock := c.locks.Lock(sessionID)
	defer unlock()

	ok, err := c.store.Delete(ctx, sessionID)
	if err != nil {
		return false, classify(err, "delete", sessionID)
	}
	if ok {
		log.Info("会话已删除", "session", sessionID)
	}
	return ok, nil
}

// Healthy 存储是否可达
func (c *Coordinator) Healthy(ctx context.Context) bool {
	return c.store.HealthCheck(ctx)
}

// TTL 会话过期时间
func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// stamped 包装转换函数：补全 sessionId，盖上 UTC 时间戳，捕获 panic
func (c *Coordinator) stamped(sessionID string, transition game.Transition) storage.UpdateFunc {
	return func(current *game.State) (next *game.State, err error) {
		defer func() {
			if r := recover(); r != nil {
				next, err = nil, fmt.Errorf("transition panicked: %v", r)
			}
		}()

		next, err = transition(current.Clone())
		if err != nil || next == nil {
			return next, err
		}
		next.SessionID = sessionID
		next.LastUpdated = c.now().UTC()
		return next, nil
	}
}

func (c *Coordinator) recoverInto(err *error, op, sessionID string) {
	if r := recover(); r != nil {
		log.Error("会话操作 panic", "op", op, "session", sessionID, "panic", r)
		*err = apperrors.New(apperrors.TransitionFailure, op, sessionID, fmt.Errorf("panic: %v", r))
	}
}

func (c *Coordinator) startSpan(ctx context.Context, name, sessionID string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("session.id", sessionID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// classify 保证返回的错误带类型；未分类的存储错误视为不可用
func classify(err error, op, sessionID string) error {
	var se *apperrors.StateError
	if errors.As(err, &se) {
		return err
	}
	return apperrors.New(apperrors.StoreUnavailable, op, sessionID, err)
}
