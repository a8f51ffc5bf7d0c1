package apperrors

import (
	"errors"
	"fmt"

	"github.com/palemoky/gamestate/internal/protocol"
)

// GameError 协议层错误（带错误码，直接回给客户端）
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// 预定义错误
var (
	ErrInvalidMessage   = &GameError{Code: protocol.ErrCodeInvalidMsg, Message: "无效的消息格式"}
	ErrMissingSessionID = &GameError{Code: protocol.ErrCodeMissingSession, Message: "sessionId 不能为空"}
	ErrRateLimited      = &GameError{Code: protocol.ErrCodeRateLimit, Message: "消息发送过于频繁"}
	ErrMaintenance      = &GameError{Code: protocol.ErrCodeServerMaintenance, Message: "服务器维护中"}
)

// Kind 状态协调错误类型
type Kind int

const (
	// StoreUnavailable 存储 I/O 或连接失败（含超时）
	StoreUnavailable Kind = iota + 1
	// SerializationError 存储的数据无法解析
	SerializationError
	// SessionNotFound 会话不存在（仅对要求会话存在的操作有意义）
	SessionNotFound
	// TransitionFailure 状态转换函数本身失败
	TransitionFailure
)

func (k Kind) String() string {
	switch k {
	case StoreUnavailable:
		return "store unavailable"
	case SerializationError:
		return "serialization error"
	case SessionNotFound:
		return "session not found"
	case TransitionFailure:
		return "transition failure"
	default:
		return "unknown"
	}
}

// StateError 会话状态操作错误
type StateError struct {
	Kind      Kind
	Op        string
	SessionID string
	Err       error
}

func (e *StateError) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session %s)", e.SessionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Is 让 errors.Is(err, &StateError{Kind: k}) 按类型匹配
func (e *StateError) Is(target error) bool {
	t, ok := target.(*StateError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.SessionID == "" && t.Err == nil
}

// 按类型匹配的哨兵值
var (
	ErrStoreUnavailable  = &StateError{Kind: StoreUnavailable}
	ErrSerialization     = &StateError{Kind: SerializationError}
	ErrSessionNotFound   = &StateError{Kind: SessionNotFound}
	ErrTransitionFailure = &StateError{Kind: TransitionFailure}
)

// New 创建状态错误
func New(kind Kind, op, sessionID string, err error) *StateError {
	return &StateError{Kind: kind, Op: op, SessionID: sessionID, Err: err}
}

// IsKind 判断错误链中是否包含指定类型的 StateError
func IsKind(err error, kind Kind) bool {
	var se *StateError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
