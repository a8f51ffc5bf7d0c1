package protocol

import "github.com/palemoky/gamestate/internal/game"

// --- 客户端请求 Payloads ---

// SessionRequest get_state / join_game / leave_game / subscribe / unsubscribe 请求
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端时间戳（毫秒）
}

// --- 服务端响应 Payloads ---

// ConnectedPayload 连接成功响应
type ConnectedPayload struct {
	ClientID string `json:"clientId"`
}

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"` // 客户端发送的时间戳
	ServerTimestamp int64 `json:"server_timestamp"` // 服务器时间戳（毫秒）
}

// StateEnvelope 会话状态操作的统一回复
type StateEnvelope struct {
	Success bool        `json:"success"`
	State   *game.State `json:"state"`
	Message string      `json:"message"`
}

// SubscribedPayload 订阅确认
type SubscribedPayload struct {
	SessionID  string `json:"sessionId"`
	Topic      string `json:"topic"`
	Subscribed bool   `json:"subscribed"`
}

// SessionClosedPayload 会话被删除通知
type SessionClosedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// MaintenancePayload 维护通知
type MaintenancePayload struct {
	Maintenance bool   `json:"maintenance"`
	Message     string `json:"message"`
}

// ErrorPayload 错误响应
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
