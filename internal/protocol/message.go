package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	// 连接操作
	MsgPing MessageType = "ping" // 心跳 ping

	// 会话状态操作
	MsgGetState  MessageType = "get_state"  // 获取会话状态（单播回复）
	MsgJoinGame  MessageType = "join_game"  // 加入会话（广播）
	MsgLeaveGame MessageType = "leave_game" // 离开会话（广播）

	// 订阅
	MsgSubscribe   MessageType = "subscribe"   // 订阅会话更新
	MsgUnsubscribe MessageType = "unsubscribe" // 取消订阅
)

// 服务端 → 客户端 消息类型
const (
	// 连接相关
	MsgConnected MessageType = "connected" // 连接成功
	MsgPong      MessageType = "pong"      // 心跳 pong

	// 会话状态
	MsgGameState     MessageType = "game_state"     // get_state 的单播回复
	MsgGameUpdate    MessageType = "game_update"    // 会话主题上的广播
	MsgSubscribed    MessageType = "subscribed"     // 订阅/取消订阅确认
	MsgSessionClosed MessageType = "session_closed" // 会话被服务端删除

	// 系统通知
	MsgMaintenancePush MessageType = "maintenance_push" // 维护通知

	// 错误
	MsgError MessageType = "error" // 错误消息
)
