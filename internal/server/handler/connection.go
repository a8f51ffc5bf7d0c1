package handler

import (
	"context"
	"time"

	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
	"github.com/palemoky/gamestate/internal/server/broadcast"
	"github.com/palemoky/gamestate/internal/types"
)

// handlePing 处理心跳消息
func (h *Handler) handlePing(_ context.Context, client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.PingPayload](msg)
	if err != nil {
		return
	}

	// 立即回复 pong
	client.SendMessage(codec.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
		ClientTimestamp: payload.Timestamp,
		ServerTimestamp: time.Now().UnixMilli(),
	}))
}

// handleSubscribe 订阅会话更新（观战者无需加入即可接收广播）
func (h *Handler) handleSubscribe(_ context.Context, client types.ClientInterface, msg *protocol.Message) {
	sessionID, ok := parseSessionID(client, msg)
	if !ok {
		return
	}

	topic := broadcast.TopicFor(sessionID)
	h.hub.Subscribe(topic, client)
	client.SendMessage(codec.MustNewMessage(protocol.MsgSubscribed, protocol.SubscribedPayload{
		SessionID:  sessionID,
		Topic:      topic,
		Subscribed: true,
	}))
}

// handleUnsubscribe 取消订阅
func (h *Handler) handleUnsubscribe(_ context.Context, client types.ClientInterface, msg *protocol.Message) {
	sessionID, ok := parseSessionID(client, msg)
	if !ok {
		return
	}

	topic := broadcast.TopicFor(sessionID)
	h.hub.Unsubscribe(topic, client.GetID())
	client.SendMessage(codec.MustNewMessage(protocol.MsgSubscribed, protocol.SubscribedPayload{
		SessionID:  sessionID,
		Topic:      topic,
		Subscribed: false,
	}))
}
