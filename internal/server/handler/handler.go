package handler

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
	"github.com/palemoky/gamestate/internal/server/broadcast"
	"github.com/palemoky/gamestate/internal/types"
)

// StateCoordinator 处理器依赖的会话状态操作
type StateCoordinator interface {
	UpdateState(ctx context.Context, sessionID string, transition game.Transition) (*game.State, error)
	EnsureDefault(ctx context.Context, sessionID string) (*game.State, error)
}

// HandlerDeps 处理器依赖
type HandlerDeps struct {
	Server      types.ServerInterface
	Coordinator StateCoordinator
	Gateway     *broadcast.Gateway
}

// Handler 消息处理器
type Handler struct {
	server   types.ServerInterface
	coord    StateCoordinator
	gateway  *broadcast.Gateway
	hub      *broadcast.Hub
	handlers map[protocol.MessageType]handlerFunc
}

// handlerFunc 统一的处理器函数签名
type handlerFunc func(ctx context.Context, client types.ClientInterface, msg *protocol.Message)

// NewHandler 创建处理器
func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		server:  deps.Server,
		coord:   deps.Coordinator,
		gateway: deps.Gateway,
		hub:     deps.Gateway.Hub(),
	}
	h.initHandlers()
	return h
}

// initHandlers 初始化消息处理器映射
func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		// 连接操作
		protocol.MsgPing: h.handlePing,

		// 会话状态操作
		protocol.MsgGetState:  h.handleGetState,
		protocol.MsgJoinGame:  h.handleJoinGame,
		protocol.MsgLeaveGame: h.handleLeaveGame,

		// 订阅
		protocol.MsgSubscribe:   h.handleSubscribe,
		protocol.MsgUnsubscribe: h.handleUnsubscribe,
	}
}

// Handle 处理消息。处理过程中的 panic 会被转为失败回复，不会影响连接。
func (h *Handler) Handle(ctx context.Context, client types.ClientInterface, msg *protocol.Message) {
	handler, ok := h.handlers[msg.Type]
	if !ok {
		log.Warn("未知消息类型", "type", msg.Type, "client", client.GetID(), "payload_bytes", len(msg.Payload))
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("处理消息 panic", "type", msg.Type, "client", client.GetID(), "panic", r)
			h.replyPanic(ctx, client, msg, r)
		}
	}()
	handler(ctx, client, msg)
}

// ClientGone 连接断开时清理订阅
func (h *Handler) ClientGone(clientID string) {
	if topics := h.hub.UnsubscribeAll(clientID); len(topics) > 0 {
		log.Debug("清理订阅", "client", clientID, "topics", len(topics))
	}
}

// replyPanic 会话操作按正常路径回复失败信封，其余回复错误消息。
// join/leave 能解析出 sessionId 时广播到会话主题，否则只回复请求方。
func (h *Handler) replyPanic(ctx context.Context, client types.ClientInterface, msg *protocol.Message, r any) {
	defer func() {
		if r2 := recover(); r2 != nil {
			log.Error("回复失败信封时 panic", "type", msg.Type, "client", client.GetID(), "panic", r2)
		}
	}()

	reason := fmt.Sprintf("internal error: %v", r)
	var reply *protocol.Message
	switch msg.Type {
	case protocol.MsgGetState:
		h.gateway.ReplyToCaller(client, failure(protocol.MsgGameState, msgGetStateFailed, reason))
		return
	case protocol.MsgJoinGame:
		reply = failure(protocol.MsgGameUpdate, msgJoinFailed, reason)
	case protocol.MsgLeaveGame:
		reply = failure(protocol.MsgGameUpdate, msgLeaveFailed, reason)
	default:
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeUnknown))
		return
	}

	req, err := codec.ParsePayload[protocol.SessionRequest](msg)
	if err != nil || req.SessionID == "" {
		h.gateway.ReplyToCaller(client, reply)
		return
	}
	h.deliverUpdate(ctx, client, req.SessionID, reply)
}
