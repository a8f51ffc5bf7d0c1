package handler

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/palemoky/gamestate/internal/apperrors"
	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
	"github.com/palemoky/gamestate/internal/server/broadcast"
	"github.com/palemoky/gamestate/internal/types"
)

// 回复信封中的提示文本
const (
	msgGetStateOK     = "Game state retrieved successfully"
	msgGetStateFailed = "Failed to retrieve game state"
	msgJoinOK         = "Successfully joined game"
	msgJoinFailed     = "Failed to join game"
	msgLeaveOK        = "Successfully left game"
	msgLeaveFailed    = "Failed to leave game"

	// MsgStateUpdated 服务端主动推送的提示文本
	MsgStateUpdated = "Game state updated"
)

// handleGetState 返回会话状态，会话不存在时创建默认状态。只回复请求方。
func (h *Handler) handleGetState(ctx context.Context, client types.ClientInterface, msg *protocol.Message) {
	sessionID, ok := parseSessionID(client, msg)
	if !ok {
		return
	}

	state, err := h.coord.EnsureDefault(ctx, sessionID)
	if err != nil {
		log.Error("获取会话状态失败", "session", sessionID, "err", err)
		h.gateway.ReplyToCaller(client, failure(protocol.MsgGameState, msgGetStateFailed, err.Error()))
		return
	}

	h.gateway.ReplyToCaller(client, success(protocol.MsgGameState, state, msgGetStateOK))
}

// handleJoinGame 玩家加入，结果广播到会话主题。维护模式下直接拒绝；否则请求方先被订阅，保证能收到广播。
func (h *Handler) handleJoinGame(ctx context.Context, client types.ClientInterface, msg *protocol.Message) {
	sessionID, ok := parseSessionID(client, msg)
	if !ok {
		return
	}

	if h.server != nil && h.server.IsMaintenanceMode() {
		h.gateway.ReplyToCaller(client, failure(protocol.MsgGameUpdate, msgJoinFailed, apperrors.ErrMaintenance.Message))
		return
	}
	h.hub.Subscribe(broadcast.TopicFor(sessionID), client)

	log.Info("玩家加入会话", "session", sessionID, "client", client.GetID())
	h.applyAndBroadcast(ctx, client, sessionID, game.Join(sessionID), msgJoinOK, msgJoinFailed)
}

// handleLeaveGame 玩家离开，结果广播到会话主题。请求方保持订阅，需显式 unsubscribe。
func (h *Handler) handleLeaveGame(ctx context.Context, client types.ClientInterface, msg *protocol.Message) {
	sessionID, ok := parseSessionID(client, msg)
	if !ok {
		return
	}

	log.Info("玩家离开会话", "session", sessionID, "client", client.GetID())
	h.applyAndBroadcast(ctx, client, sessionID, game.Leave(sessionID), msgLeaveOK, msgLeaveFailed)
}

// applyAndBroadcast 执行状态转换并广播结果（成功或失败）
func (h *Handler) applyAndBroadcast(ctx context.Context, client types.ClientInterface, sessionID string, t game.Transition, okText, failText string) {
	var reply *protocol.Message
	state, err := h.coord.UpdateState(ctx, sessionID, t)
	if err != nil {
		log.Error("会话状态更新失败", "session", sessionID, "err", err)
		reply = failure(protocol.MsgGameUpdate, failText, err.Error())
	} else {
		reply = success(protocol.MsgGameUpdate, state, okText)
	}
	h.deliverUpdate(ctx, client, sessionID, reply)
}

// deliverUpdate 广播到会话主题，请求方未订阅时先单播
func (h *Handler) deliverUpdate(ctx context.Context, client types.ClientInterface, sessionID string, reply *protocol.Message) {
	topic := broadcast.TopicFor(sessionID)
	if !h.hub.IsSubscribed(topic, client.GetID()) {
		h.gateway.ReplyToCaller(client, reply)
	}
	h.gateway.BroadcastToTopic(ctx, topic, reply)
}

// parseSessionID 解析并校验 sessionId，失败时已回复错误消息
func parseSessionID(client types.ClientInterface, msg *protocol.Message) (string, bool) {
	req, err := codec.ParsePayload[protocol.SessionRequest](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(apperrors.ErrInvalidMessage.Code))
		return "", false
	}
	if req.SessionID == "" {
		client.SendMessage(codec.NewErrorMessage(apperrors.ErrMissingSessionID.Code))
		return "", false
	}
	return req.SessionID, true
}

func success(msgType protocol.MessageType, state *game.State, text string) *protocol.Message {
	return codec.NewEnvelopeMessage(msgType, protocol.StateEnvelope{
		Success: true,
		State:   state,
		Message: text,
	})
}

func failure(msgType protocol.MessageType, prefix, reason string) *protocol.Message {
	return codec.NewEnvelopeMessage(msgType, protocol.StateEnvelope{
		Success: false,
		Message: prefix + ": " + reason,
	})
}

// UpdateMessage 服务端主动推送的状态更新消息
func UpdateMessage(state *game.State) *protocol.Message {
	return success(protocol.MsgGameUpdate, state, MsgStateUpdated)
}
