package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/palemoky/gamestate/internal/apperrors"
	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
	"github.com/palemoky/gamestate/internal/server/broadcast"
	"github.com/palemoky/gamestate/internal/server/handler"
)

// sessionView 管理接口中的会话详情
type sessionView struct {
	State      *game.State `json:"state"`
	TTLSeconds int64       `json:"ttlSeconds"`
}

type phaseRequest struct {
	Phase string `json:"phase"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// registerAdminRoutes 注册会话管理接口
func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/phase", s.handleForcePhase)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.store.ScanSessionIDs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	state, err := s.coordinator.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if state == nil {
		writeError(w, apperrors.New(apperrors.SessionNotFound, "get", id, nil))
		return
	}

	ttl, err := s.store.TTL(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionView{State: state, TTLSeconds: int64(ttl / time.Second)})
}

// handleForcePhase 强制设置会话阶段，并向订阅者推送更新
func (s *Server) handleForcePhase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req phaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	phase, err := game.ParsePhase(req.Phase)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	state, err := s.coordinator.UpdateState(r.Context(), id, game.ForcePhase(id, phase))
	if err != nil {
		writeError(w, err)
		return
	}

	s.gateway.Publish(r.Context(), broadcast.TopicFor(id), handler.UpdateMessage(state))
	log.Info("管理接口设置阶段", "session", id, "phase", phase)
	writeJSON(w, http.StatusOK, state)
}

// handleDeleteSession 删除会话，并通知订阅者
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	ok, err := s.coordinator.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.New(apperrors.SessionNotFound, "delete", id, nil))
		return
	}

	s.gateway.Publish(r.Context(), broadcast.TopicFor(id), codec.MustNewMessage(protocol.MsgSessionClosed, protocol.SessionClosedPayload{
		SessionID: id,
		Reason:    "deleted",
	}))
	w.WriteHeader(http.StatusNoContent)
}

// writeError 按错误类型映射 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound), errors.Is(err, game.ErrSessionAbsent):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, apperrors.ErrTransitionFailure):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
