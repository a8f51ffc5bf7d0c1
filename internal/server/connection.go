package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
)

// handleWebSocket 处理 WebSocket 连接
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := GetClientIP(r)

	// 维护模式检查（最优先）
	if s.IsMaintenanceMode() {
		log.Info("维护模式，拒绝新连接", "ip", clientIP)
		http.Error(w, "Server is under maintenance, please try again later", http.StatusServiceUnavailable)
		return
	}

	// 连接数限制：信号量在连接关闭时释放
	select {
	case s.semaphore <- struct{}{}:
	default:
		log.Warn("达到最大连接数限制", "max", s.maxConnections, "ip", clientIP)
		http.Error(w, "Server Full", http.StatusServiceUnavailable)
		return
	}
	release := func() { <-s.semaphore }

	if !s.ipFilter.IsAllowed(clientIP) {
		release()
		log.Warn("IP 被过滤器拒绝", "ip", clientIP)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	if !s.originChecker.Check(r) {
		release()
		log.Warn("来源验证失败", "origin", r.Header.Get("Origin"), "ip", clientIP)
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	if !s.rateLimiter.Allow(clientIP) {
		release()
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		log.Warn("WebSocket 升级失败", "err", err)
		return
	}

	client := NewClient(s, conn)
	client.IP = clientIP
	s.registerClient(client)

	client.SendMessage(codec.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		ClientID: client.ID,
	}))
	log.Info("客户端已连接", "client", client.ID, "ip", clientIP)

	// 请求上下文在 handler 返回后即被取消，连接需要独立的生命周期
	ctx := context.WithoutCancel(r.Context())
	go func() {
		defer release()
		client.ReadPump(ctx)
	}()
	go client.WritePump()
}

// handleHealth 健康检查：存储可达时 200，否则 503
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.coordinator.Healthy(r.Context()) {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// testPingResponse /api/test/ping 的响应
type testPingResponse struct {
	Message   string `json:"message"`
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// handleTestPing 连通性测试接口
func (s *Server) handleTestPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, testPingResponse{
		Message:   "pong",
		Status:    "OK",
		Timestamp: time.Now().UnixMilli(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("写入响应失败", "err", err)
	}
}

// registerClient 注册客户端
func (s *Server) registerClient(client *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	s.clients[client.ID] = client
}

// unregisterClient 注销客户端
func (s *Server) unregisterClient(client *Client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, ok := s.clients[client.ID]; ok {
		delete(s.clients, client.ID)
		log.Info("客户端已断开", "client", client.ID)
	}
}

// GetClientByID 按连接 ID 查找客户端
func (s *Server) GetClientByID(id string) *Client {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return s.clients[id]
}
