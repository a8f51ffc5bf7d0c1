package server

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/charmbracelet/log"

	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
)

// monitorStats 定期记录服务器状态并清理限流记录，直到 ctx 结束
func (s *Server) monitorStats(ctx context.Context) {
	ticker := time.NewTicker(s.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		log.Info("监控",
			"online", s.GetOnlineCount(),
			"goroutines", runtime.NumGoroutine(),
			"active_conns", len(s.semaphore),
			"max_conns", s.maxConnections,
			"topics", s.gateway.Hub().TopicCount(),
			"mem_mb", float64(m.Alloc)/1024/1024,
		)

		if n := s.rateLimiter.Cleanup(); n > 0 {
			log.Debug("清理限流记录", "count", n)
		}
	}
}

// EnterMaintenanceMode 进入维护模式：拒绝新连接和新加入，并通知所有连接
func (s *Server) EnterMaintenanceMode() {
	s.maintenanceMu.Lock()
	s.maintenanceMode = true
	s.maintenanceMu.Unlock()

	s.BroadcastAll(codec.MustNewMessage(protocol.MsgMaintenancePush, protocol.MaintenancePayload{
		Maintenance: true,
		Message:     "服务器维护中，暂停新的连接和加入",
	}))
	log.Info("进入维护模式")
}

// IsMaintenanceMode 检查是否在维护模式
func (s *Server) IsMaintenanceMode() bool {
	s.maintenanceMu.RLock()
	defer s.maintenanceMu.RUnlock()
	return s.maintenanceMode
}

// Shutdown 停止接受连接、关闭所有客户端并关闭 Redis
func (s *Server) Shutdown(ctx context.Context, srv *http.Server) error {
	s.EnterMaintenanceMode()

	err := srv.Shutdown(ctx)

	// WebSocket 连接已被劫持，需要单独关闭
	s.clientsMu.Lock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clientsMu.Unlock()

	if cerr := s.redis.Close(); cerr != nil && err == nil {
		err = cerr
	}

	log.Info("服务器已关闭")
	return err
}
