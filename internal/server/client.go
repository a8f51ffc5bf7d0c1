package server

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/palemoky/gamestate/internal/apperrors"
	"github.com/palemoky/gamestate/internal/logger"
	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时（pong 等待时间）
	pongWait = 60 * time.Second

	// ping 发送间隔（必须小于 pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 消息最大大小
	maxMessageSize = 4096

	// 发送缓冲区大小
	sendBufferSize = 256
)

// Client 代表一个 WebSocket 连接
type Client struct {
	ID string // 连接唯一 ID
	IP string // 客户端 IP 地址

	server *Server
	conn   *websocket.Conn
	send   chan []byte

	mu     sync.RWMutex
	closed bool
}

// NewClient 创建新客户端
func NewClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}
}

// GetID 获取连接 ID
func (c *Client) GetID() string {
	return c.ID
}

// ReadPump 从 WebSocket 读取消息，每条消息交给处理器
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
		}
		c.handleDisconnect()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := c.server.messageLimiter
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("读取错误", "client", c.ID, "err", err)
			}
			return
		}

		allowed, warning := limiter.AllowMessage(c.ID)
		if !allowed {
			log.Warn("客户端消息过于频繁", "client", c.ID, "ip", c.IP)
			c.SendMessage(codec.NewErrorMessageWithText(apperrors.ErrRateLimited.Code, apperrors.ErrRateLimited.Message))
			if limiter.ShouldDisconnect(c.ID) {
				log.Warn("客户端因多次超速被断开", "client", c.ID)
				return
			}
			continue
		}
		if warning {
			c.SendMessage(codec.NewErrorMessageWithText(protocol.ErrCodeRateLimit, "请求过于频繁，请放慢速度"))
		}

		msg, err := codec.Decode(data)
		if err != nil {
			log.Debug("消息解析错误", "client", c.ID, "err", err)
			c.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
			continue
		}

		c.server.handler.Handle(ctx, c, msg)
	}
}

// WritePump 向 WebSocket 写入消息并定时发送 ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端；缓冲区满时断开慢客户端
func (c *Client) SendMessage(msg *protocol.Message) {
	data, err := codec.Encode(msg)
	if err != nil {
		log.Error("消息编码错误", "type", msg.Type, "err", err)
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		log.Warn("客户端发送缓冲区已满，断开连接", "client", c.ID)
		go c.Close()
	}
}

// handleDisconnect 断开后清理订阅和注册信息
func (c *Client) handleDisconnect() {
	c.server.handler.ClientGone(c.ID)
	c.server.messageLimiter.RemoveClient(c.ID)
	c.server.unregisterClient(c)
	c.Close()
}

// Close 关闭发送通道，WritePump 随后关闭连接
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
