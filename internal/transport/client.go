package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// 心跳检测间隔
	heartbeatInterval = 5 * time.Second
	// 最大连接尝试次数
	maxDialAttempts = 5
	// 连接重试间隔
	dialInterval = 2 * time.Second

	bufferSize = 256
)

var (
	// ErrClosed 连接已关闭
	ErrClosed = errors.New("connection closed")
	// ErrSendBufferFull 发送缓冲区已满
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrReceiveTimeout 接收超时
	ErrReceiveTimeout = errors.New("receive timeout")
)

// Client WebSocket 客户端
type Client struct {
	ServerURL string
	conn      *websocket.Conn
	send      chan []byte
	receive   chan *protocol.Message
	done      chan struct{}

	clientID atomic.Value // string，由 connected 消息设置
	latency  atomic.Int64 // 网络延迟（毫秒）

	// 回调，需在 Connect 之前设置
	OnMessage       func(*protocol.Message) // 消息回调
	OnError         func(error)             // 错误回调
	OnClose         func()                  // 关闭回调
	OnLatencyUpdate func(int64)             // 延迟更新回调

	DialAttempts uint64
	DialInterval time.Duration

	mu     sync.RWMutex
	closed bool
}

// NewClient 创建客户端，serverURL 形如 ws://host:port/ws
func NewClient(serverURL string) *Client {
	return &Client{
		ServerURL:    serverURL,
		send:         make(chan []byte, bufferSize),
		receive:      make(chan *protocol.Message, bufferSize),
		done:         make(chan struct{}),
		DialAttempts: maxDialAttempts,
		DialInterval: dialInterval,
	}
}

// Connect 连接服务器，失败时按固定间隔重试
func (c *Client) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	var attempt int
	dial := func() error {
		attempt++
		conn, resp, err := dialer.DialContext(ctx, c.ServerURL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			log.Debug("连接失败", "url", c.ServerURL, "attempt", attempt, "err", err)
			return err
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.DialInterval), max(c.DialAttempts, 1)-1),
		ctx,
	)
	if err := backoff.Retry(dial, b); err != nil {
		return err
	}

	// 启动读写协程
	go c.readPump()
	go c.writePump()
	return nil
}

// ClientID 服务端分配的连接 ID，收到 connected 前为空
func (c *Client) ClientID() string {
	id, _ := c.clientID.Load().(string)
	return id
}

// Latency 最近一次 ping 的往返延迟（毫秒）
func (c *Client) Latency() int64 {
	return c.latency.Load()
}

// SendMessage 发送消息
func (c *Client) SendMessage(msg *protocol.Message) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	data, err := codec.Encode(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Receive 接收消息（阻塞）
func (c *Client) Receive() (*protocol.Message, error) {
	select {
	case msg := <-c.receive:
		return msg, nil
	case <-c.done:
		return nil, ErrClosed
	}
}

// ReceiveWithTimeout 带超时接收消息
func (c *Client) ReceiveWithTimeout(timeout time.Duration) (*protocol.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-c.receive:
		return msg, nil
	case <-timer.C:
		return nil, ErrReceiveTimeout
	case <-c.done:
		return nil, ErrClosed
	}
}

// Messages 接收通道，供事件循环直接消费
func (c *Client) Messages() <-chan *protocol.Message {
	return c.receive
}

// Done 连接关闭后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close 关闭连接。写协程收到 done 后发送关闭帧并关闭底层连接。
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

// IsConnected 是否已连接
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.conn != nil
}

// --- 便捷方法 ---

func (c *Client) sendSession(msgType protocol.MessageType, sessionID string) error {
	return c.SendMessage(codec.MustNewMessage(msgType, protocol.SessionRequest{SessionID: sessionID}))
}

// GetState 获取会话状态
func (c *Client) GetState(sessionID string) error {
	return c.sendSession(protocol.MsgGetState, sessionID)
}

// Join 加入会话
func (c *Client) Join(sessionID string) error {
	return c.sendSession(protocol.MsgJoinGame, sessionID)
}

// Leave 离开会话
func (c *Client) Leave(sessionID string) error {
	return c.sendSession(protocol.MsgLeaveGame, sessionID)
}

// Subscribe 订阅会话更新
func (c *Client) Subscribe(sessionID string) error {
	return c.sendSession(protocol.MsgSubscribe, sessionID)
}

// Unsubscribe 取消订阅
func (c *Client) Unsubscribe(sessionID string) error {
	return c.sendSession(protocol.MsgUnsubscribe, sessionID)
}

// Ping 发送心跳
func (c *Client) Ping() error {
	return c.SendMessage(codec.MustNewMessage(protocol.MsgPing, protocol.PingPayload{
		Timestamp: time.Now().UnixMilli(),
	}))
}

// StartHeartbeat 启动心跳检测
func (c *Client) StartHeartbeat() {
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if c.IsConnected() {
					_ = c.Ping()
				}
			case <-c.done:
				return
			}
		}
	}()
}
