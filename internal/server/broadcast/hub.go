package broadcast

import (
	"sync"

	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/types"
)

const topicPrefix = "topic:session:"

// TopicFor 返回会话的广播主题，每个会话独立
func TopicFor(sessionID string) string {
	return topicPrefix + sessionID
}

// Hub 本实例内的 主题 -> 订阅客户端 映射
type Hub struct {
	mu       sync.RWMutex
	topics   map[string]map[string]types.ClientInterface
	byClient map[string]map[string]struct{}
}

// NewHub 创建订阅中心
func NewHub() *Hub {
	return &Hub{
		topics:   make(map[string]map[string]types.ClientInterface),
		byClient: make(map[string]map[string]struct{}),
	}
}

// Subscribe 订阅主题，返回是否为新订阅
func (h *Hub) Subscribe(topic string, client types.ClientInterface) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.GetID()
	subs, ok := h.topics[topic]
	if !ok {
		subs = make(map[string]types.ClientInterface)
		h.topics[topic] = subs
	}
	if _, exists := subs[id]; exists {
		return false
	}
	subs[id] = client

	joined, ok := h.byClient[id]
	if !ok {
		joined = make(map[string]struct{})
		h.byClient[id] = joined
	}
	joined[topic] = struct{}{}
	return true
}

// Unsubscribe 取消订阅，返回之前是否已订阅
func (h *Hub) Unsubscribe(topic, clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(topic, clientID)
}

// UnsubscribeAll 断开连接时移除客户端的全部订阅，返回被移除的主题
func (h *Hub) UnsubscribeAll(clientID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []string
	for topic := range h.byClient[clientID] {
		if h.removeLocked(topic, clientID) {
			removed = append(removed, topic)
		}
	}
	return removed
}

func (h *Hub) removeLocked(topic, clientID string) bool {
	subs, ok := h.topics[topic]
	if !ok {
		return false
	}
	if _, ok := subs[clientID]; !ok {
		return false
	}

	delete(subs, clientID)
	if len(subs) == 0 {
		delete(h.topics, topic)
	}
	if joined, ok := h.byClient[clientID]; ok {
		delete(joined, topic)
		if len(joined) == 0 {
			delete(h.byClient, clientID)
		}
	}
	return true
}

// IsSubscribed 客户端是否订阅了主题
func (h *Hub) IsSubscribed(topic, clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[topic][clientID]
	return ok
}

// Subscribers 返回主题当前订阅者快照
func (h *Hub) Subscribers(topic string) []types.ClientInterface {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subs := h.topics[topic]
	out := make([]types.ClientInterface, 0, len(subs))
	for _, c := range subs {
		out = append(out, c)
	}
	return out
}

// TopicCount 有订阅者的主题数量
func (h *Hub) TopicCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// Deliver 把消息投递给本实例内的订阅者，返回投递数量。
// 发送在锁外进行，慢客户端不会阻塞订阅变更。
func (h *Hub) Deliver(topic string, msg *protocol.Message) int {
	subs := h.Subscribers(topic)
	for _, c := range subs {
		c.SendMessage(msg)
	}
	return len(subs)
}
