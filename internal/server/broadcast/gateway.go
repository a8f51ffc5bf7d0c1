package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
	"github.com/palemoky/gamestate/internal/types"
)

// DefaultChannel 跨实例广播使用的 Redis 频道
const DefaultChannel = "gamestate:fanout"

// relay 跨实例转发的消息
type relay struct {
	Origin  string          `json:"origin"`
	Topic   string          `json:"topic"`
	Message json.RawMessage `json:"message"`
}

// Gateway 消息出口：单播回复、主题广播、服务端主动推送。
// 广播先投递给本实例订阅者，再经 Redis 转发给其他实例；
// 转发失败不影响本地投递。
type Gateway struct {
	hub        *Hub
	rdb        *redis.Client
	channel    string
	instanceID string
	ready      chan struct{}
}

// NewGateway 创建网关。rdb 为 nil 时只做本地投递。
func NewGateway(hub *Hub, rdb *redis.Client, channel string) *Gateway {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Gateway{
		hub:        hub,
		rdb:        rdb,
		channel:    channel,
		instanceID: uuid.NewString(),
		ready:      make(chan struct{}),
	}
}

// Hub 返回本地订阅中心
func (g *Gateway) Hub() *Hub {
	return g.hub
}

// InstanceID 本实例标识
func (g *Gateway) InstanceID() string {
	return g.instanceID
}

// Ready 跨实例订阅建立后关闭
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

// ReplyToCaller 只回复请求方
func (g *Gateway) ReplyToCaller(client types.ClientInterface, msg *protocol.Message) {
	client.SendMessage(msg)
}

// BroadcastToTopic 响应某个请求，向主题全部订阅者广播
func (g *Gateway) BroadcastToTopic(ctx context.Context, topic string, msg *protocol.Message) {
	g.fanout(ctx, topic, msg)
}

// Publish 服务端主动推送（与任何客户端请求无关）
func (g *Gateway) Publish(ctx context.Context, topic string, msg *protocol.Message) {
	n := g.fanout(ctx, topic, msg)
	log.Info("服务端推送", "topic", topic, "type", msg.Type, "local", n)
}

func (g *Gateway) fanout(ctx context.Context, topic string, msg *protocol.Message) int {
	n := g.hub.Deliver(topic, msg)

	if g.rdb != nil {
		if err := g.forward(ctx, topic, msg); err != nil {
			log.Warn("跨实例广播失败，仅本地投递", "topic", topic, "err", err)
		}
	}
	return n
}

func (g *Gateway) forward(ctx context.Context, topic string, msg *protocol.Message) error {
	data, err := codec.Encode(msg)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(relay{Origin: g.instanceID, Topic: topic, Message: data})
	if err != nil {
		return err
	}
	return g.rdb.Publish(ctx, g.channel, payload).Err()
}

// Run 订阅跨实例频道，把其他实例的广播投递给本地订阅者，直到 ctx 结束
func (g *Gateway) Run(ctx context.Context) error {
	if g.rdb == nil {
		close(g.ready)
		<-ctx.Done()
		return nil
	}

	pubsub := g.rdb.Subscribe(ctx, g.channel)
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", g.channel, err)
	}
	close(g.ready)
	log.Info("跨实例广播已订阅", "channel", g.channel, "instance", g.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			g.relayLocal(m.Payload)
		}
	}
}

func (g *Gateway) relayLocal(payload string) {
	var r relay
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		log.Warn("忽略无法解析的跨实例消息", "err", err)
		return
	}
	if r.Origin == g.instanceID {
		return
	}

	msg, err := codec.Decode(r.Message)
	if err != nil {
		log.Warn("忽略无法解析的跨实例消息", "err", err)
		return
	}
	g.hub.Deliver(r.Topic, msg)
}
