package storage

import (
	"encoding/json"
	"fmt"

	"github.com/palemoky/gamestate/internal/game"
)

// Codec 会话状态序列化方式
type Codec interface {
	Name() string
	Marshal(s *game.State) ([]byte, error)
	Unmarshal(data []byte) (*game.State, error)
}

// NewCodec 按名称创建编解码器：json（默认）或 proto
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec JSON 编码，时间戳为 RFC3339Nano（UTC）
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(s *game.State) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("nil state")
	}
	c := *s
	c.LastUpdated = c.LastUpdated.UTC()
	return json.Marshal(&c)
}

func (JSONCodec) Unmarshal(data []byte) (*game.State, error) {
	var s game.State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if err := validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// validate 拒绝与当前模型不兼容的记录
func validate(s *game.State) error {
	if s.SessionID == "" {
		return fmt.Errorf("stored state has no sessionId")
	}
	if !s.Phase.Valid() {
		return fmt.Errorf("stored state has unknown phase %q", s.Phase)
	}
	if s.PlayerCount < 0 {
		return fmt.Errorf("stored state has negative playerCount %d", s.PlayerCount)
	}
	return nil
}
