package storage

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/palemoky/gamestate/internal/game"
)

// 字段编号
const (
	fieldSessionID     protowire.Number = 1
	fieldCurrentPlayer protowire.Number = 2
	fieldPhase         protowire.Number = 3
	fieldPlayerCount   protowire.Number = 4
	fieldUpdatedSec    protowire.Number = 5
	fieldUpdatedNanos  protowire.Number = 6
)

// ProtoCodec protobuf wire 格式的紧凑二进制编码，时间戳拆成秒 + 纳秒
type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "proto" }

func (ProtoCodec) Marshal(s *game.State) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("nil state")
	}

	ts := s.LastUpdated.UTC()
	b := make([]byte, 0, 64)
	b = appendString(b, fieldSessionID, s.SessionID)
	b = appendString(b, fieldCurrentPlayer, s.CurrentPlayer)
	b = appendString(b, fieldPhase, string(s.Phase))
	b = appendSint(b, fieldPlayerCount, int64(s.PlayerCount))
	b = appendSint(b, fieldUpdatedSec, ts.Unix())
	b = appendSint(b, fieldUpdatedNanos, int64(ts.Nanosecond()))
	return b, nil
}

func (ProtoCodec) Unmarshal(data []byte) (*game.State, error) {
	var (
		s          game.State
		sec, nanos int64
	)

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case typ == protowire.BytesType && num >= fieldSessionID && num <= fieldPhase:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			switch num {
			case fieldSessionID:
				s.SessionID = v
			case fieldCurrentPlayer:
				s.CurrentPlayer = v
			case fieldPhase:
				s.Phase = game.Phase(v)
			}
			n = m

		case typ == protowire.VarintType && num >= fieldPlayerCount && num <= fieldUpdatedNanos:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return nil, protowire.ParseError(m)
			}
			iv := protowire.DecodeZigZag(v)
			switch num {
			case fieldPlayerCount:
				s.PlayerCount = int(iv)
			case fieldUpdatedSec:
				sec = iv
			case fieldUpdatedNanos:
				nanos = iv
			}
			n = m

		default:
			// 跳过未知字段
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
		}
		data = data[n:]
	}

	s.LastUpdated = time.Unix(sec, nanos).UTC()
	if err := validate(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}
