package game

import (
	"fmt"
	"time"
)

// Phase 会话生命周期阶段
type Phase string

const (
	PhaseWaitingForPlayers Phase = "WAITING_FOR_PLAYERS"
	PhaseReadyToStart      Phase = "READY_TO_START"
	PhaseInProgress        Phase = "IN_PROGRESS"
	PhaseEnded             Phase = "ENDED"
)

const (
	// DefaultPlayer 新会话的默认当前玩家
	DefaultPlayer = "player_1"
	// ReadyThreshold 达到该人数后进入 READY_TO_START
	ReadyThreshold = 2
)

// Valid 检查阶段是否属于已知集合
func (p Phase) Valid() bool {
	switch p {
	case PhaseWaitingForPlayers, PhaseReadyToStart, PhaseInProgress, PhaseEnded:
		return true
	}
	return false
}

// ParsePhase 解析阶段字符串
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}

// State 会话状态（唯一持久化的实体）
type State struct {
	SessionID     string    `json:"sessionId"`
	CurrentPlayer string    `json:"currentPlayer"`
	Phase         Phase     `json:"phase"`
	PlayerCount   int       `json:"playerCount"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

// NewDefault 创建默认会话状态：等待玩家，1 人，player_1
func NewDefault(sessionID string, now time.Time) *State {
	return &State{
		SessionID:     sessionID,
		CurrentPlayer: DefaultPlayer,
		Phase:         PhaseWaitingForPlayers,
		PlayerCount:   1,
		LastUpdated:   now.UTC(),
	}
}

// Clone 返回状态副本
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Equal 逐字段比较，时间戳按纳秒精度比较
func (s *State) Equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.SessionID == o.SessionID &&
		s.CurrentPlayer == o.CurrentPlayer &&
		s.Phase == o.Phase &&
		s.PlayerCount == o.PlayerCount &&
		s.LastUpdated.Equal(o.LastUpdated)
}
