package game

import "errors"

// ErrSessionAbsent 转换要求会话已存在
var ErrSessionAbsent = errors.New("session does not exist")

// Transition 状态转换函数。current 为 nil 表示会话尚不存在。
// 返回的新状态不带 LastUpdated，由写入方盖时间戳。
type Transition func(current *State) (*State, error)

// Join 玩家加入：人数 +1，达到阈值后 READY_TO_START
func Join(sessionID string) Transition {
	return func(current *State) (*State, error) {
		count := 1
		player := DefaultPlayer
		if current != nil {
			count = current.PlayerCount + 1
			player = currentPlayerOf(current)
		}

		phase := PhaseWaitingForPlayers
		if count >= ReadyThreshold {
			phase = PhaseReadyToStart
		}

		return &State{
			SessionID:     sessionID,
			CurrentPlayer: player,
			Phase:         phase,
			PlayerCount:   count,
		}, nil
	}
}

// Leave 玩家离开：人数 -1（不低于 0），归零时 ENDED
func Leave(sessionID string) Transition {
	return func(current *State) (*State, error) {
		count := 0
		player := DefaultPlayer
		if current != nil {
			count = max(0, current.PlayerCount-1)
			player = currentPlayerOf(current)
		}

		phase := PhaseWaitingForPlayers
		if count == 0 {
			phase = PhaseEnded
		}

		return &State{
			SessionID:     sessionID,
			CurrentPlayer: player,
			Phase:         phase,
			PlayerCount:   count,
		}, nil
	}
}

// ForcePhase 由服务端强制设置阶段（如外部计时器结束会话），人数保持不变
func ForcePhase(sessionID string, phase Phase) Transition {
	return func(current *State) (*State, error) {
		if current == nil {
			return nil, ErrSessionAbsent
		}
		if !phase.Valid() {
			return nil, errors.New("invalid phase: " + string(phase))
		}
		next := current.Clone()
		next.SessionID = sessionID
		next.Phase = phase
		return next, nil
	}
}

func currentPlayerOf(s *State) string {
	if s.CurrentPlayer == "" {
		return DefaultPlayer
	}
	return s.CurrentPlayer
}
