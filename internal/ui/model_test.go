package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
)

type fakeClient struct {
	connectErr error
	calls      []string
	sendErr    error
	heartbeat  bool
}

func (f *fakeClient) Connect(context.Context) error { return f.connectErr }
func (f *fakeClient) Receive() (*protocol.Message, error) {
	return nil, errors.New("not used")
}
func (f *fakeClient) ClientID() string { return "client-1" }
func (f *fakeClient) Latency() int64   { return 12 }
func (f *fakeClient) StartHeartbeat()  { f.heartbeat = true }
func (f *fakeClient) Close()           {}

func (f *fakeClient) record(op string) func(string) error {
	return func(id string) error {
		f.calls = append(f.calls, op+":"+id)
		return f.sendErr
	}
}

func (f *fakeClient) GetState(id string) error    { return f.record("get")(id) }
func (f *fakeClient) Join(id string) error        { return f.record("join")(id) }
func (f *fakeClient) Leave(id string) error       { return f.record("leave")(id) }
func (f *fakeClient) Subscribe(id string) error   { return f.record("sub")(id) }
func (f *fakeClient) Unsubscribe(id string) error { return f.record("unsub")(id) }

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func connected(t *testing.T, sessionID string) (*Model, *fakeClient) {
	t.Helper()
	fc := &fakeClient{}
	m := NewModel(fc, sessionID)
	_, cmd := m.Update(ConnectedMsg{})
	require.NotNil(t, cmd)
	require.Equal(t, PhaseReady, m.phase)
	return m, fc
}

func envelopeMsg(t *testing.T, typ protocol.MessageType, env protocol.StateEnvelope) ServerMessage {
	t.Helper()
	return ServerMessage{Msg: codec.NewEnvelopeMessage(typ, env)}
}

func TestModel_ConnectSubscribesInitialSession(t *testing.T) {
	m, fc := connected(t, "s1")

	assert.True(t, fc.heartbeat)
	assert.Equal(t, []string{"sub:s1"}, fc.calls)
	assert.Equal(t, "s1", m.sessionID)
	assert.False(t, m.input.Focused())
}

func TestModel_KeysSendRequests(t *testing.T) {
	m, fc := connected(t, "s1")

	m.Update(runeKey('g'))
	m.Update(runeKey('j'))
	m.Update(runeKey('l'))

	assert.Equal(t, []string{"sub:s1", "get:s1", "join:s1", "leave:s1"}, fc.calls)
	assert.Empty(t, m.err)
}

func TestModel_KeysWithoutSession(t *testing.T) {
	m, fc := connected(t, "")

	assert.True(t, m.input.Focused())
	// 输入框聚焦时字母进入输入框
	m.Update(runeKey('j'))
	assert.Equal(t, "j", m.input.Value())
	assert.Empty(t, fc.calls)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "j", m.sessionID)
	assert.Equal(t, []string{"sub:j"}, fc.calls)

	m.Update(runeKey('j'))
	assert.Equal(t, []string{"sub:j", "join:j"}, fc.calls)
}

func TestModel_SwitchSession(t *testing.T) {
	m, fc := connected(t, "s1")

	m.Update(runeKey('e'))
	require.True(t, m.input.Focused())
	m.input.SetValue("s2")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, "s2", m.sessionID)
	assert.Equal(t, []string{"sub:s1", "unsub:s1", "sub:s2"}, fc.calls)
}

func TestModel_SendErrorShown(t *testing.T) {
	m, fc := connected(t, "s1")
	fc.sendErr = errors.New("connection closed")

	m.Update(runeKey('j'))
	assert.Contains(t, m.err, "connection closed")
}

func TestModel_StateUpdates(t *testing.T) {
	m, _ := connected(t, "s1")
	m.Update(ServerMessage{Msg: codec.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{ClientID: "client-1"})})

	state := &game.State{
		SessionID:     "s1",
		CurrentPlayer: game.DefaultPlayer,
		Phase:         game.PhaseReadyToStart,
		PlayerCount:   2,
		LastUpdated:   time.Now().UTC(),
	}
	_, cmd := m.Update(envelopeMsg(t, protocol.MsgGameUpdate, protocol.StateEnvelope{
		Success: true, State: state, Message: "Successfully joined game",
	}))
	assert.NotNil(t, cmd, "keeps listening")
	require.NotNil(t, m.state)
	assert.Equal(t, 2, m.state.PlayerCount)
	require.Len(t, m.events, 1)
	assert.Contains(t, m.events[0], "Successfully joined game")

	// 其他会话的状态不覆盖当前显示
	other := state.Clone()
	other.SessionID = "s9"
	other.PlayerCount = 9
	m.Update(envelopeMsg(t, protocol.MsgGameUpdate, protocol.StateEnvelope{Success: true, State: other}))
	assert.Equal(t, 2, m.state.PlayerCount)

	view := m.View()
	assert.Contains(t, view, "READY_TO_START")
	assert.Contains(t, view, "client-1")
}

func TestModel_FailureEnvelope(t *testing.T) {
	m, _ := connected(t, "s1")

	m.Update(envelopeMsg(t, protocol.MsgGameState, protocol.StateEnvelope{
		Success: false, Message: "Failed to retrieve game state: store unavailable",
	}))
	assert.Nil(t, m.state)
	require.Len(t, m.events, 1)
	assert.Contains(t, m.events[0], "Failed to retrieve game state")
}

func TestModel_SessionClosed(t *testing.T) {
	m, _ := connected(t, "s1")
	m.state = game.NewDefault("s1", time.Now())

	m.Update(ServerMessage{Msg: codec.MustNewMessage(protocol.MsgSessionClosed, protocol.SessionClosedPayload{
		SessionID: "s1", Reason: "deleted",
	})})
	assert.Nil(t, m.state)
	assert.Contains(t, m.events[len(m.events)-1], "deleted")
}

func TestModel_ErrorMessage(t *testing.T) {
	m, _ := connected(t, "s1")

	m.Update(ServerMessage{Msg: codec.NewErrorMessage(protocol.ErrCodeMissingSession)})
	assert.Contains(t, m.err, "2001")
}

func TestModel_EventsAreBounded(t *testing.T) {
	m, _ := connected(t, "s1")
	for i := 0; i < maxEvents+5; i++ {
		m.Update(envelopeMsg(t, protocol.MsgGameUpdate, protocol.StateEnvelope{Success: true, Message: "x"}))
	}
	assert.Len(t, m.events, maxEvents)
}

func TestModel_ConnectionError(t *testing.T) {
	fc := &fakeClient{connectErr: errors.New("refused")}
	m := NewModel(fc, "s1")

	msg := m.connectToServer()()
	m.Update(msg)
	assert.Equal(t, PhaseConnecting, m.phase)
	assert.Contains(t, m.err, "refused")
	assert.Contains(t, m.View(), "正在连接")

	m.Update(ConnectedMsg{})
	m.Update(ConnectionErrorMsg{Err: errors.New("closed")})
	assert.Equal(t, PhaseDisconnected, m.phase)
}

func TestModel_Quit(t *testing.T) {
	m, _ := connected(t, "s1")

	_, cmd := m.Update(runeKey('q'))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
