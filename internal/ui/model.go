// Package ui 会话状态终端客户端
package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/palemoky/gamestate/internal/game"
	"github.com/palemoky/gamestate/internal/protocol"
	"github.com/palemoky/gamestate/internal/protocol/codec"
)

// 最多保留的事件条数
const maxEvents = 8

// SessionClient 终端客户端依赖的连接能力，由 transport.Client 实现
type SessionClient interface {
	Connect(ctx context.Context) error
	Receive() (*protocol.Message, error)
	ClientID() string
	Latency() int64
	StartHeartbeat()
	GetState(sessionID string) error
	Join(sessionID string) error
	Leave(sessionID string) error
	Subscribe(sessionID string) error
	Unsubscribe(sessionID string) error
	Close()
}

// Phase 界面阶段
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseReady
	PhaseDisconnected
)

// ServerMessage 服务器消息（用于 tea.Msg）
type ServerMessage struct {
	Msg *protocol.Message
}

// ConnectedMsg 连接成功消息
type ConnectedMsg struct{}

// ConnectionErrorMsg 连接错误消息
type ConnectionErrorMsg struct {
	Err error
}

// Model 会话面板
type Model struct {
	client SessionClient
	phase  Phase
	keys   keyMap
	help   help.Model
	input  textinput.Model

	sessionID string
	state     *game.State
	events    []string
	err       string
	clientID  string
	width     int
}

// NewModel 创建会话面板，sessionID 可为空
func NewModel(c SessionClient, sessionID string) *Model {
	ti := textinput.New()
	ti.Placeholder = "输入会话 ID..."
	ti.CharLimit = 64
	ti.Width = 30
	ti.SetValue(sessionID)

	m := &Model{
		client: c,
		phase:  PhaseConnecting,
		keys:   newKeyMap(),
		help:   help.New(),
		input:  ti,
	}
	if sessionID == "" {
		m.input.Focus()
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.connectToServer(), textinput.Blink)
}

// connectToServer 连接服务器
func (m *Model) connectToServer() tea.Cmd {
	return func() tea.Msg {
		if err := m.client.Connect(context.Background()); err != nil {
			return ConnectionErrorMsg{Err: err}
		}
		return ConnectedMsg{}
	}
}

// listenForMessages 监听服务器消息
func (m *Model) listenForMessages() tea.Cmd {
	return func() tea.Msg {
		msg, err := m.client.Receive()
		if err != nil {
			return ConnectionErrorMsg{Err: err}
		}
		return ServerMessage{Msg: msg}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case ConnectedMsg:
		m.phase = PhaseReady
		m.err = ""
		m.client.StartHeartbeat()
		cmds := []tea.Cmd{m.listenForMessages()}
		if m.sessionID == "" && m.input.Value() != "" {
			cmds = append(cmds, m.watch(m.input.Value()))
		}
		return m, tea.Batch(cmds...)

	case ConnectionErrorMsg:
		if m.phase == PhaseReady {
			m.phase = PhaseDisconnected
		}
		m.err = fmt.Sprintf("连接错误: %v", msg.Err)

	case ServerMessage:
		m.handleServerMessage(msg.Msg)
		return m, m.listenForMessages()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return tea.Quit
	}

	// 输入框聚焦时，除确认和退出外的按键都交给输入框
	if m.input.Focused() {
		switch {
		case key.Matches(msg, m.keys.confirm):
			return m.watch(m.input.Value())
		case msg.Type == tea.KeyEsc:
			if m.sessionID == "" {
				return tea.Quit
			}
			m.input.SetValue(m.sessionID)
			m.input.Blur()
			return nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.edit):
		m.input.Focus()
		return textinput.Blink
	case key.Matches(msg, m.keys.getState):
		m.send("get_state", m.client.GetState)
	case key.Matches(msg, m.keys.join):
		m.send("join_game", m.client.Join)
	case key.Matches(msg, m.keys.leave):
		m.send("leave_game", m.client.Leave)
	}
	return nil
}

// watch 切换到新会话：取消旧订阅并订阅新会话
func (m *Model) watch(id string) tea.Cmd {
	if id == "" {
		m.err = "会话 ID 不能为空"
		return nil
	}
	m.input.Blur()
	if id == m.sessionID {
		return nil
	}
	if m.phase != PhaseReady {
		// 连接建立后再订阅
		return nil
	}

	if m.sessionID != "" {
		_ = m.client.Unsubscribe(m.sessionID)
	}
	m.sessionID = id
	m.state = nil
	m.err = ""
	if err := m.client.Subscribe(id); err != nil {
		m.err = fmt.Sprintf("订阅失败: %v", err)
	}
	return nil
}

func (m *Model) send(op string, fn func(string) error) {
	if m.sessionID == "" {
		m.err = "请先输入会话 ID"
		return
	}
	if err := fn(m.sessionID); err != nil {
		m.err = fmt.Sprintf("%s 发送失败: %v", op, err)
		return
	}
	m.err = ""
}

func (m *Model) handleServerMessage(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MsgConnected:
		m.clientID = m.client.ClientID()

	case protocol.MsgGameState, protocol.MsgGameUpdate:
		env, err := codec.ParsePayload[protocol.StateEnvelope](msg)
		if err != nil {
			return
		}
		if env.State != nil && env.State.SessionID == m.sessionID {
			m.state = env.State
		}
		if env.Success {
			m.addEvent(okStyle.Render("✓ " + env.Message))
		} else {
			m.addEvent(errorStyle.Render("✗ " + env.Message))
		}

	case protocol.MsgSubscribed:
		if p, err := codec.ParsePayload[protocol.SubscribedPayload](msg); err == nil && p.Subscribed {
			m.addEvent(mutedStyle.Render("已订阅 " + p.SessionID))
		}

	case protocol.MsgSessionClosed:
		if p, err := codec.ParsePayload[protocol.SessionClosedPayload](msg); err == nil && p.SessionID == m.sessionID {
			m.state = nil
			m.addEvent(warningStyle.Render("会话已关闭: " + p.Reason))
		}

	case protocol.MsgMaintenancePush:
		if p, err := codec.ParsePayload[protocol.MaintenancePayload](msg); err == nil {
			m.addEvent(warningStyle.Render("⚠ " + p.Message))
		}

	case protocol.MsgError:
		if p, err := codec.ParsePayload[protocol.ErrorPayload](msg); err == nil {
			m.err = fmt.Sprintf("[%d] %s", p.Code, p.Message)
		}
	}
}

func (m *Model) addEvent(line string) {
	m.events = append(m.events, time.Now().Format("15:04:05")+" "+line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}
