package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle("会话状态面板"))
	b.WriteString("\n\n")

	switch m.phase {
	case PhaseConnecting:
		b.WriteString("正在连接服务器...\n")
	case PhaseDisconnected:
		b.WriteString(errorStyle.Render("连接已断开") + "\n")
	case PhaseReady:
		status := "已连接"
		if m.clientID != "" {
			status += " " + mutedStyle.Render(m.clientID)
		}
		if latency := m.client.Latency(); latency > 0 {
			status += mutedStyle.Render(fmt.Sprintf(" %dms", latency))
		}
		b.WriteString(okStyle.Render(status) + "\n")
	}

	b.WriteString(promptStyle.Render("会话: " + m.input.View()))
	b.WriteString("\n\n")
	b.WriteString(m.stateView())

	if len(m.events) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(m.events, "\n"))
		b.WriteString("\n")
	}

	if m.err != "" {
		b.WriteString("\n" + errorStyle.Render(m.err) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return docStyle.Render(b.String())
}

func (m *Model) stateView() string {
	if m.state == nil {
		return boxStyle.Render(mutedStyle.Render("暂无状态，按 g 获取"))
	}

	s := m.state
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		row("sessionId", s.SessionID),
		row("phase", phaseStyle(string(s.Phase)).Render(string(s.Phase))),
		row("playerCount", fmt.Sprintf("%d", s.PlayerCount)),
		row("currentPlayer", s.CurrentPlayer),
		row("lastUpdated", s.LastUpdated.Local().Format("2006-01-02 15:04:05.000")),
	))
}
