package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap 会话面板的按键绑定
type keyMap struct {
	getState key.Binding
	join     key.Binding
	leave    key.Binding
	edit     key.Binding
	confirm  key.Binding
	help     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		getState: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "get state")),
		join:     key.NewBinding(key.WithKeys("j"), key.WithHelp("j", "join")),
		leave:    key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "leave")),
		edit:     key.NewBinding(key.WithKeys("e", "tab"), key.WithHelp("e", "edit session")),
		confirm:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "watch session")),
		help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		quit:     key.NewBinding(key.WithKeys("ctrl+c", "q", "esc"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp 实现 help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.getState, k.join, k.leave, k.help, k.quit}
}

// FullHelp 实现 help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.getState, k.join, k.leave},
		{k.edit, k.confirm},
		{k.help, k.quit},
	}
}
