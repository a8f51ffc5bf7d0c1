package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/palemoky/gamestate/internal/config"
	"github.com/palemoky/gamestate/internal/logger"
	"github.com/palemoky/gamestate/internal/transport"
	"github.com/palemoky/gamestate/internal/ui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		serverAddr string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:           "gamestate-client",
		Short:         "会话状态终端客户端",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			// TUI 占用终端，日志写入文件
			log.SetOutput(io.Discard)
			if home, err := os.UserHomeDir(); err == nil {
				logCfg := config.LogConfig{Level: "debug", Format: "text", File: filepath.Join(home, ".gamestate", "client.log")}
				if _, err := logger.Init(logCfg); err == nil {
					defer logger.Close()
				}
			}

			c := transport.NewClient(fmt.Sprintf("ws://%s/ws", serverAddr))
			defer c.Close()

			p := tea.NewProgram(ui.NewModel(c, sessionID), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("启动客户端时出错: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&serverAddr, "server", "s", "localhost:8080", "服务器地址")
	cmd.Flags().StringVar(&sessionID, "session", "", "启动时观察的会话 ID")
	return cmd
}
