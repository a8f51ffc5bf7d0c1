package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/palemoky/gamestate/internal/config"
	"github.com/palemoky/gamestate/internal/logger"
	"github.com/palemoky/gamestate/internal/server"
	"github.com/palemoky/gamestate/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "gamestate-server",
		Short:         "会话状态协调服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "配置文件路径")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Error("加载配置失败", "path", configPath, "err", err)
		return err
	}

	if _, err := logger.Init(cfg.Log); err != nil {
		log.Error("初始化日志失败", "err", err)
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Error("初始化链路追踪失败", "err", err)
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("关闭链路追踪失败", "err", err)
		}
	}()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Error("创建服务器失败", "err", err)
		return err
	}

	log.Info("会话状态服务启动中...", "config", configPath)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("服务器异常退出", "err", err)
		return err
	}
	return nil
}
