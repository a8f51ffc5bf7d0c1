package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"

	"github.com/palemoky/gamestate/internal/config"
)

// 日志文件超过该大小时轮转
const maxLogSize = 10 * 1024 * 1024

var (
	logFile *os.File
	logPath string
)

// Init 按配置初始化全局日志（charmbracelet/log）
func Init(cfg config.LogConfig) (*log.Logger, error) {
	var w io.Writer = os.Stderr
	if cfg.File != "" {
		f, err := openLogFile(cfg.File)
		if err != nil {
			return nil, err
		}
		logFile = f
		w = f
	}

	l := New(w, cfg.Level, cfg.Format)
	log.SetDefault(l)

	if logPath != "" {
		l.Info("日志已初始化", "file", logPath)
	}
	return l, nil
}

// New 创建日志器，level 无法解析时使用 info
func New(w io.Writer, level, format string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	formatter := log.TextFormatter
	switch format {
	case "json":
		formatter = log.JSONFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
}

// openLogFile 打开（必要时轮转）日志文件
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if info, err := os.Stat(path); err == nil && info.Size() > maxLogSize {
		backupPath := fmt.Sprintf("%s.%d", path, time.Now().Unix())
		_ = os.Rename(path, backupPath)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logPath = path
	return f, nil
}

// Close 关闭日志文件
func Close() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// LogPanic 记录 panic 及堆栈
func LogPanic(r any) {
	log.Error("panic recovered", "panic", r, "stack", string(debug.Stack()))
}

// GetLogPath 返回当前日志文件路径
func GetLogPath() string {
	return logPath
}
