package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，如 GAMESTATE_REDIS_ADDR
const EnvPrefix = "GAMESTATE_"

// Config 服务端配置
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Session   SessionConfig   `yaml:"session" envPrefix:"SESSION_"`
	Security  SecurityConfig  `yaml:"security" envPrefix:"SECURITY_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig WebSocket 服务器配置
type ServerConfig struct {
	Host           string `yaml:"host" env:"HOST"`
	Port           int    `yaml:"port" env:"PORT"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	ShutdownGrace  int    `yaml:"shutdown_grace" env:"SHUTDOWN_GRACE"` // 优雅关闭等待（秒）
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr          string `yaml:"addr" env:"ADDR"`
	Password      string `yaml:"password" env:"PASSWORD"`
	DB            int    `yaml:"db" env:"DB"`
	OpTimeout     int    `yaml:"op_timeout_ms" env:"OP_TIMEOUT_MS"` // 单次存储操作超时（毫秒）
	MaxRetries    int    `yaml:"max_retries" env:"MAX_RETRIES"`     // 存储不可用时的重试次数
	Codec         string `yaml:"codec" env:"CODEC"`                 // json / proto
	FanoutChannel string `yaml:"fanout_channel" env:"FANOUT_CHANNEL"`
}

// SessionConfig 会话状态配置
type SessionConfig struct {
	TTL            int `yaml:"ttl_minutes" env:"TTL_MINUTES"`         // 无活动过期时间（分钟）
	UpdateAttempts int `yaml:"update_attempts" env:"UPDATE_ATTEMPTS"` // 乐观写冲突重试次数
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AllowedOrigins []string           `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	RateLimit      RateLimitConfig    `yaml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	MessageLimit   MessageLimitConfig `yaml:"message_limit" envPrefix:"MESSAGE_LIMIT_"`
}

// RateLimitConfig 连接速率限制
type RateLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second" env:"MAX_PER_SECOND"`
	MaxPerMinute int `yaml:"max_per_minute" env:"MAX_PER_MINUTE"`
	BanDuration  int `yaml:"ban_duration" env:"BAN_DURATION"` // 封禁时长（秒）
}

// MessageLimitConfig 消息速率限制
type MessageLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second" env:"MAX_PER_SECOND"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // debug / info / warn / error
	Format string `yaml:"format" env:"FORMAT"` // text / json
	File   string `yaml:"file" env:"FILE"`     // 为空时输出到 stderr
}

// TelemetryConfig 链路追踪配置
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// SessionTTL 返回会话过期时长
func (c *SessionConfig) SessionTTL() time.Duration {
	return time.Duration(c.TTL) * time.Minute
}

// OpTimeoutDuration 返回存储操作超时时长
func (c *RedisConfig) OpTimeoutDuration() time.Duration {
	return time.Duration(c.OpTimeout) * time.Millisecond
}

// BanDurationTime 返回封禁时长
func (c *RateLimitConfig) BanDurationTime() time.Duration {
	return time.Duration(c.BanDuration) * time.Second
}

// ShutdownGraceDuration 返回优雅关闭等待时长
func (c *ServerConfig) ShutdownGraceDuration() time.Duration {
	return time.Duration(c.ShutdownGrace) * time.Second
}

// Load 加载配置文件，再用环境变量覆盖
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv 用 GAMESTATE_ 前缀的环境变量覆盖配置
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Redis.Codec {
	case "json", "proto":
	default:
		return fmt.Errorf("unknown redis codec %q", c.Redis.Codec)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}

// applyDefaults 设置默认值
func (c *Config) applyDefaults() {
	d := Default()
	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = d.Server.MaxConnections
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = d.Server.ShutdownGrace
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = d.Redis.Addr
	}
	if c.Redis.OpTimeout == 0 {
		c.Redis.OpTimeout = d.Redis.OpTimeout
	}
	if c.Redis.Codec == "" {
		c.Redis.Codec = d.Redis.Codec
	}
	if c.Redis.FanoutChannel == "" {
		c.Redis.FanoutChannel = d.Redis.FanoutChannel
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = d.Session.TTL
	}
	if c.Session.UpdateAttempts == 0 {
		c.Session.UpdateAttempts = d.Session.UpdateAttempts
	}
	if len(c.Security.AllowedOrigins) == 0 {
		c.Security.AllowedOrigins = d.Security.AllowedOrigins
	}
	if c.Security.RateLimit.MaxPerSecond == 0 {
		c.Security.RateLimit.MaxPerSecond = d.Security.RateLimit.MaxPerSecond
	}
	if c.Security.RateLimit.MaxPerMinute == 0 {
		c.Security.RateLimit.MaxPerMinute = d.Security.RateLimit.MaxPerMinute
	}
	if c.Security.RateLimit.BanDuration == 0 {
		c.Security.RateLimit.BanDuration = d.Security.RateLimit.BanDuration
	}
	if c.Security.MessageLimit.MaxPerSecond == 0 {
		c.Security.MessageLimit.MaxPerSecond = d.Security.MessageLimit.MaxPerSecond
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = d.Telemetry.ServiceName
	}
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MaxConnections: 10000,
			ShutdownGrace:  5,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			OpTimeout:     2000,
			MaxRetries:    2,
			Codec:         "json",
			FanoutChannel: "gamestate:fanout",
		},
		Session: SessionConfig{
			TTL:            120,
			UpdateAttempts: 10,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"*"},
			RateLimit: RateLimitConfig{
				MaxPerSecond: 10,
				MaxPerMinute: 60,
				BanDuration:  60,
			},
			MessageLimit: MessageLimitConfig{
				MaxPerSecond: 20,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "gamestate",
		},
	}
}

// LoadOrDefault 加载配置；文件不存在时使用默认配置（仍应用环境变量）
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	cfg = Default()
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
