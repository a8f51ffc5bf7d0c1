package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/palemoky/gamestate/internal/config"
	"github.com/palemoky/gamestate/internal/server/broadcast"
	"github.com/palemoky/gamestate/internal/server/coordinator"
	"github.com/palemoky/gamestate/internal/server/handler"
	"github.com/palemoky/gamestate/internal/server/storage"
)

// Server WebSocket 服务器
type Server struct {
	config      *config.Config
	redis       *redis.Client
	store       *storage.RedisStore
	coordinator *coordinator.Coordinator
	gateway     *broadcast.Gateway
	handler     *handler.Handler
	upgrader    websocket.Upgrader
	clients     map[string]*Client
	clientsMu   sync.RWMutex

	// 安全组件
	rateLimiter    *RateLimiter
	originChecker  *OriginChecker
	messageLimiter *MessageRateLimiter
	ipFilter       *IPFilter

	// 连接控制
	maxConnections int
	semaphore      chan struct{} // 信号量控制并发连接数

	// 维护模式
	maintenanceMode bool
	maintenanceMu   sync.RWMutex

	statsInterval time.Duration
}

// NewServer 创建服务器实例并检查 Redis 连接
func NewServer(cfg *config.Config) (*Server, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis 连接失败: %w", err)
	}

	return NewServerWithClient(cfg, rdb)
}

// NewServerWithClient 使用已有的 Redis 客户端创建服务器
func NewServerWithClient(cfg *config.Config, rdb *redis.Client) (*Server, error) {
	stateCodec, err := storage.NewCodec(cfg.Redis.Codec)
	if err != nil {
		return nil, err
	}

	store := storage.NewRedisStore(rdb,
		storage.WithCodec(stateCodec),
		storage.WithOpTimeout(cfg.Redis.OpTimeoutDuration()),
		storage.WithMaxRetries(cfg.Redis.MaxRetries),
		storage.WithUpdateAttempts(cfg.Session.UpdateAttempts),
	)

	s := &Server{
		config:      cfg,
		redis:       rdb,
		store:       store,
		coordinator: coordinator.New(store, coordinator.WithTTL(cfg.Session.SessionTTL())),
		gateway:     broadcast.NewGateway(broadcast.NewHub(), rdb, cfg.Redis.FanoutChannel),
		clients:     make(map[string]*Client),
		// 初始化安全组件
		rateLimiter: NewRateLimiter(
			cfg.Security.RateLimit.MaxPerSecond,
			cfg.Security.RateLimit.MaxPerMinute,
			cfg.Security.RateLimit.BanDurationTime(),
		),
		originChecker:  NewOriginChecker(cfg.Security.AllowedOrigins),
		messageLimiter: NewMessageRateLimiter(cfg.Security.MessageLimit.MaxPerSecond),
		ipFilter:       NewIPFilter(),
		// 初始化连接控制
		maxConnections: cfg.Server.MaxConnections,
		semaphore:      make(chan struct{}, cfg.Server.MaxConnections),
		statsInterval:  30 * time.Second,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originChecker.Check,
	}

	s.handler = handler.NewHandler(handler.HandlerDeps{
		Server:      s,
		Coordinator: s.coordinator,
		Gateway:     s.gateway,
	})

	log.Info("安全配置",
		"conn_per_sec", cfg.Security.RateLimit.MaxPerSecond,
		"msg_per_sec", cfg.Security.MessageLimit.MaxPerSecond,
		"max_conns", cfg.Server.MaxConnections,
		"codec", stateCodec.Name(),
		"ttl", cfg.Session.SessionTTL(),
	)
	return s, nil
}

// Routes 返回 HTTP 路由
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/test/ping", s.handleTestPing)
	s.registerAdminRoutes(mux)
	return mux
}

// IPFilter 返回 IP 过滤器，供运维配置黑白名单
func (s *Server) IPFilter() *IPFilter {
	return s.ipFilter
}

// Run 在 ln 上提供服务，直到 ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second, // 防止 Slowloris 攻击
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return s.gateway.Run(gctx) })
	g.Go(func() error {
		s.monitorStats(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownGraceDuration())
		defer cancel()
		return s.Shutdown(shutdownCtx, srv)
	})

	log.Info("服务器启动", "addr", "ws://"+ln.Addr().String()+"/ws", "cpus", runtime.NumCPU())
	return g.Wait()
}

// Start 监听配置的地址并运行
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Run(ctx, ln)
}
