package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// RateLimiter 按 IP 限制新建连接的速率，超限后封禁一段时间
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*ipLimit

	perSecond   int
	perMinute   int
	banDuration time.Duration
	idleTimeout time.Duration
}

type ipLimit struct {
	second      *rate.Limiter
	minute      *rate.Limiter
	lastSeen    time.Time
	bannedUntil time.Time
}

// NewRateLimiter 创建连接速率限制器
func NewRateLimiter(maxPerSecond, maxPerMinute int, banDuration time.Duration) *RateLimiter {
	return &RateLimiter{
		clients:     make(map[string]*ipLimit),
		perSecond:   maxPerSecond,
		perMinute:   maxPerMinute,
		banDuration: banDuration,
		idleTimeout: 10 * time.Minute,
	}
}

// Allow 检查 IP 是否允许建立连接
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	l, ok := rl.clients[ip]
	if !ok {
		l = &ipLimit{
			second: rate.NewLimiter(rate.Limit(rl.perSecond), rl.perSecond),
			minute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(max(rl.perMinute, 1))), rl.perMinute),
		}
		rl.clients[ip] = l
	}
	l.lastSeen = now

	if now.Before(l.bannedUntil) {
		return false
	}

	if !l.second.AllowN(now, 1) || !l.minute.AllowN(now, 1) {
		l.bannedUntil = now.Add(rl.banDuration)
		log.Warn("IP 请求过于频繁，暂时封禁", "ip", ip, "ban", rl.banDuration)
		return false
	}
	return true
}

// IsBanned 检查 IP 是否被封禁
func (rl *RateLimiter) IsBanned(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.clients[ip]
	return ok && time.Now().Before(l.bannedUntil)
}

// Cleanup 清理长时间未出现且未被封禁的记录，返回清理数量
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	n := 0
	for ip, l := range rl.clients {
		if now.Sub(l.lastSeen) > rl.idleTimeout && now.After(l.bannedUntil) {
			delete(rl.clients, ip)
			n++
		}
	}
	return n
}

// --- 来源验证 ---

// OriginChecker 来源验证器
type OriginChecker struct {
	allowed  map[string]bool
	allowAll bool
}

// NewOriginChecker 创建来源验证器，"*" 表示允许全部
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]bool)}
	for _, origin := range origins {
		if origin == "*" {
			oc.allowAll = true
			continue
		}
		oc.allowed[strings.ToLower(strings.TrimSpace(origin))] = true
	}
	return oc
}

// Check 检查请求来源。没有 Origin 头的请求（本地客户端）总是允许。
func (oc *OriginChecker) Check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return oc.allowed[strings.ToLower(origin)]
}

// --- IP 白名单/黑名单 ---

// IPFilter IP 过滤器
type IPFilter struct {
	mu        sync.RWMutex
	whitelist map[string]bool
	blacklist map[string]bool
}

// NewIPFilter 创建 IP 过滤器
func NewIPFilter() *IPFilter {
	return &IPFilter{
		whitelist: make(map[string]bool),
		blacklist: make(map[string]bool),
	}
}

// AddToWhitelist 添加到白名单；白名单非空时只允许名单内 IP
func (f *IPFilter) AddToWhitelist(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.whitelist[ip] = true
}

// AddToBlacklist 添加到黑名单
func (f *IPFilter) AddToBlacklist(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blacklist[ip] = true
}

// RemoveFromBlacklist 从黑名单移除
func (f *IPFilter) RemoveFromBlacklist(ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blacklist, ip)
}

// IsAllowed 检查 IP 是否允许
func (f *IPFilter) IsAllowed(ip string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.whitelist) > 0 && !f.whitelist[ip] {
		return false
	}
	return !f.blacklist[ip]
}

// GetClientIP 获取客户端真实 IP，优先代理头
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// --- 消息速率限制 ---

// maxRateWarnings 超速次数超过该值后断开连接
const maxRateWarnings = 5

// MessageRateLimiter 已连接客户端的消息速率限制（令牌桶）
type MessageRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*messageLimit

	perSecond int
}

type messageLimit struct {
	limiter  *rate.Limiter
	warnings int
}

// NewMessageRateLimiter 创建消息速率限制器
func NewMessageRateLimiter(maxPerSecond int) *MessageRateLimiter {
	return &MessageRateLimiter{
		clients:   make(map[string]*messageLimit),
		perSecond: maxPerSecond,
	}
}

// AllowMessage 检查是否允许处理消息；warning 表示剩余令牌不足一半
func (ml *MessageRateLimiter) AllowMessage(clientID string) (allowed bool, warning bool) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	l, ok := ml.clients[clientID]
	if !ok {
		l = &messageLimit{limiter: rate.NewLimiter(rate.Limit(ml.perSecond), ml.perSecond)}
		ml.clients[clientID] = l
	}

	now := time.Now()
	if !l.limiter.AllowN(now, 1) {
		l.warnings++
		return false, true
	}
	return true, l.limiter.TokensAt(now) < float64(ml.perSecond)/2
}

// GetWarningCount 获取超速次数
func (ml *MessageRateLimiter) GetWarningCount(clientID string) int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if l, ok := ml.clients[clientID]; ok {
		return l.warnings
	}
	return 0
}

// ShouldDisconnect 超速次数过多时返回 true
func (ml *MessageRateLimiter) ShouldDisconnect(clientID string) bool {
	return ml.GetWarningCount(clientID) > maxRateWarnings
}

// RemoveClient 移除客户端记录
func (ml *MessageRateLimiter) RemoveClient(clientID string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	delete(ml.clients, clientID)
}
