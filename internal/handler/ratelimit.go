package handler

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter 是进程内按工人划分的令牌桶，只用于挡住客户端重复提交打卡，
// 打卡的正确性由数据库中的条件更新保证
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	cleanupN uint64
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
	}
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// 每 5000 次查询顺带清理一次长时间不活跃的桶，先清理再取当前 key
	rl.cleanupN++
	if rl.cleanupN >= 5000 {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.cleanupN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// visitorKey 已登录时按工人 ID 限流，否则按客户端 IP
func visitorKey(r *http.Request) string {
	if sub, ok := r.Context().Value(SubCtxKey).(int64); ok {
		return fmt.Sprintf("worker:%d", sub)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func (rl *RateLimiter) Handler(h *Handler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.getVisitor(visitorKey(r)).Allow() {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Retry-After", "1")
			h.errorResponse(w, r, http.StatusTooManyRequests, domain.CodeRateLimited, "操作过于频繁，请稍后再试")
		})
	}
}
