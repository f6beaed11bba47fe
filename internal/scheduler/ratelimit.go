package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// RateLimiter 是按租户划分的固定窗口计数器，计数保存在数据库中
type RateLimiter struct {
	store  RateLimitStore
	window time.Duration
	max    int
	now    func() time.Time
}

type RateLimitStore interface {
	// HitRateLimit 必须在一条语句中完成“窗口是否过期”的判断和计数自增
	HitRateLimit(ctx context.Context, tenantKey string, now time.Time, window time.Duration) (*domain.RateLimitState, error)
}

func NewRateLimiter(store RateLimitStore, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		store:  store,
		window: window,
		max:    max,
		now:    time.Now,
	}
}

func publishRateLimitKey(tenantID int64) string {
	return fmt.Sprintf("publish:%d", tenantID)
}

// Allow 记录一次发布尝试，超过窗口上限时返回 RATE_LIMITED
func (l *RateLimiter) Allow(ctx context.Context, tenantID int64) error {
	now := l.now()

	state, err := l.store.HitRateLimit(ctx, publishRateLimitKey(tenantID), now, l.window)
	if err != nil {
		return err
	}

	if state.RequestCount <= l.max {
		return nil
	}

	retryAfter := state.WindowStart.Add(l.window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}

	return &domain.Error{
		Code:       domain.CodeRateLimited,
		Message:    fmt.Sprintf("发布过于频繁，请在 %d 秒后重试", int(math.Ceil(retryAfter.Seconds()))),
		Details:    map[string]any{"retryAfterSeconds": int(math.Ceil(retryAfter.Seconds()))},
		RetryAfter: retryAfter,
	}
}
