package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// HitRateLimit 用一条 upsert 完成窗口重置和计数自增，并发请求不会丢失计数
func (r *Repository) HitRateLimit(ctx context.Context, tenantKey string, now time.Time, window time.Duration) (*domain.RateLimitState, error) {
	query := `
		INSERT INTO rate_limits (tenant_key, request_count, window_start)
		VALUES ($1, 1, $2)
		ON CONFLICT (tenant_key) DO UPDATE
		SET
			request_count = CASE
				WHEN rate_limits.window_start + make_interval(secs => $3) <= EXCLUDED.window_start THEN 1
				ELSE rate_limits.request_count + 1
			END,
			window_start = CASE
				WHEN rate_limits.window_start + make_interval(secs => $3) <= EXCLUDED.window_start THEN EXCLUDED.window_start
				ELSE rate_limits.window_start
			END
		RETURNING request_count, window_start
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	state := &domain.RateLimitState{
		TenantKey: tenantKey,
	}

	if err := r.dbpool.QueryRowContext(ctx, query, tenantKey, now, window.Seconds()).Scan(&state.RequestCount, &state.WindowStart); err != nil {
		return nil, err
	}

	return state, nil
}
