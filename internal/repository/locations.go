package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func locationCacheKey(id int64) string {
	return fmt.Sprintf("location_%d", id)
}

// GetLocation 先读 redis 缓存，未命中再查数据库并回填；缓存故障只记录日志，不影响查询
func (r *Repository) GetLocation(ctx context.Context, id int64) (*domain.Location, error) {
	if location, ok := r.getCachedLocation(ctx, id); ok {
		return location, nil
	}

	query := `
		SELECT tenant_id, name, latitude, longitude, radius_meters, created_at
		FROM locations WHERE id = $1
	`

	qctx, cancel := r.queryContext(ctx)
	defer cancel()

	location := &domain.Location{
		ID: id,
	}

	dst := []any{&location.TenantID, &location.Name, &location.Latitude, &location.Longitude, &location.RadiusMeters, &location.CreatedAt}
	if err := r.dbpool.QueryRowContext(qctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	r.cacheLocation(ctx, location)

	return location, nil
}

func (r *Repository) CreateLocation(ctx context.Context, location *domain.Location) error {
	query := `
		INSERT INTO locations (tenant_id, name, latitude, longitude, radius_meters)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	args := []any{location.TenantID, location.Name, location.Latitude, location.Longitude, location.RadiusMeters}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&location.ID, &location.CreatedAt); err != nil {
		return err
	}

	return nil
}

func (r *Repository) getCachedLocation(ctx context.Context, id int64) (*domain.Location, bool) {
	if r.rdb == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Redis.OperationExpiration)*time.Second)
	defer cancel()

	raw, err := r.rdb.Get(ctx, locationCacheKey(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("读取地点缓存失败", slog.Int64("locationID", id), slog.String("error", err.Error()))
		}
		return nil, false
	}

	location := &domain.Location{}
	if err := json.Unmarshal(raw, location); err != nil {
		slog.Warn("地点缓存内容无法解析", slog.Int64("locationID", id), slog.String("error", err.Error()))
		return nil, false
	}

	return location, true
}

func (r *Repository) cacheLocation(ctx context.Context, location *domain.Location) {
	if r.rdb == nil {
		return
	}

	raw, err := json.Marshal(location)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.Redis.OperationExpiration)*time.Second)
	defer cancel()

	ttl := time.Duration(r.cfg.Redis.LocationCacheTTL) * time.Second
	if err := r.rdb.Set(ctx, locationCacheKey(location.ID), raw, ttl).Err(); err != nil {
		slog.Warn("写入地点缓存失败", slog.Int64("locationID", location.ID), slog.String("error", err.Error()))
	}
}
