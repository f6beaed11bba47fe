package scheduler

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

const publishHashDomain = "shift-manager/publish/v1"

type IdempotencyStore interface {
	// GetIdempotencyRecord 只返回未过期的记录，不存在时返回 sql.ErrNoRows
	GetIdempotencyRecord(ctx context.Context, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error)
}

// IdempotencyGuard 把客户端提供的幂等键和请求内容的哈希对应到已完成的发布结果
type IdempotencyGuard struct {
	store IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewIdempotencyGuard(store IdempotencyStore, ttl time.Duration) *IdempotencyGuard {
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// RequestHash 对请求中有业务含义的部分计算 SHA-256
func RequestHash(req *domain.PublishRequest) (string, error) {
	fingerprint := struct {
		TenantID   int64                  `json:"tenantID"`
		LocationID int64                  `json:"locationID"`
		Timezone   string                 `json:"timezone"`
		Status     domain.ShiftStatus     `json:"status"`
		Recurrence *domain.Recurrence     `json:"recurrence"`
		Blocks     []domain.ScheduleBlock `json:"blocks"`
	}{
		TenantID:   req.TenantID,
		LocationID: req.LocationID,
		Timezone:   req.Timezone,
		Status:     req.Status,
		Recurrence: req.Recurrence,
		Blocks:     req.Blocks,
	}

	data, err := json.Marshal(fingerprint)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(publishHashDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Check 在第一次使用某个键时返回 (nil, nil)
func (g *IdempotencyGuard) Check(ctx context.Context, tenantID int64, key, hash string) (*domain.PublishResult, error) {
	if key == "" {
		return nil, nil
	}

	rec, err := g.store.GetIdempotencyRecord(ctx, tenantID, key, g.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return replayOrConflict(rec, hash)
}

// NewRecord 构造需要与批次一起写入的记录
func (g *IdempotencyGuard) NewRecord(tenantID int64, key, hash string, result *domain.PublishResult) *domain.IdempotencyRecord {
	now := g.now()
	return &domain.IdempotencyRecord{
		TenantID:          tenantID,
		Key:               key,
		RequestHash:       hash,
		CreatedShiftCount: result.CreatedShiftCount,
		ScheduleGroupIDs:  slices.Clone(result.ScheduleGroupIDs),
		CreatedAt:         now,
		ExpiresAt:         now.Add(g.ttl),
	}
}

func replayOrConflict(rec *domain.IdempotencyRecord, hash string) (*domain.PublishResult, error) {
	if rec.RequestHash != hash {
		return nil, domain.NewError(domain.CodeIdempotencyKeyConflict, "该幂等键已被用于另一个不同的发布请求")
	}

	return &domain.PublishResult{
		CreatedShiftCount: rec.CreatedShiftCount,
		ScheduleGroupIDs:  slices.Clone(rec.ScheduleGroupIDs),
		Replayed:          true,
	}, nil
}
