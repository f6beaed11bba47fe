package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func (r *Repository) GetIdempotencyRecord(ctx context.Context, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return getIdempotencyRecord(ctx, r.dbpool, tenantID, key, now)
}

// getIdempotencyRecord 过期的记录视为不存在
func getIdempotencyRecord(ctx context.Context, q querier, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT request_hash, created_shift_count, schedule_group_ids, created_at, expires_at
		FROM idempotency_records
		WHERE tenant_id = $1 AND key = $2 AND expires_at > $3
	`

	rec := &domain.IdempotencyRecord{
		TenantID: tenantID,
		Key:      key,
	}

	var groupIDs []byte
	dst := []any{&rec.RequestHash, &rec.CreatedShiftCount, &groupIDs, &rec.CreatedAt, &rec.ExpiresAt}
	if err := q.QueryRowContext(ctx, query, tenantID, key, now).Scan(dst...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(groupIDs, &rec.ScheduleGroupIDs); err != nil {
		return nil, err
	}

	return rec, nil
}

// insertIdempotencyRecord 键已存在且未过期时不写入并返回 false，已过期的旧记录会被覆盖
func insertIdempotencyRecord(ctx context.Context, q querier, rec *domain.IdempotencyRecord) (bool, error) {
	query := `
		INSERT INTO idempotency_records (
			tenant_id,
			key,
			request_hash,
			created_shift_count,
			schedule_group_ids,
			created_at,
			expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, key) DO UPDATE
		SET
			request_hash = EXCLUDED.request_hash,
			created_shift_count = EXCLUDED.created_shift_count,
			schedule_group_ids = EXCLUDED.schedule_group_ids,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_records.expires_at <= EXCLUDED.created_at
	`

	groupIDs, err := json.Marshal(rec.ScheduleGroupIDs)
	if err != nil {
		return false, err
	}

	args := []any{rec.TenantID, rec.Key, rec.RequestHash, rec.CreatedShiftCount, groupIDs, rec.CreatedAt, rec.ExpiresAt}
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}
