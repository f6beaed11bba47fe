package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func insertAvailability(ctx context.Context, q querier, availability *domain.Availability) error {
	query := `
		INSERT INTO availabilities (worker_id, start_time, end_time, type, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	args := []any{availability.WorkerID, availability.StartTime, availability.EndTime, availability.Type, availability.Reason}
	if err := q.QueryRowContext(ctx, query, args...).Scan(&availability.ID, &availability.CreatedAt); err != nil {
		return translateConstraint(err)
	}

	return nil
}

// listUnavailability 只返回 unavailable 类型的记录，preferred 不参与冲突检测
func listUnavailability(ctx context.Context, q querier, workerIDs []int64, from, to time.Time) ([]domain.Availability, error) {
	query := `
		SELECT id, worker_id, start_time, end_time, type, reason, created_at
		FROM availabilities
		WHERE worker_id = ANY($1)
			AND type = 'unavailable'
			AND start_time < $3
			AND end_time > $2
		ORDER BY worker_id, start_time
	`

	rows, err := q.QueryContext(ctx, query, workerIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	availabilities := make([]domain.Availability, 0)
	for rows.Next() {
		var a domain.Availability
		dst := []any{&a.ID, &a.WorkerID, &a.StartTime, &a.EndTime, &a.Type, &a.Reason, &a.CreatedAt}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		availabilities = append(availabilities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return availabilities, nil
}
