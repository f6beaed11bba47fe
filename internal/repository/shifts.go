package repository

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

func (r *Repository) GetShift(ctx context.Context, id int64) (*domain.Shift, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return getShift(ctx, r.dbpool, id)
}

func getShift(ctx context.Context, q querier, id int64) (*domain.Shift, error) {
	query := `
		SELECT
			tenant_id,
			location_id,
			title,
			start_time,
			end_time,
			capacity,
			price,
			status,
			schedule_group_id,
			created_at,
			version
		FROM shifts
		WHERE id = $1
	`

	shift := &domain.Shift{
		ID: id,
	}

	dst := []any{
		&shift.TenantID,
		&shift.LocationID,
		&shift.Title,
		&shift.StartTime,
		&shift.EndTime,
		&shift.Capacity,
		&shift.Price,
		&shift.Status,
		&shift.ScheduleGroupID,
		&shift.CreatedAt,
		&shift.Version,
	}
	if err := q.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	return shift, nil
}

func insertShifts(ctx context.Context, q querier, shifts []*domain.Shift) error {
	query := `
		INSERT INTO shifts (
			tenant_id,
			location_id,
			title,
			start_time,
			end_time,
			capacity,
			price,
			status,
			schedule_group_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, version
	`

	for _, shift := range shifts {
		params := []any{
			shift.TenantID,
			shift.LocationID,
			shift.Title,
			shift.StartTime,
			shift.EndTime,
			shift.Capacity,
			shift.Price,
			shift.Status,
			shift.ScheduleGroupID,
		}
		dst := []any{&shift.ID, &shift.CreatedAt, &shift.Version}
		if err := q.QueryRowContext(ctx, query, params...).Scan(dst...); err != nil {
			return translateConstraint(err)
		}
	}

	return nil
}

// advanceShiftStatus 只在班次仍处于 from 状态时更新，返回是否命中
func advanceShiftStatus(ctx context.Context, q querier, shiftID int64, from, to domain.ShiftStatus) (bool, error) {
	query := `
		UPDATE shifts
		SET status = $1, version = version + 1
		WHERE id = $2 AND status = $3
	`

	result, err := q.ExecContext(ctx, query, to, shiftID, from)
	if err != nil {
		return false, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

// listCommitments 跨租户查询工人在时间窗内的未取消派工，班次取消的也不算
func listCommitments(ctx context.Context, q querier, workerIDs []int64, from, to time.Time) ([]domain.Commitment, error) {
	query := `
		SELECT a.worker_id, a.id, s.id, s.tenant_id, s.title, s.start_time, s.end_time
		FROM assignments a
		JOIN shifts s ON s.id = a.shift_id
		WHERE a.worker_id = ANY($1)
			AND a.status <> 'cancelled'
			AND s.status <> 'cancelled'
			AND s.start_time < $3
			AND s.end_time > $2
		ORDER BY a.worker_id, s.start_time
	`

	rows, err := q.QueryContext(ctx, query, workerIDs, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commitments := make([]domain.Commitment, 0)
	for rows.Next() {
		var c domain.Commitment
		dst := []any{&c.WorkerID, &c.AssignmentID, &c.ShiftID, &c.TenantID, &c.Title, &c.StartTime, &c.EndTime}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}
		commitments = append(commitments, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return commitments, nil
}
