package repository

import (
	"context"
	"database/sql"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

const assignmentColumns = `
	id,
	shift_id,
	worker_id,
	status,
	actual_clock_in,
	actual_clock_out,
	effective_clock_in,
	effective_clock_out,
	break_minutes,
	payable_minutes,
	gross_pay,
	clock_in_latitude,
	clock_in_longitude,
	clock_out_latitude,
	clock_out_longitude,
	clock_in_verified,
	clock_out_verified,
	needs_review,
	review_reason,
	notes,
	created_at,
	version
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	a := &domain.Assignment{}
	dst := []any{
		&a.ID,
		&a.ShiftID,
		&a.WorkerID,
		&a.Status,
		&a.ActualClockIn,
		&a.ActualClockOut,
		&a.EffectiveClockIn,
		&a.EffectiveClockOut,
		&a.BreakMinutes,
		&a.PayableMinutes,
		&a.GrossPay,
		&a.ClockInLatitude,
		&a.ClockInLongitude,
		&a.ClockOutLatitude,
		&a.ClockOutLongitude,
		&a.ClockInVerified,
		&a.ClockOutVerified,
		&a.NeedsReview,
		&a.ReviewReason,
		&a.Notes,
		&a.CreatedAt,
		&a.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	return a, nil
}

// GetAssignmentByShiftAndWorker 返回工人在该班次中未取消的派工
func (r *Repository) GetAssignmentByShiftAndWorker(ctx context.Context, shiftID, workerID int64) (*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE shift_id = $1 AND worker_id = $2 AND status <> 'cancelled'
	`

	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return scanAssignment(r.dbpool.QueryRowContext(ctx, query, shiftID, workerID))
}

func (r *Repository) ListAssignmentsByShift(ctx context.Context, shiftID int64) ([]*domain.Assignment, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	return listAssignmentsByShift(ctx, r.dbpool, shiftID)
}

func listAssignmentsByShift(ctx context.Context, q querier, shiftID int64) ([]*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
		FROM assignments
		WHERE shift_id = $1
		ORDER BY id
	`

	rows, err := q.QueryContext(ctx, query, shiftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make([]*domain.Assignment, 0)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return assignments, nil
}

func insertAssignments(ctx context.Context, q querier, assignments []*domain.Assignment) error {
	query := `
		INSERT INTO assignments (shift_id, worker_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, version
	`

	for _, a := range assignments {
		dst := []any{&a.ID, &a.CreatedAt, &a.Version}
		if err := q.QueryRowContext(ctx, query, a.ShiftID, a.WorkerID, a.Status).Scan(dst...); err != nil {
			return translateConstraint(err)
		}
	}

	return nil
}

// RecordPunch 用条件更新写入一次打卡，同一个派工的重复打卡不会命中任何行
func (r *Repository) RecordPunch(ctx context.Context, punch *domain.Punch) (domain.ShiftStatus, error) {
	var status domain.ShiftStatus

	err := r.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var query string
		switch punch.Kind {
		case domain.PunchClockIn:
			query = `
				UPDATE assignments
				SET
					status = $1,
					actual_clock_in = $2,
					effective_clock_in = $3,
					clock_in_latitude = $4,
					clock_in_longitude = $5,
					clock_in_verified = $6,
					needs_review = needs_review OR NOT $6,
					review_reason = CASE WHEN $7 <> '' THEN $7 ELSE review_reason END,
					version = version + 1
				WHERE id = $8 AND status = $9 AND actual_clock_in IS NULL
			`
		case domain.PunchClockOut:
			query = `
				UPDATE assignments
				SET
					status = $1,
					actual_clock_out = $2,
					effective_clock_out = $3,
					clock_out_latitude = $4,
					clock_out_longitude = $5,
					clock_out_verified = $6,
					needs_review = needs_review OR NOT $6,
					review_reason = CASE WHEN $7 <> '' THEN $7 ELSE review_reason END,
					version = version + 1
				WHERE id = $8 AND status = $9 AND actual_clock_out IS NULL AND actual_clock_in IS NOT NULL
			`
		}

		args := []any{
			punch.NewStatus,
			punch.Actual,
			punch.Effective,
			punch.Latitude,
			punch.Longitude,
			punch.Verified,
			punch.ReviewReason,
			punch.AssignmentID,
			punch.PreviousStatus,
		}
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return domain.ErrPunchConflict
		}

		// 第一次上班打卡把班次推进到 in_progress；没有待上班或在岗的派工后班次进入 completed
		switch punch.Kind {
		case domain.PunchClockIn:
			query = `
				UPDATE shifts
				SET status = 'in_progress', version = version + 1
				WHERE id = $1 AND status IN ('published', 'assigned')
			`
			_, err = tx.ExecContext(ctx, query, punch.ShiftID)
		case domain.PunchClockOut:
			query = `
				UPDATE shifts
				SET status = 'completed', version = version + 1
				WHERE id = $1 AND status = 'in_progress'
					AND NOT EXISTS (
						SELECT 1 FROM assignments WHERE shift_id = $1 AND status IN ('active', 'in_progress')
					)
			`
			_, err = tx.ExecContext(ctx, query, punch.ShiftID)
		}
		if err != nil {
			return err
		}

		query = `SELECT status FROM shifts WHERE id = $1`
		if err := tx.QueryRowContext(ctx, query, punch.ShiftID).Scan(&status); err != nil {
			return err
		}

		details := map[string]any{
			"kind":           punch.Kind,
			"actual":         punch.Actual,
			"effective":      punch.Effective,
			"latitude":       punch.Latitude,
			"longitude":      punch.Longitude,
			"verified":       punch.Verified,
			"distanceMeters": punch.DistanceMeters,
			"shiftStatus":    status,
		}
		if punch.DeviceTime != nil {
			details["deviceTime"] = *punch.DeviceTime
		}
		if punch.ReviewReason != "" {
			details["reviewReason"] = punch.ReviewReason
		}

		return insertAuditEvent(ctx, tx, &domain.AuditEvent{
			TenantID:       punch.TenantID,
			ActorID:        punch.WorkerID,
			EntityType:     "assignment",
			EntityID:       punch.AssignmentID,
			Action:         string(punch.Kind),
			PreviousStatus: string(punch.PreviousStatus),
			NewStatus:      string(punch.NewStatus),
			Details:        details,
		})
	})
	if err != nil {
		return "", err
	}

	return status, nil
}

// FinalizeApproval 按结算时读到的版本写入所有派工，再用条件更新把班次置为 approved
func (r *Repository) FinalizeApproval(ctx context.Context, approval *domain.Approval) error {
	return r.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		query := `
			UPDATE assignments
			SET
				status = $1,
				break_minutes = $2,
				payable_minutes = $3,
				gross_pay = $4,
				effective_clock_in = COALESCE($5, effective_clock_in),
				notes = $6,
				version = version + 1
			WHERE id = $7 AND shift_id = $8 AND version = $9
		`
		for _, s := range approval.Settlements {
			args := []any{
				s.Status,
				s.BreakMinutes,
				s.PayableMinutes,
				s.GrossPay,
				s.EffectiveStart,
				s.Notes,
				s.AssignmentID,
				approval.ShiftID,
				s.Version,
			}
			result, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			if n != 1 {
				return domain.ErrShiftStatusChanged
			}
		}

		ok, err := advanceShiftStatus(ctx, tx, approval.ShiftID, approval.ExpectedStatus, domain.ShiftStatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrShiftStatusChanged
		}

		err = insertAuditEvent(ctx, tx, &domain.AuditEvent{
			TenantID:       approval.TenantID,
			ActorID:        approval.ActorID,
			EntityType:     "shift",
			EntityID:       approval.ShiftID,
			Action:         "approve",
			PreviousStatus: string(approval.ExpectedStatus),
			NewStatus:      string(domain.ShiftStatusApproved),
			Details: map[string]any{
				"assignmentCount": len(approval.Settlements),
				"noShowCount":     approval.NoShowCount,
				"totalPay":        approval.TotalPay.String(),
			},
		})
		if err != nil {
			return err
		}

		for _, s := range approval.Settlements {
			if s.Status != domain.AssignmentStatusNoShow {
				continue
			}
			err := insertAuditEvent(ctx, tx, &domain.AuditEvent{
				TenantID:   approval.TenantID,
				ActorID:    approval.ActorID,
				EntityType: "assignment",
				EntityID:   s.AssignmentID,
				Action:     "no_show",
				NewStatus:  string(domain.AssignmentStatusNoShow),
				Details: map[string]any{
					"shiftID":  approval.ShiftID,
					"workerID": s.WorkerID,
				},
			})
			if err != nil {
				return err
			}
		}

		return nil
	})
}
