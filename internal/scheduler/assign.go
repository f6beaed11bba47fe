package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

type AssignRequest struct {
	TenantID  int64 `validate:"required"`
	ShiftID   int64 `validate:"required"`
	ActorID   int64
	WorkerIDs []int64 `validate:"required,min=1,max=50,dive,min=1"`
	Force     bool
}

// ConflictWarning 是同租户内的软冲突，管理员确认后可以强制派工
type ConflictWarning struct {
	WorkerID   int64     `json:"workerID"`
	ShiftTitle string    `json:"shiftTitle"`
	StartTime  time.Time `json:"startTime"`
	StartLocal string    `json:"startLocal"`
}

type AssignResult struct {
	Assignments       []*domain.Assignment `json:"assignments"`
	Warnings          []ConflictWarning    `json:"warnings"`
	NeedsConfirmation bool                 `json:"needsConfirmation"`
}

// AssignWorkers 把工人直接派到一个已有班次
//
// 工人声明了不可用或在其它租户有班时直接失败；同租户内的重叠在未设置 Force 时只返回警告，不写入任何数据。
func (c *Compiler) AssignWorkers(ctx context.Context, req *AssignRequest) (*AssignResult, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, &domain.Error{Code: domain.CodeValidation, Message: "请求参数不合法", Err: err}
	}

	workerIDs := slices.Clone(req.WorkerIDs)
	slices.Sort(workerIDs)
	if len(slices.Compact(slices.Clone(workerIDs))) != len(workerIDs) {
		return nil, domain.NewError(domain.CodeValidation, "工人列表中存在重复")
	}

	shift, err := c.store.GetShift(ctx, req.ShiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.CodeNotFound, "班次不存在")
		}
		return nil, err
	}
	if shift.TenantID != req.TenantID {
		return nil, domain.NewError(domain.CodeForbidden, "无权操作该班次")
	}
	// 已经进入 completed 的班次再加人会让状态后退
	if shift.Status != domain.ShiftStatusAssigned && shift.Status != domain.ShiftStatusInProgress && !shift.Status.CanAdvanceTo(domain.ShiftStatusAssigned) {
		return nil, domain.Errorf(domain.CodeInvalidTransition, "状态为 %s 的班次不能再派工", shift.Status)
	}

	result := &AssignResult{}
	newStatus := shift.Status
	err = c.store.WithWorkerLocks(ctx, workerIDs, func(tx Tx) error {
		existing, err := tx.ListAssignmentsByShift(ctx, shift.ID)
		if err != nil {
			return err
		}

		filled := 0
		for _, a := range existing {
			if a.Status == domain.AssignmentStatusCancelled {
				continue
			}
			filled++
			if slices.Contains(workerIDs, a.WorkerID) {
				return domain.Errorf(domain.CodeValidation, "工人 %d 已经在该班次中", a.WorkerID)
			}
		}
		if filled+len(workerIDs) > int(shift.Capacity) {
			return domain.Errorf(domain.CodeValidation, "班次剩余名额不足，最多还能安排 %d 人", int(shift.Capacity)-filled)
		}

		from := shift.StartTime.Add(-conflictBuffer)
		to := shift.EndTime.Add(conflictBuffer)
		commitments, err := tx.ListCommitments(ctx, workerIDs, from, to)
		if err != nil {
			return err
		}
		availabilities, err := tx.ListUnavailability(ctx, workerIDs, from, to)
		if err != nil {
			return err
		}

		detector := NewConflictDetector(req.TenantID, commitments, availabilities)
		for _, workerID := range workerIDs {
			conflict := detector.Check(workerID, shift.StartTime, shift.EndTime)
			switch conflict.Kind {
			case NoConflict:
			case InternalConflict:
				result.Warnings = append(result.Warnings, ConflictWarning{
					WorkerID:   workerID,
					ShiftTitle: conflict.Title,
					StartTime:  conflict.Start,
					StartLocal: conflict.Start.In(c.opts.DisplayLocation).Format("2006-01-02 15:04"),
				})
			default:
				return conflictError(conflict, c.opts.DisplayLocation)
			}
		}

		if len(result.Warnings) > 0 && !req.Force {
			result.NeedsConfirmation = true
			return nil
		}

		assignments := make([]*domain.Assignment, len(workerIDs))
		for i, workerID := range workerIDs {
			assignments[i] = &domain.Assignment{
				ShiftID:  shift.ID,
				WorkerID: workerID,
				Status:   domain.AssignmentStatusActive,
			}
		}
		if err := tx.InsertAssignments(ctx, assignments); err != nil {
			return err
		}
		result.Assignments = assignments

		if shift.Status == domain.ShiftStatusPublished && filled+len(workerIDs) == int(shift.Capacity) {
			ok, err := tx.AdvanceShiftStatus(ctx, shift.ID, domain.ShiftStatusPublished, domain.ShiftStatusAssigned)
			if err != nil {
				return err
			}
			if !ok {
				return domain.NewError(domain.CodeRaceCondition, "班次状态已被其它请求修改，请重试")
			}
			newStatus = domain.ShiftStatusAssigned
		}

		return tx.InsertAuditEvent(ctx, &domain.AuditEvent{
			TenantID:       req.TenantID,
			ActorID:        req.ActorID,
			EntityType:     "shift",
			EntityID:       shift.ID,
			Action:         "assign",
			PreviousStatus: string(shift.Status),
			NewStatus:      string(newStatus),
			Details: map[string]any{
				"workerIDs": workerIDs,
				"forced":    req.Force && len(result.Warnings) > 0,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if len(result.Assignments) > 0 && shift.Status != domain.ShiftStatusDraft && c.notifier != nil {
		notifications := make([]domain.ShiftNotification, len(result.Assignments))
		for i, a := range result.Assignments {
			notifications[i] = domain.ShiftNotification{
				WorkerID:        a.WorkerID,
				ShiftID:         shift.ID,
				ScheduleGroupID: shift.ScheduleGroupID,
				Title:           shift.Title,
				StartTime:       shift.StartTime,
				EndTime:         shift.EndTime,
				Status:          newStatus,
			}
		}
		if err := c.notifier.NotifyShiftsPublished(ctx, shift.LocationID, notifications); err != nil {
			c.logNotifyError(shift.LocationID, len(notifications), err)
		}
	}

	return result, nil
}
