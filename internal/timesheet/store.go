package timesheet

import (
	"context"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// Store 是打卡和审批依赖的存储，由 repository.Repository 实现
type Store interface {
	GetShift(ctx context.Context, id int64) (*domain.Shift, error)
	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
	GetAssignmentByShiftAndWorker(ctx context.Context, shiftID, workerID int64) (*domain.Assignment, error)
	ListAssignmentsByShift(ctx context.Context, shiftID int64) ([]*domain.Assignment, error)

	// RecordPunch 在一个事务中写入打卡、推进班次状态并写审计记录，返回写入后班次的状态
	// 派工已经被其它请求打过卡时返回 domain.ErrPunchConflict
	RecordPunch(ctx context.Context, punch *domain.Punch) (domain.ShiftStatus, error)

	// FinalizeApproval 在一个事务中按版本更新所有派工并以条件更新把班次置为 approved
	// 任一派工的版本已变化或班次已不处于 approval.ExpectedStatus 时回滚并返回 domain.ErrShiftStatusChanged
	FinalizeApproval(ctx context.Context, approval *domain.Approval) error
}
