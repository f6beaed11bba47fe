package timesheet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

type ApproveRequest struct {
	TenantID int64 `validate:"required"`
	ShiftID  int64 `validate:"required"`
	ActorID  int64
	// 按派工 ID 覆盖休息时长，未出现的派工使用已保存的值
	BreakMinutes map[int64]int32 `validate:"omitempty,dive,min=0"`
}

type ApproveResult struct {
	ShiftID         int64               `json:"shiftID"`
	Status          domain.ShiftStatus  `json:"status"`
	AssignmentCount int                 `json:"assignmentCount"`
	NoShowCount     int                 `json:"noShowCount"`
	TotalPay        decimal.Decimal     `json:"totalPay"`
	Settlements     []domain.Settlement `json:"settlements"`
}

// Approver 对班次做最终结算
type Approver struct {
	store    Store
	validate *validator.Validate
	opts     Options
	now      func() time.Time
}

func NewApprover(store Store, validate *validator.Validate, opts Options) *Approver {
	opts.setDefaults()
	return &Approver{
		store:    store,
		validate: validate,
		opts:     opts,
		now:      time.Now,
	}
}

// Approve 审批一个班次
//
// 任一派工的打卡数据不完整时整个审批失败，不会写入任何数据。
// 派工按读到的版本写入，班次状态以条件更新切换；期间有新的打卡或并发的审批时整个审批回滚。
func (a *Approver) Approve(ctx context.Context, req *ApproveRequest) (*ApproveResult, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, &domain.Error{Code: domain.CodeValidation, Message: "审批参数不合法", Err: err}
	}

	shift, err := a.store.GetShift(ctx, req.ShiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.CodeNotFound, "班次不存在")
		}
		return nil, err
	}
	if shift.TenantID != req.TenantID {
		return nil, domain.NewError(domain.CodeForbidden, "无权审批该班次")
	}
	if !a.approvable(shift) {
		return nil, domain.Errorf(domain.CodeInvalidTransition, "状态为 %s 的班次不能审批", shift.Status)
	}

	assignments, err := a.store.ListAssignmentsByShift(ctx, shift.ID)
	if err != nil {
		return nil, err
	}

	known := make(map[int64]bool, len(assignments))
	for _, asg := range assignments {
		known[asg.ID] = true
	}
	for id := range req.BreakMinutes {
		if !known[id] {
			return nil, domain.Errorf(domain.CodeValidation, "派工 %d 不属于该班次", id)
		}
	}

	approval := &domain.Approval{
		ShiftID:        shift.ID,
		TenantID:       shift.TenantID,
		ActorID:        req.ActorID,
		ExpectedStatus: shift.Status,
		TotalPay:       decimal.Zero,
	}
	var dirty []domain.DirtyWorker
	for _, asg := range assignments {
		if asg.Status == domain.AssignmentStatusCancelled {
			continue
		}

		breakMinutes := asg.BreakMinutes
		if override, ok := req.BreakMinutes[asg.ID]; ok {
			breakMinutes = override
		}

		settlement, reason := a.settle(shift, asg, breakMinutes)
		if reason != "" {
			dirty = append(dirty, domain.DirtyWorker{
				AssignmentID: asg.ID,
				WorkerID:     asg.WorkerID,
				Reason:       reason,
			})
			continue
		}

		if settlement.Status == domain.AssignmentStatusNoShow {
			approval.NoShowCount++
		}
		approval.TotalPay = approval.TotalPay.Add(settlement.GrossPay)
		approval.Settlements = append(approval.Settlements, settlement)
	}

	if len(dirty) > 0 {
		return nil, dirtyError(dirty)
	}

	if err := a.store.FinalizeApproval(ctx, approval); err != nil {
		if errors.Is(err, domain.ErrShiftStatusChanged) {
			return nil, domain.NewError(domain.CodeRaceCondition, "班次或打卡数据已被其它请求修改，请刷新后重试")
		}
		return nil, err
	}

	slog.Info("班次审批完成",
		slog.Int64("tenantID", shift.TenantID),
		slog.Int64("shiftID", shift.ID),
		slog.Int("assignments", len(approval.Settlements)),
		slog.Int("noShows", approval.NoShowCount),
		slog.String("totalPay", approval.TotalPay.String()),
	)

	return &ApproveResult{
		ShiftID:         shift.ID,
		Status:          domain.ShiftStatusApproved,
		AssignmentCount: len(approval.Settlements),
		NoShowCount:     approval.NoShowCount,
		TotalPay:        approval.TotalPay,
		Settlements:     approval.Settlements,
	}, nil
}

func (a *Approver) approvable(shift *domain.Shift) bool {
	switch shift.Status {
	case domain.ShiftStatusCompleted:
		return true
	case domain.ShiftStatusPublished, domain.ShiftStatusAssigned, domain.ShiftStatusInProgress:
		return !a.now().Before(shift.EndTime)
	default:
		return false
	}
}

// settle 计算单个派工的结算结果，数据不完整时返回原因
func (a *Approver) settle(shift *domain.Shift, asg *domain.Assignment, breakMinutes int32) (domain.Settlement, string) {
	s := domain.Settlement{
		AssignmentID: asg.ID,
		WorkerID:     asg.WorkerID,
		GrossPay:     decimal.Zero,
		Version:      asg.Version,
	}

	switch {
	case asg.ActualClockIn == nil && asg.ActualClockOut == nil:
		s.Status = domain.AssignmentStatusNoShow
		return s, ""
	case asg.ActualClockIn == nil:
		return s, "缺少上班打卡"
	case asg.ActualClockOut == nil:
		return s, "缺少下班打卡"
	}

	start := EffectiveStart(*asg.ActualClockIn, shift.StartTime, a.opts.GracePeriod)
	end := *asg.ActualClockOut
	if asg.EffectiveClockOut != nil {
		end = *asg.EffectiveClockOut
	}

	total := int32(end.Sub(start) / time.Minute)
	if breakMinutes < 0 || breakMinutes >= total {
		return s, fmt.Sprintf("休息时长 %d 分钟不合法，实际工作时长为 %d 分钟", breakMinutes, total)
	}

	billable := total - breakMinutes
	s.Status = domain.AssignmentStatusCompleted
	s.BreakMinutes = breakMinutes
	s.PayableMinutes = billable
	s.GrossPay = GrossPay(billable, shift.Price)
	s.EffectiveStart = &start

	if late := asg.ActualClockOut.Sub(shift.EndTime); late > a.opts.OvertimeNoteThreshold {
		s.Notes = fmt.Sprintf("下班打卡比计划结束时间晚 %d 分钟", int(late/time.Minute))
	}

	return s, ""
}

func dirtyError(dirty []domain.DirtyWorker) error {
	names := make([]string, len(dirty))
	for i, d := range dirty {
		names[i] = fmt.Sprintf("工人 %d（%s）", d.WorkerID, d.Reason)
	}
	return &domain.Error{
		Code:    domain.CodeDirtyTimesheet,
		Message: "以下工人的打卡数据需要处理后才能审批：" + strings.Join(names, "、"),
		Details: dirty,
	}
}
