package timesheet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

const (
	DefaultGracePeriod           = 5 * time.Minute
	DefaultOvertimeNoteThreshold = 15 * time.Minute
	DefaultGeofenceRadius        = 150.0
)

type Options struct {
	GracePeriod           time.Duration
	OvertimeNoteThreshold time.Duration
	DefaultGeofenceRadius float64
}

func (o *Options) setDefaults() {
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.OvertimeNoteThreshold <= 0 {
		o.OvertimeNoteThreshold = DefaultOvertimeNoteThreshold
	}
	if o.DefaultGeofenceRadius <= 0 {
		o.DefaultGeofenceRadius = DefaultGeofenceRadius
	}
}

type PunchRequest struct {
	ShiftID         int64      `validate:"required"`
	WorkerID        int64      `validate:"required"`
	Latitude        float64    `validate:"min=-90,max=90"`
	Longitude       float64    `validate:"min=-180,max=180"`
	DeviceTimestamp *time.Time `validate:"omitempty"`
}

type PunchResult struct {
	AssignmentID   int64              `json:"assignmentID"`
	Kind           domain.PunchKind   `json:"kind"`
	ActualTime     time.Time          `json:"actualTime"`
	EffectiveTime  time.Time          `json:"effectiveTime"`
	Verified       bool               `json:"verified"`
	DistanceMeters float64            `json:"distanceMeters"`
	NeedsReview    bool               `json:"needsReview"`
	ReviewReason   string             `json:"reviewReason,omitempty"`
	ShiftStatus    domain.ShiftStatus `json:"shiftStatus"`
}

// Ledger 记录工人的上下班打卡
//
// 打卡时间以服务器时间为准，设备时间只作为审计信息保存。坐标不在地点半径内时打卡依然成功，但会被标记为需要复核。
type Ledger struct {
	store    Store
	validate *validator.Validate
	opts     Options
	now      func() time.Time
}

func NewLedger(store Store, validate *validator.Validate, opts Options) *Ledger {
	opts.setDefaults()
	return &Ledger{
		store:    store,
		validate: validate,
		opts:     opts,
		now:      time.Now,
	}
}

func (l *Ledger) ClockIn(ctx context.Context, req *PunchRequest) (*PunchResult, error) {
	return l.punch(ctx, req, domain.PunchClockIn)
}

func (l *Ledger) ClockOut(ctx context.Context, req *PunchRequest) (*PunchResult, error) {
	return l.punch(ctx, req, domain.PunchClockOut)
}

func (l *Ledger) punch(ctx context.Context, req *PunchRequest, kind domain.PunchKind) (*PunchResult, error) {
	if err := l.validate.Struct(req); err != nil {
		return nil, &domain.Error{Code: domain.CodeValidation, Message: "打卡参数不合法", Err: err}
	}

	shift, err := l.store.GetShift(ctx, req.ShiftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.CodeNotFound, "班次不存在")
		}
		return nil, err
	}

	assignment, err := l.store.GetAssignmentByShiftAndWorker(ctx, shift.ID, req.WorkerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.CodeForbidden, "你没有被安排到该班次")
		}
		return nil, err
	}

	var previous, next domain.AssignmentStatus
	switch kind {
	case domain.PunchClockIn:
		if !shift.Status.AcceptsClockIn() {
			return nil, domain.Errorf(domain.CodeInvalidTransition, "状态为 %s 的班次不能打卡", shift.Status)
		}
		if assignment.ActualClockIn != nil {
			return nil, domain.NewError(domain.CodeValidation, "已经打过上班卡")
		}
		if assignment.Status != domain.AssignmentStatusActive {
			return nil, domain.Errorf(domain.CodeInvalidTransition, "状态为 %s 的派工不能打上班卡", assignment.Status)
		}
		previous, next = domain.AssignmentStatusActive, domain.AssignmentStatusInProgress
	case domain.PunchClockOut:
		if shift.Status != domain.ShiftStatusInProgress {
			return nil, domain.Errorf(domain.CodeInvalidTransition, "状态为 %s 的班次不能打下班卡", shift.Status)
		}
		if assignment.ActualClockIn == nil {
			return nil, domain.NewError(domain.CodeValidation, "请先打上班卡")
		}
		if assignment.ActualClockOut != nil {
			return nil, domain.NewError(domain.CodeValidation, "已经打过下班卡")
		}
		previous, next = domain.AssignmentStatusInProgress, domain.AssignmentStatusCompleted
	}

	location, err := l.store.GetLocation(ctx, shift.LocationID)
	if err != nil {
		return nil, err
	}
	fence := VerifyGeofence(location, req.Latitude, req.Longitude, l.opts.DefaultGeofenceRadius)

	actual := l.now().UTC().Truncate(time.Second)
	effective := actual
	if kind == domain.PunchClockIn {
		effective = EffectiveStart(actual, shift.StartTime, l.opts.GracePeriod)
	}

	punch := &domain.Punch{
		AssignmentID:   assignment.ID,
		ShiftID:        shift.ID,
		TenantID:       shift.TenantID,
		WorkerID:       req.WorkerID,
		Kind:           kind,
		Actual:         actual,
		Effective:      effective,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Verified:       fence.Verified,
		DistanceMeters: fence.DistanceMeters,
		DeviceTime:     req.DeviceTimestamp,
		PreviousStatus: previous,
		NewStatus:      next,
	}
	if !fence.Verified {
		punch.ReviewReason = fmt.Sprintf("打卡位置距离地点 %.0f 米，超出允许范围 %.0f 米", fence.DistanceMeters, fence.RadiusMeters)
	}

	shiftStatus, err := l.store.RecordPunch(ctx, punch)
	if err != nil {
		if errors.Is(err, domain.ErrPunchConflict) {
			return nil, domain.NewError(domain.CodeRaceCondition, "打卡状态已被其它请求修改，请刷新后重试")
		}
		return nil, err
	}

	slog.Info("打卡成功",
		slog.String("kind", string(kind)),
		slog.Int64("shiftID", shift.ID),
		slog.Int64("workerID", req.WorkerID),
		slog.Bool("verified", fence.Verified),
		slog.Float64("distance", fence.DistanceMeters),
	)

	return &PunchResult{
		AssignmentID:   assignment.ID,
		Kind:           kind,
		ActualTime:     actual,
		EffectiveTime:  effective,
		Verified:       fence.Verified,
		DistanceMeters: fence.DistanceMeters,
		NeedsReview:    !fence.Verified,
		ReviewReason:   punch.ReviewReason,
		ShiftStatus:    shiftStatus,
	}, nil
}
