package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AssignmentStatus string

const (
	AssignmentStatusActive     AssignmentStatus = "active"
	AssignmentStatusInProgress AssignmentStatus = "in_progress"
	AssignmentStatusCompleted  AssignmentStatus = "completed"
	AssignmentStatusNoShow     AssignmentStatus = "no_show"
	AssignmentStatusCancelled  AssignmentStatus = "cancelled"
)

type Assignment struct {
	ID                int64               `json:"id"`
	ShiftID           int64               `json:"shiftID"`
	WorkerID          int64               `json:"workerID"`
	Status            AssignmentStatus    `json:"status"`
	ActualClockIn     *time.Time          `json:"actualClockIn"`
	ActualClockOut    *time.Time          `json:"actualClockOut"`
	EffectiveClockIn  *time.Time          `json:"effectiveClockIn"`
	EffectiveClockOut *time.Time          `json:"effectiveClockOut"`
	BreakMinutes      int32               `json:"breakMinutes"`
	PayableMinutes    *int32              `json:"payableMinutes"`
	GrossPay          decimal.NullDecimal `json:"grossPay"`
	ClockInLatitude   *float64            `json:"clockInLatitude"`
	ClockInLongitude  *float64            `json:"clockInLongitude"`
	ClockOutLatitude  *float64            `json:"clockOutLatitude"`
	ClockOutLongitude *float64            `json:"clockOutLongitude"`
	ClockInVerified   *bool               `json:"clockInVerified"`
	ClockOutVerified  *bool               `json:"clockOutVerified"`
	NeedsReview       bool                `json:"needsReview"`
	ReviewReason      string              `json:"reviewReason"`
	Notes             string              `json:"notes"`
	CreatedAt         time.Time           `json:"createdAt"`
	Version           int32               `json:"-"`
}

// Punch 是一次打卡要写入的内容，由 timesheet 计算，由 repository 原子写入
type Punch struct {
	AssignmentID   int64
	ShiftID        int64
	TenantID       int64
	WorkerID       int64
	Kind           PunchKind
	Actual         time.Time
	Effective      time.Time
	Latitude       float64
	Longitude      float64
	Verified       bool
	DistanceMeters float64
	ReviewReason   string
	DeviceTime     *time.Time

	PreviousStatus AssignmentStatus
	NewStatus      AssignmentStatus
}

type PunchKind string

const (
	PunchClockIn  PunchKind = "clock_in"
	PunchClockOut PunchKind = "clock_out"
)

// Settlement 是审批时对单个派工的结算结果
type Settlement struct {
	AssignmentID   int64            `json:"assignmentID"`
	WorkerID       int64            `json:"workerID"`
	Status         AssignmentStatus `json:"status"`
	BreakMinutes   int32            `json:"breakMinutes"`
	PayableMinutes int32            `json:"payableMinutes"`
	GrossPay       decimal.Decimal  `json:"grossPay"`
	EffectiveStart *time.Time       `json:"effectiveStart"`
	Notes          string           `json:"notes"`
	// 结算时读到的派工版本，写入时版本不一致说明打卡数据已经变化
	Version int32 `json:"-"`
}

// Approval 是审批事务需要写入的全部内容
type Approval struct {
	ShiftID        int64
	TenantID       int64
	ActorID        int64
	ExpectedStatus ShiftStatus
	Settlements    []Settlement
	TotalPay       decimal.Decimal
	NoShowCount    int
}
