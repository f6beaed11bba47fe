package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ShiftStatus string

const (
	ShiftStatusDraft      ShiftStatus = "draft"
	ShiftStatusPublished  ShiftStatus = "published"
	ShiftStatusAssigned   ShiftStatus = "assigned"
	ShiftStatusInProgress ShiftStatus = "in_progress"
	ShiftStatusCompleted  ShiftStatus = "completed"
	ShiftStatusApproved   ShiftStatus = "approved"
	ShiftStatusCancelled  ShiftStatus = "cancelled"
)

// 生命周期的先后顺序，cancelled 不在其中，可以从任何未审批的状态进入
var shiftStatusOrder = []ShiftStatus{
	ShiftStatusDraft,
	ShiftStatusPublished,
	ShiftStatusAssigned,
	ShiftStatusInProgress,
	ShiftStatusCompleted,
	ShiftStatusApproved,
}

// CanAdvanceTo 判断状态是否只向前移动
func (s ShiftStatus) CanAdvanceTo(next ShiftStatus) bool {
	if s == ShiftStatusApproved || s == ShiftStatusCancelled {
		return false
	}
	if next == ShiftStatusCancelled {
		return true
	}
	from := slices.Index(shiftStatusOrder, s)
	to := slices.Index(shiftStatusOrder, next)
	return from >= 0 && to > from
}

// AcceptsClockIn 判断班次能否接受上班打卡，打卡只会让班次停留在 in_progress 或向前推进
func (s ShiftStatus) AcceptsClockIn() bool {
	if s == ShiftStatusDraft {
		return false
	}
	return s == ShiftStatusInProgress || s.CanAdvanceTo(ShiftStatusInProgress)
}

type Shift struct {
	ID              int64           `json:"id"`
	TenantID        int64           `json:"tenantID"`
	LocationID      int64           `json:"locationID"`
	Title           string          `json:"title"`
	StartTime       time.Time       `json:"startTime"`
	EndTime         time.Time       `json:"endTime"`
	Capacity        int32           `json:"capacity"`
	Price           decimal.Decimal `json:"price"`
	Status          ShiftStatus     `json:"status"`
	ScheduleGroupID uuid.UUID       `json:"scheduleGroupID"`
	CreatedAt       time.Time       `json:"createdAt"`
	Version         int32           `json:"-"`
}

// Overlaps 使用半开区间 [start, end) 判断是否重叠
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Commitment 是冲突检测时预取的一条已有派工
type Commitment struct {
	WorkerID     int64
	AssignmentID int64
	ShiftID      int64
	TenantID     int64
	Title        string
	StartTime    time.Time
	EndTime      time.Time
}
