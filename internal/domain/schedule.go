package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RecurrencePattern string

const (
	RecurrenceWeekly   RecurrencePattern = "weekly"
	RecurrenceBiweekly RecurrencePattern = "biweekly"
)

type RecurrenceEnd string

const (
	RecurrenceEndAfterWeeks RecurrenceEnd = "after_weeks"
	RecurrenceEndOnDate     RecurrenceEnd = "on_date"
)

type Recurrence struct {
	Enabled    bool              `json:"enabled"`
	Pattern    RecurrencePattern `json:"pattern" validate:"omitempty,oneof=weekly biweekly"`
	DaysOfWeek []int             `json:"daysOfWeek" validate:"max=7,dive,min=0,max=6"`
	EndType    RecurrenceEnd     `json:"endType" validate:"omitempty,oneof=after_weeks on_date"`
	Weeks      int               `json:"weeks" validate:"omitempty,min=1,max=52"`
	EndDate    string            `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// Position 是一个班段中的一个岗位，WorkerIDs 中的 nil 表示空缺
type Position struct {
	Title     string          `json:"title" validate:"required,max=120"`
	Price     decimal.Decimal `json:"price"`
	WorkerIDs []*int64        `json:"workerIDs" validate:"required,min=1,max=50"`
}

type ScheduleBlock struct {
	Dates     []string   `json:"dates" validate:"required,min=1,max=31,dive,datetime=2006-01-02"`
	StartTime string     `json:"startTime" validate:"required,datetime=15:04"`
	EndTime   string     `json:"endTime" validate:"required,datetime=15:04"`
	Positions []Position `json:"positions" validate:"required,min=1,max=20,dive"`
}

type PublishRequest struct {
	TenantID       int64           `json:"tenantID" validate:"required"`
	ActorID        int64           `json:"-"`
	IdempotencyKey string          `json:"-" validate:"omitempty,max=200"`
	LocationID     int64           `json:"locationID" validate:"required"`
	Timezone       string          `json:"timezone" validate:"required,timezone"`
	Recurrence     *Recurrence     `json:"recurrence" validate:"omitempty"`
	Status         ShiftStatus     `json:"status" validate:"required,oneof=draft published"`
	Blocks         []ScheduleBlock `json:"blocks" validate:"required,min=1,max=20,dive"`
}

type PublishResult struct {
	CreatedShiftCount int         `json:"createdShiftCount"`
	ScheduleGroupIDs  []uuid.UUID `json:"scheduleGroupIDs"`
	Replayed          bool        `json:"replayed"`
}

// IdempotencyRecord 保存一次发布的结果，在同一个事务中与班次一起写入
type IdempotencyRecord struct {
	TenantID          int64
	Key               string
	RequestHash       string
	CreatedShiftCount int
	ScheduleGroupIDs  []uuid.UUID
	CreatedAt         time.Time
	ExpiresAt         time.Time
}

type RateLimitState struct {
	TenantKey    string
	RequestCount int
	WindowStart  time.Time
}

// ShiftNotification 是发布成功后交给通知组件的一条 (工人, 班次, 班组) 元组
type ShiftNotification struct {
	WorkerID        int64       `json:"workerID"`
	ShiftID         int64       `json:"shiftID"`
	ScheduleGroupID uuid.UUID   `json:"scheduleGroupID"`
	Title           string      `json:"title"`
	StartTime       time.Time   `json:"startTime"`
	EndTime         time.Time   `json:"endTime"`
	Status          ShiftStatus `json:"status"`
}
