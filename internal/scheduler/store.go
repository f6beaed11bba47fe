package scheduler

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// Store 是发布引擎依赖的存储，由 repository.Repository 实现
type Store interface {
	RateLimitStore
	IdempotencyStore

	GetLocation(ctx context.Context, id int64) (*domain.Location, error)
	GetShift(ctx context.Context, id int64) (*domain.Shift, error)

	// WithWorkerLocks 开启一个事务，按 ID 升序对每个工人加事务级锁后执行 fn，fn 返回错误时整个事务回滚
	WithWorkerLocks(ctx context.Context, workerIDs []int64, fn func(tx Tx) error) error
}

// Tx 是在同一个事务中执行的操作
type Tx interface {
	GetIdempotencyRecord(ctx context.Context, tenantID int64, key string, now time.Time) (*domain.IdempotencyRecord, error)
	// InsertIdempotencyRecord 在未过期的同名键已存在时返回 false
	InsertIdempotencyRecord(ctx context.Context, rec *domain.IdempotencyRecord) (bool, error)

	// ListCommitments 返回这些工人在 [from, to) 内所有未取消的派工，包括其它租户的
	ListCommitments(ctx context.Context, workerIDs []int64, from, to time.Time) ([]domain.Commitment, error)
	ListUnavailability(ctx context.Context, workerIDs []int64, from, to time.Time) ([]domain.Availability, error)
	ListAssignmentsByShift(ctx context.Context, shiftID int64) ([]*domain.Assignment, error)

	InsertShifts(ctx context.Context, shifts []*domain.Shift) error
	InsertAssignments(ctx context.Context, assignments []*domain.Assignment) error
	InsertAvailability(ctx context.Context, availability *domain.Availability) error
	InsertAuditEvent(ctx context.Context, event *domain.AuditEvent) error

	// AdvanceShiftStatus 只在班次仍处于 from 状态时更新，返回是否命中
	AdvanceShiftStatus(ctx context.Context, shiftID int64, from, to domain.ShiftStatus) (bool, error)
}

// Notifier 接收发布成功后的通知元组，投递方式不在这里关心
type Notifier interface {
	NotifyShiftsPublished(ctx context.Context, locationID int64, notifications []domain.ShiftNotification) error
}
