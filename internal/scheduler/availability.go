package scheduler

import (
	"context"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

const maxAvailabilitySpan = 31 * 24 * time.Hour

type SetAvailabilityRequest struct {
	WorkerID  int64                   `validate:"required"`
	StartTime time.Time               `validate:"required"`
	EndTime   time.Time               `validate:"required"`
	Type      domain.AvailabilityType `validate:"required,oneof=unavailable preferred"`
	Reason    string                  `validate:"max=200"`
}

// SetAvailability 记录工人声明的时间段，unavailable 类型在发布时是硬性约束
func (c *Compiler) SetAvailability(ctx context.Context, req *SetAvailabilityRequest) (*domain.Availability, error) {
	if err := c.validate.Struct(req); err != nil {
		return nil, &domain.Error{Code: domain.CodeValidation, Message: "请求参数不合法", Err: err}
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, domain.NewError(domain.CodeValidation, "结束时间必须晚于开始时间")
	}
	if req.EndTime.Sub(req.StartTime) > maxAvailabilitySpan {
		return nil, domain.NewError(domain.CodeValidation, "单次声明的时间段不能超过 31 天")
	}

	availability := &domain.Availability{
		WorkerID:  req.WorkerID,
		StartTime: req.StartTime.UTC(),
		EndTime:   req.EndTime.UTC(),
		Type:      req.Type,
		Reason:    req.Reason,
	}

	// 与发布共用工人锁，保证并发的发布要么看到这条记录，要么先于它提交
	err := c.store.WithWorkerLocks(ctx, []int64{req.WorkerID}, func(tx Tx) error {
		return tx.InsertAvailability(ctx, availability)
	})
	if err != nil {
		return nil, err
	}

	return availability, nil
}
