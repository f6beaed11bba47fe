package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

const (
	// MaxBatchShifts 限制一次发布生成的班次数量
	MaxBatchShifts = 2000

	// 预取已有派工时在批次范围两侧额外多取的时间，覆盖跨午夜的班次
	conflictBuffer = 24 * time.Hour
)

type Options struct {
	RateLimitWindow    time.Duration
	RateLimitMax       int
	IdempotencyTTL     time.Duration
	MaxRecurrenceDates int
	// DisplayLocation 是直接派工时向管理员展示时间所用的时区，默认 UTC
	DisplayLocation *time.Location
}

// Compiler 把一次发布请求编译成一批班次和派工并原子地写入
type Compiler struct {
	store    Store
	notifier Notifier
	validate *validator.Validate
	limiter  *RateLimiter
	guard    *IdempotencyGuard
	opts     Options
	now      func() time.Time
}

func NewCompiler(store Store, notifier Notifier, validate *validator.Validate, opts Options) *Compiler {
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = 10
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 7 * 24 * time.Hour
	}
	if opts.DisplayLocation == nil {
		opts.DisplayLocation = time.UTC
	}

	c := &Compiler{
		store:    store,
		notifier: notifier,
		validate: validate,
		limiter:  NewRateLimiter(store, opts.RateLimitWindow, opts.RateLimitMax),
		guard:    NewIdempotencyGuard(store, opts.IdempotencyTTL),
		opts:     opts,
		now:      time.Now,
	}
	c.limiter.now = func() time.Time { return c.now() }
	c.guard.now = func() time.Time { return c.now() }

	return c
}

type plannedShift struct {
	shift   *domain.Shift
	workers []int64
}

type publishPlan struct {
	shifts    []*plannedShift
	groupIDs  []uuid.UUID
	workerIDs []int64
	from      time.Time
	to        time.Time
}

// replayError 用于在事务内部发现并发的同键请求已经提交时中止事务
type replayError struct {
	result *domain.PublishResult
}

func (e *replayError) Error() string {
	return "idempotent replay"
}

// Publish 依次执行：校验 → 限流 → 幂等检查 → 过去日期检查 → 展开编译 → 批量冲突检测 → 提交
func (c *Compiler) Publish(ctx context.Context, req *domain.PublishRequest) (*domain.PublishResult, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, err
	}

	if err := c.limiter.Allow(ctx, req.TenantID); err != nil {
		return nil, err
	}

	hash, err := RequestHash(req)
	if err != nil {
		return nil, err
	}
	if result, err := c.guard.Check(ctx, req.TenantID, req.IdempotencyKey, hash); err != nil || result != nil {
		return result, err
	}

	location, err := c.store.GetLocation(ctx, req.LocationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewError(domain.CodeNotFound, "地点不存在")
		}
		return nil, err
	}
	if location.TenantID != req.TenantID {
		return nil, domain.NewError(domain.CodeForbidden, "无权在该地点发布班次")
	}

	tz, err := time.LoadLocation(req.Timezone)
	if err != nil {
		return nil, domain.Errorf(domain.CodeValidation, "无效的时区 %q", req.Timezone)
	}

	plan, err := c.compile(req, tz)
	if err != nil {
		return nil, err
	}

	result := &domain.PublishResult{
		CreatedShiftCount: len(plan.shifts),
		ScheduleGroupIDs:  plan.groupIDs,
	}

	err = c.store.WithWorkerLocks(ctx, plan.workerIDs, func(tx Tx) error {
		if req.IdempotencyKey != "" {
			// 拿到工人锁之后再查一次，避免把并发提交的同一批次误判为时间冲突
			rec, err := tx.GetIdempotencyRecord(ctx, req.TenantID, req.IdempotencyKey, c.now())
			switch {
			case err == nil:
				replay, err := replayOrConflict(rec, hash)
				if err != nil {
					return err
				}
				return &replayError{result: replay}
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}

		if err := c.detectConflicts(ctx, tx, req.TenantID, plan, tz); err != nil {
			return err
		}

		if req.IdempotencyKey != "" {
			rec := c.guard.NewRecord(req.TenantID, req.IdempotencyKey, hash, result)
			inserted, err := tx.InsertIdempotencyRecord(ctx, rec)
			if err != nil {
				return err
			}
			if !inserted {
				existing, err := tx.GetIdempotencyRecord(ctx, req.TenantID, req.IdempotencyKey, c.now())
				if err != nil {
					return err
				}
				replay, err := replayOrConflict(existing, hash)
				if err != nil {
					return err
				}
				return &replayError{result: replay}
			}
		}

		shifts := make([]*domain.Shift, len(plan.shifts))
		for i, ps := range plan.shifts {
			shifts[i] = ps.shift
		}
		if err := tx.InsertShifts(ctx, shifts); err != nil {
			return err
		}

		assignments := make([]*domain.Assignment, 0)
		for _, ps := range plan.shifts {
			for _, workerID := range ps.workers {
				assignments = append(assignments, &domain.Assignment{
					ShiftID:  ps.shift.ID,
					WorkerID: workerID,
					Status:   domain.AssignmentStatusActive,
				})
			}
		}
		if err := tx.InsertAssignments(ctx, assignments); err != nil {
			return err
		}

		return tx.InsertAuditEvent(ctx, &domain.AuditEvent{
			TenantID:   req.TenantID,
			ActorID:    req.ActorID,
			EntityType: "schedule",
			EntityID:   req.LocationID,
			Action:     "publish",
			NewStatus:  string(req.Status),
			Details: map[string]any{
				"shiftCount":      len(shifts),
				"assignmentCount": len(assignments),
				"idempotencyKey":  req.IdempotencyKey,
			},
		})
	})
	if err != nil {
		var replay *replayError
		if errors.As(err, &replay) {
			return replay.result, nil
		}
		return nil, err
	}

	slog.Info("已发布排班", "tenantID", req.TenantID, "locationID", req.LocationID, "shifts", result.CreatedShiftCount, "status", req.Status)

	if req.Status == domain.ShiftStatusPublished {
		c.notify(ctx, req.LocationID, plan)
	}

	return result, nil
}

func (c *Compiler) validateRequest(req *domain.PublishRequest) error {
	if err := c.validate.Struct(req); err != nil {
		return &domain.Error{Code: domain.CodeValidation, Message: "请求参数不合法", Err: err}
	}

	if err := ValidateRecurrence(req.Recurrence); err != nil {
		return err
	}

	for i, block := range req.Blocks {
		if block.StartTime == block.EndTime {
			return domain.Errorf(domain.CodeValidation, "第 %d 个班段的结束时间不能等于开始时间", i+1)
		}
		for j, position := range block.Positions {
			if position.Price.IsNegative() {
				return domain.Errorf(domain.CodeValidation, "第 %d 个班段的第 %d 个岗位的时薪不能为负数", i+1, j+1)
			}
			for _, workerID := range position.WorkerIDs {
				if workerID != nil && *workerID <= 0 {
					return domain.Errorf(domain.CodeValidation, "第 %d 个班段的第 %d 个岗位包含无效的工人 ID", i+1, j+1)
				}
			}
		}
	}

	return nil
}

// compile 展开日期并生成班次，同时拒绝早于今天的日期
func (c *Compiler) compile(req *domain.PublishRequest, tz *time.Location) (*publishPlan, error) {
	today := Today(c.now(), tz)

	expanded := make([][]string, len(req.Blocks))
	var pastDates []string
	total := 0
	for i, block := range req.Blocks {
		dates, err := ExpandDates(block.Dates, req.Recurrence, c.opts.MaxRecurrenceDates)
		if err != nil {
			return nil, err
		}
		for _, date := range dates {
			// YYYY-MM-DD 可以直接按字典序比较
			if date < today {
				pastDates = append(pastDates, date)
			}
		}
		expanded[i] = dates
		total += len(dates) * len(block.Positions)
	}

	if len(pastDates) > 0 {
		slices.Sort(pastDates)
		pastDates = slices.Compact(pastDates)
		return nil, &domain.Error{
			Code:    domain.CodePastDate,
			Message: "不能发布早于今天的班次：" + strings.Join(pastDates, "、"),
			Details: map[string]any{"dates": pastDates},
		}
	}

	if total > MaxBatchShifts {
		return nil, domain.Errorf(domain.CodeValidation, "一次最多发布 %d 个班次", MaxBatchShifts)
	}

	plan := &publishPlan{}
	workerSet := make(map[int64]struct{})
	for i, block := range req.Blocks {
		for _, date := range expanded[i] {
			start, end, err := CompileWindow(date, block.StartTime, block.EndTime, tz)
			if err != nil {
				return nil, err
			}

			groupID := uuid.New()
			plan.groupIDs = append(plan.groupIDs, groupID)

			for _, position := range block.Positions {
				ps := &plannedShift{
					shift: &domain.Shift{
						TenantID:        req.TenantID,
						LocationID:      req.LocationID,
						Title:           position.Title,
						StartTime:       start,
						EndTime:         end,
						Capacity:        int32(len(position.WorkerIDs)),
						Price:           position.Price,
						Status:          req.Status,
						ScheduleGroupID: groupID,
					},
				}
				for _, workerID := range position.WorkerIDs {
					if workerID == nil {
						continue
					}
					ps.workers = append(ps.workers, *workerID)
					workerSet[*workerID] = struct{}{}
				}
				plan.shifts = append(plan.shifts, ps)

				if plan.from.IsZero() || start.Before(plan.from) {
					plan.from = start
				}
				if end.After(plan.to) {
					plan.to = end
				}
			}
		}
	}

	for workerID := range workerSet {
		plan.workerIDs = append(plan.workerIDs, workerID)
	}
	slices.Sort(plan.workerIDs)

	return plan, nil
}

// detectConflicts 一次性预取所有相关数据，然后逐个候选在内存中检测，遇到第一个冲突就中止
func (c *Compiler) detectConflicts(ctx context.Context, tx Tx, tenantID int64, plan *publishPlan, tz *time.Location) error {
	if len(plan.workerIDs) == 0 {
		return nil
	}

	from := plan.from.Add(-conflictBuffer)
	to := plan.to.Add(conflictBuffer)

	commitments, err := tx.ListCommitments(ctx, plan.workerIDs, from, to)
	if err != nil {
		return err
	}
	availabilities, err := tx.ListUnavailability(ctx, plan.workerIDs, from, to)
	if err != nil {
		return err
	}

	detector := NewConflictDetector(tenantID, commitments, availabilities)
	for _, ps := range plan.shifts {
		for _, workerID := range ps.workers {
			conflict := detector.Stage(workerID, ps.shift.StartTime, ps.shift.EndTime, ps.shift.Title)
			if conflict.Kind != NoConflict {
				return conflictError(conflict, tz)
			}
		}
	}

	return nil
}

func (c *Compiler) notify(ctx context.Context, locationID int64, plan *publishPlan) {
	if c.notifier == nil {
		return
	}

	notifications := make([]domain.ShiftNotification, 0)
	for _, ps := range plan.shifts {
		for _, workerID := range ps.workers {
			notifications = append(notifications, domain.ShiftNotification{
				WorkerID:        workerID,
				ShiftID:         ps.shift.ID,
				ScheduleGroupID: ps.shift.ScheduleGroupID,
				Title:           ps.shift.Title,
				StartTime:       ps.shift.StartTime,
				EndTime:         ps.shift.EndTime,
				Status:          ps.shift.Status,
			})
		}
	}
	if len(notifications) == 0 {
		return
	}

	// 批次已经提交，通知失败只记录日志
	if err := c.notifier.NotifyShiftsPublished(ctx, locationID, notifications); err != nil {
		c.logNotifyError(locationID, len(notifications), err)
	}
}

func (c *Compiler) logNotifyError(locationID int64, count int, err error) {
	slog.Error("无法投递班次通知", "locationID", locationID, "count", count, "error", err)
}
