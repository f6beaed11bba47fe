package scheduler

import (
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

type ConflictKind int

const (
	NoConflict ConflictKind = iota
	InternalConflict
	ExternalBusy
	Unavailable
)

// Conflict 是一次冲突检测的结果
//
// Title 和 Start 只在 InternalConflict 时填写，其它租户的班次信息不会出现在这里。
type Conflict struct {
	Kind     ConflictKind
	WorkerID int64
	Title    string
	Start    time.Time
	Reason   string
	Staged   bool // 与本批次中另一个尚未写入的班次冲突
}

type interval struct {
	title string
	start time.Time
	end   time.Time
}

// ConflictDetector 在预取的数据上做内存中的重叠检测
//
// 预取由调用方在一次查询中完成，覆盖整个批次涉及的所有工人和日期范围。
type ConflictDetector struct {
	tenantID    int64
	commitments map[int64][]domain.Commitment
	unavailable map[int64][]domain.Availability
	staged      map[int64][]interval
}

func NewConflictDetector(tenantID int64, commitments []domain.Commitment, availabilities []domain.Availability) *ConflictDetector {
	d := &ConflictDetector{
		tenantID:    tenantID,
		commitments: make(map[int64][]domain.Commitment),
		unavailable: make(map[int64][]domain.Availability),
		staged:      make(map[int64][]interval),
	}

	for _, c := range commitments {
		d.commitments[c.WorkerID] = append(d.commitments[c.WorkerID], c)
	}
	for _, a := range availabilities {
		if a.Type != domain.AvailabilityUnavailable {
			continue
		}
		d.unavailable[a.WorkerID] = append(d.unavailable[a.WorkerID], a)
	}

	return d
}

// Check 只和已经存在的派工及不可用时间比较
func (d *ConflictDetector) Check(workerID int64, start, end time.Time) Conflict {
	for _, a := range d.unavailable[workerID] {
		if domain.Overlaps(a.StartTime, a.EndTime, start, end) {
			return Conflict{Kind: Unavailable, WorkerID: workerID, Reason: a.Reason}
		}
	}

	for _, c := range d.commitments[workerID] {
		if !domain.Overlaps(c.StartTime, c.EndTime, start, end) {
			continue
		}
		if c.TenantID != d.tenantID {
			return Conflict{Kind: ExternalBusy, WorkerID: workerID}
		}
		return Conflict{Kind: InternalConflict, WorkerID: workerID, Title: c.Title, Start: c.StartTime}
	}

	return Conflict{Kind: NoConflict, WorkerID: workerID}
}

// Stage 在 Check 的基础上再和本批次已经暂存的候选比较，无冲突时把候选加入暂存
func (d *ConflictDetector) Stage(workerID int64, start, end time.Time, title string) Conflict {
	if c := d.Check(workerID, start, end); c.Kind != NoConflict {
		return c
	}

	for _, s := range d.staged[workerID] {
		if domain.Overlaps(s.start, s.end, start, end) {
			return Conflict{Kind: InternalConflict, WorkerID: workerID, Title: s.title, Start: s.start, Staged: true}
		}
	}

	d.staged[workerID] = append(d.staged[workerID], interval{title: title, start: start, end: end})
	return Conflict{Kind: NoConflict, WorkerID: workerID}
}

// conflictError 把冲突转换为对外的错误，跨租户冲突只报告“不可用”
func conflictError(c Conflict, loc *time.Location) error {
	switch c.Kind {
	case InternalConflict:
		details := map[string]any{
			"workerID":   c.WorkerID,
			"shiftTitle": c.Title,
			"startTime":  c.Start,
		}
		if c.Staged {
			return &domain.Error{
				Code:    domain.CodeOverlapConflict,
				Message: fmt.Sprintf("工人 %d 在本次发布中被安排到了时间重叠的班次「%s」（%s）", c.WorkerID, c.Title, c.Start.In(loc).Format("2006-01-02 15:04")),
				Details: details,
			}
		}
		return &domain.Error{
			Code:    domain.CodeOverlapConflict,
			Message: fmt.Sprintf("工人 %d 与已有班次「%s」（%s）时间冲突", c.WorkerID, c.Title, c.Start.In(loc).Format("2006-01-02 15:04")),
			Details: details,
		}
	case ExternalBusy:
		return &domain.Error{
			Code:    domain.CodeAvailabilityConflict,
			Message: fmt.Sprintf("工人 %d 在该时间段不可用", c.WorkerID),
			Details: map[string]any{"workerID": c.WorkerID},
		}
	case Unavailable:
		return &domain.Error{
			Code:    domain.CodeAvailabilityConflict,
			Message: fmt.Sprintf("工人 %d 已声明该时间段不可用", c.WorkerID),
			Details: map[string]any{"workerID": c.WorkerID, "reason": c.Reason},
		}
	default:
		return nil
	}
}
