package domain

import (
	"errors"
	"fmt"
	"time"
)

type ErrorCode string

const (
	CodeValidation             ErrorCode = "VALIDATION_ERROR"
	CodePastDate               ErrorCode = "PAST_DATE"
	CodeRateLimited            ErrorCode = "RATE_LIMITED"
	CodeIdempotencyKeyConflict ErrorCode = "IDEMPOTENCY_KEY_CONFLICT"
	CodeOverlapConflict        ErrorCode = "OVERLAP_CONFLICT"
	CodeAvailabilityConflict   ErrorCode = "AVAILABILITY_CONFLICT"
	CodeDirtyTimesheet         ErrorCode = "DIRTY_TIMESHEET"
	CodeRaceCondition          ErrorCode = "RACE_CONDITION"
	CodeNotFound               ErrorCode = "NOT_FOUND"
	CodeForbidden              ErrorCode = "FORBIDDEN"
	CodeInvalidTransition      ErrorCode = "INVALID_TRANSITION"
)

// Error 是引擎对外暴露的结构化错误，Code 供调用方做机器判断，Message 直接展示给用户
type Error struct {
	Code       ErrorCode     `json:"code"`
	Message    string        `json:"message"`
	Details    any           `json:"details,omitempty"`
	RetryAfter time.Duration `json:"-"`
	Err        error         `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrorCodeOf 返回 err 链上第一个 *Error 的 Code，不存在时返回空字符串
func ErrorCodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ErrShiftStatusChanged 由存储层在条件更新影响 0 行时返回
var ErrShiftStatusChanged = errors.New("shift status changed concurrently")

// ErrPunchConflict 表示打卡的条件更新没有命中任何行
var ErrPunchConflict = errors.New("assignment punch changed concurrently")

// DirtyWorker 描述一个阻塞审批的派工
type DirtyWorker struct {
	AssignmentID int64  `json:"assignmentID"`
	WorkerID     int64  `json:"workerID"`
	Reason       string `json:"reason"`
}
