package scheduler

import (
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

// CompileInstant 把某个时区的本地日期和 "HH:MM" 时间转换为绝对时间
//
// 夏令时跳过的时刻由 time.Date 规范化到跳变之后。
func CompileInstant(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, domain.Errorf(domain.CodeValidation, "日期 %q 格式错误", date)
	}
	c, err := time.Parse(clockLayout, clock)
	if err != nil {
		return time.Time{}, domain.Errorf(domain.CodeValidation, "时间 %q 格式错误", clock)
	}

	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), 0, 0, loc), nil
}

// CompileWindow 计算班次的起止时间（UTC）
//
// 结束时间早于开始时间时视为跨午夜，结束日期按日历加一天，而不是加 24 小时。
func CompileWindow(date, start, end string, loc *time.Location) (time.Time, time.Time, error) {
	startAt, err := CompileInstant(date, start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endAt, err := CompileInstant(date, end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	if endAt.Equal(startAt) {
		return time.Time{}, time.Time{}, domain.NewError(domain.CodeValidation, "班次的结束时间不能等于开始时间")
	}

	if endAt.Before(startAt) {
		d, _ := time.Parse(dateLayout, date)
		c, _ := time.Parse(clockLayout, end)
		endAt = time.Date(d.Year(), d.Month(), d.Day()+1, c.Hour(), c.Minute(), 0, 0, loc)
	}

	return startAt.UTC(), endAt.UTC(), nil
}

// Today 返回 now 在 loc 时区下的日期
func Today(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(dateLayout)
}
