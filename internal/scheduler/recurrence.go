package scheduler

import (
	"slices"
	"time"

	"github.com/sysu-ecnc-dev/shift-manager/backend/internal/domain"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"

	// MaxExpandedDates 限制一次展开得到的日期数量，避免批次过大
	MaxExpandedDates = 365

	maxRecurrenceWeeks = 52
)

// ExpandDates 把锚点日期按重复规则展开成去重、升序的日期列表
//
// 重复规则为空或未启用时原样返回锚点日期（同样去重排序）。启用时以最早锚点所在周的周日为起点，
// 每次前进 1 周（weekly）或 2 周（biweekly），每周生成 DaysOfWeek 中的每一天，早于最早锚点的日期会被跳过。
// 展开在结束条件满足或达到 limit 时停止。锚点日期本身总是包含在结果中。limit <= 0 时使用 MaxExpandedDates。
func ExpandDates(anchors []string, rule *domain.Recurrence, limit int) ([]string, error) {
	if len(anchors) == 0 {
		return nil, domain.NewError(domain.CodeValidation, "至少需要选择一个日期")
	}
	if limit <= 0 || limit > MaxExpandedDates {
		limit = MaxExpandedDates
	}

	parsed := make([]time.Time, 0, len(anchors))
	for _, anchor := range anchors {
		d, err := time.Parse(dateLayout, anchor)
		if err != nil {
			return nil, domain.Errorf(domain.CodeValidation, "日期 %q 格式错误", anchor)
		}
		parsed = append(parsed, d)
	}

	seen := make(map[string]struct{}, len(parsed))
	dates := make([]string, 0, len(parsed))
	add := func(d time.Time) {
		s := d.Format(dateLayout)
		if _, exists := seen[s]; exists {
			return
		}
		seen[s] = struct{}{}
		dates = append(dates, s)
	}

	for _, d := range parsed {
		add(d)
	}

	if rule != nil && rule.Enabled {
		if err := ValidateRecurrence(rule); err != nil {
			return nil, err
		}

		earliest := slices.MinFunc(parsed, func(a, b time.Time) int { return a.Compare(b) })
		weekStart := earliest.AddDate(0, 0, -int(earliest.Weekday()))

		step := 1
		if rule.Pattern == domain.RecurrenceBiweekly {
			step = 2
		}

		days := slices.Clone(rule.DaysOfWeek)
		slices.Sort(days)
		days = slices.Compact(days)

		var endDate time.Time
		if rule.EndType == domain.RecurrenceEndOnDate {
			endDate, _ = time.Parse(dateLayout, rule.EndDate)
		}

		// 生成的日期是单调递增的，生成够 limit 个以后，后面的日期不可能进入截断后的结果
		generated := 0
	weeks:
		for w := 0; ; w++ {
			if rule.EndType == domain.RecurrenceEndAfterWeeks && w >= rule.Weeks {
				break
			}

			base := weekStart.AddDate(0, 0, w*step*7)
			if rule.EndType == domain.RecurrenceEndOnDate && base.After(endDate) {
				break
			}

			for _, day := range days {
				d := base.AddDate(0, 0, day)
				if d.Before(earliest) {
					continue
				}
				if rule.EndType == domain.RecurrenceEndOnDate && d.After(endDate) {
					break weeks
				}
				add(d)
				generated++
				if generated >= limit {
					break weeks
				}
			}
		}
	}

	slices.Sort(dates)
	if len(dates) > limit {
		dates = dates[:limit]
	}

	return dates, nil
}

// ValidateRecurrence 检查重复规则中结构体标签无法表达的跨字段约束
func ValidateRecurrence(rule *domain.Recurrence) error {
	if rule == nil || !rule.Enabled {
		return nil
	}

	switch rule.Pattern {
	case domain.RecurrenceWeekly, domain.RecurrenceBiweekly:
	default:
		return domain.Errorf(domain.CodeValidation, "不支持的重复模式 %q", rule.Pattern)
	}

	if len(rule.DaysOfWeek) == 0 {
		return domain.NewError(domain.CodeValidation, "重复规则至少需要选择一天")
	}
	for _, day := range rule.DaysOfWeek {
		if day < 0 || day > 6 {
			return domain.Errorf(domain.CodeValidation, "星期取值 %d 超出范围", day)
		}
	}

	switch rule.EndType {
	case domain.RecurrenceEndAfterWeeks:
		if rule.Weeks < 1 || rule.Weeks > maxRecurrenceWeeks {
			return domain.Errorf(domain.CodeValidation, "重复周数必须在 1 到 %d 之间", maxRecurrenceWeeks)
		}
	case domain.RecurrenceEndOnDate:
		if _, err := time.Parse(dateLayout, rule.EndDate); err != nil {
			return domain.NewError(domain.CodeValidation, "重复结束日期格式错误")
		}
	default:
		return domain.Errorf(domain.CodeValidation, "不支持的结束条件 %q", rule.EndType)
	}

	return nil
}
