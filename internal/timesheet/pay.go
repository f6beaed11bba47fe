package timesheet

import (
	"time"

	"github.com/shopspring/decimal"
)

var minutesPerHour = decimal.NewFromInt(60)

// EffectiveStart 在计划开始时间加宽限期之内（含）的上班打卡按计划开始时间计算，迟到则按实际时间计算
func EffectiveStart(actual, scheduledStart time.Time, grace time.Duration) time.Time {
	if actual.After(scheduledStart.Add(grace)) {
		return actual
	}
	return scheduledStart
}

// GrossPay 计算 ceil(billableMinutes / 60 * hourlyRate)，只向上取整到整数单位
func GrossPay(billableMinutes int32, hourlyRate decimal.Decimal) decimal.Decimal {
	if billableMinutes <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt32(billableMinutes).Mul(hourlyRate).Div(minutesPerHour).Ceil()
}
