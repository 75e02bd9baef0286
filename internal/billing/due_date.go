package billing

import (
	"time"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// DefaultDueDateSearchDays 缴费日之后寻找上课日的天数
const DefaultDueDateSearchDays = 7

// ResolveDueDate 推导某账期的缴费截止日
//
//  1. 缴费日超过当月天数时取月末
//  2. 从该日起 searchDays 天内寻找第一个上课日；找不到或无上课模式时用原日期
//  3. 结果早于 notBefore（通常为入学日）时顺延到下个月重新推导
func ResolveDueDate(year int, month time.Month, dueDay int, pattern model.ClassDays, notBefore time.Time, searchDays int) time.Time {
	due := dueDateInMonth(year, month, dueDay, pattern, searchDays)
	if !notBefore.IsZero() && due.Before(DateOf(notBefore)) {
		next := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
		due = dueDateInMonth(next.Year(), next.Month(), dueDay, pattern, searchDays)
	}
	return due
}

func dueDateInMonth(year int, month time.Month, dueDay int, pattern model.ClassDays, searchDays int) time.Time {
	last := DaysIn(year, month)
	if dueDay < 1 {
		dueDay = 1
	}
	if dueDay > last {
		dueDay = last
	}
	base := time.Date(year, month, dueDay, 0, 0, 0, 0, time.UTC)
	if len(pattern) == 0 {
		return base
	}
	if searchDays < 0 {
		searchDays = DefaultDueDateSearchDays
	}
	for i := 0; i <= searchDays; i++ {
		candidate := base.AddDate(0, 0, i)
		if pattern.HasWeekday(candidate.Weekday()) {
			return candidate
		}
	}
	return base
}
