package billing

import (
	"fmt"
	"regexp"
	"time"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

var yearMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// DateOf 取日历日期（UTC 零点），与数据库 date 列的扫描结果一致
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today 指定时区下的今天
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

// DaysIn 某月天数
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthStart 当月 1 日
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd 当月最后一天
func MonthEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}

// YearMonth 账期键 YYYY-MM
func YearMonth(t time.Time) string {
	return t.Format(model.YearMonthLayout)
}

// ParseYearMonth 严格解析 YYYY-MM，返回当月 1 日
func ParseYearMonth(s string) (time.Time, error) {
	if !yearMonthPattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("无效的年月格式 %q", s)
	}
	t, err := time.Parse(model.YearMonthLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// ClosedSlots 休课时段集合，键为 "YYYY-MM-DD|time_slot"
// 为 nil 时视为没有休课
type ClosedSlots map[string]bool

// ClosedKey 构造休课集合的键
func ClosedKey(date time.Time, timeSlot string) string {
	return date.Format(model.DateLayout) + "|" + timeSlot
}

// IsClosed 指定日期时段是否休课
func (c ClosedSlots) IsClosed(date time.Time, timeSlot string) bool {
	if c == nil {
		return false
	}
	return c[ClosedKey(date, timeSlot)]
}

// ClassDates 返回 [from, to] 内符合上课模式的日期（每个日期只出现一次）
// 某日期的全部上课时段都休课时该日期不计入
func ClassDates(pattern model.ClassDays, from, to time.Time, closed ClosedSlots) []time.Time {
	from, to = DateOf(from), DateOf(to)
	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		slots := pattern.SlotsOn(d.Weekday())
		if len(slots) == 0 {
			continue
		}
		for _, slot := range slots {
			if !closed.IsClosed(d, slot) {
				dates = append(dates, d)
				break
			}
		}
	}
	return dates
}

// CountClassDays [from, to] 闭区间内的上课日数
func CountClassDays(pattern model.ClassDays, from, to time.Time, closed ClosedSlots) int {
	return len(ClassDates(pattern, from, to, closed))
}

// InclusiveDays [from, to] 闭区间的自然日数，to 早于 from 时为 0
func InclusiveDays(from, to time.Time) int {
	from, to = DateOf(from), DateOf(to)
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}
