package model

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// 上课时段
const (
	TimeSlotMorning   = "morning"
	TimeSlotAfternoon = "afternoon"
	TimeSlotEvening   = "evening"
)

// ValidTimeSlot 判断时段取值是否合法
func ValidTimeSlot(slot string) bool {
	switch slot {
	case TimeSlotMorning, TimeSlotAfternoon, TimeSlotEvening:
		return true
	}
	return false
}

// weekdayNames 历史数据中的星期写法 → 0(日)..6(六)
var weekdayNames = map[string]int{
	"일": 0, "월": 1, "화": 2, "수": 3, "목": 4, "금": 5, "토": 6,
	"일요일": 0, "월요일": 1, "화요일": 2, "수요일": 3, "목요일": 4, "금요일": 5, "토요일": 6,
	"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
}

// ClassDay 每周固定上课的一个（星期, 时段）组合
type ClassDay struct {
	Day      int    `json:"day"` // 0=周日 … 6=周六
	TimeSlot string `json:"timeSlot"`
}

// ClassDays 学生的每周上课模式，存储为 JSONB 数组 [{"day":1,"timeSlot":"evening"}]
//
// 解码时统一归一化：兼容 [1,3,5]、["월","수"]、"1,3,5" 以及对象数组，
// 业务代码只会见到 {Day, TimeSlot} 形式。
type ClassDays []ClassDay

// ParseClassDays 将任意历史格式解析为归一化的 ClassDays。
// defaultSlot 用于未携带时段的条目，为空时保留空串由调用方补齐。
func ParseClassDays(raw []byte, defaultSlot string) (ClassDays, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("ClassDays: 无法解析 %q: %w", raw, err)
		}
	} else {
		// "1,3,5" / "월,수,금"
		var s string
		if raw[0] == '"' {
			if err := json.Unmarshal(raw, &s); err != nil {
				return nil, fmt.Errorf("ClassDays: 无法解析 %q: %w", raw, err)
			}
		} else {
			s = string(raw)
		}
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			items = append(items, json.RawMessage(strconv.Quote(part)))
		}
	}

	days := make(ClassDays, 0, len(items))
	for _, item := range items {
		d, err := parseClassDayItem(item, defaultSlot)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days.Normalize(defaultSlot), nil
}

func parseClassDayItem(item json.RawMessage, defaultSlot string) (ClassDay, error) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return ClassDay{}, fmt.Errorf("ClassDays: 空元素")
	}

	switch item[0] {
	case '{':
		var obj struct {
			Day       *json.RawMessage `json:"day"`
			TimeSlot  string           `json:"timeSlot"`
			TimeSlot2 string           `json:"time_slot"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return ClassDay{}, fmt.Errorf("ClassDays: 无效元素 %s: %w", item, err)
		}
		if obj.Day == nil {
			return ClassDay{}, fmt.Errorf("ClassDays: 元素缺少 day: %s", item)
		}
		d, err := parseClassDayItem(*obj.Day, defaultSlot)
		if err != nil {
			return ClassDay{}, err
		}
		slot := obj.TimeSlot
		if slot == "" {
			slot = obj.TimeSlot2
		}
		if slot != "" {
			if !ValidTimeSlot(slot) {
				return ClassDay{}, fmt.Errorf("ClassDays: 无效时段 %q", slot)
			}
			d.TimeSlot = slot
		}
		return d, nil
	case '"':
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return ClassDay{}, fmt.Errorf("ClassDays: 无效元素 %s: %w", item, err)
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if n, err := strconv.Atoi(s); err == nil {
			return newClassDay(n, defaultSlot)
		}
		if len(s) > 3 && !strings.HasSuffix(s, "요일") {
			s = s[:3]
		}
		n, ok := weekdayNames[s]
		if !ok {
			return ClassDay{}, fmt.Errorf("ClassDays: 无法识别的星期 %q", s)
		}
		return newClassDay(n, defaultSlot)
	default:
		n, err := strconv.Atoi(string(item))
		if err != nil {
			return ClassDay{}, fmt.Errorf("ClassDays: 无效元素 %s", item)
		}
		return newClassDay(n, defaultSlot)
	}
}

func newClassDay(day int, slot string) (ClassDay, error) {
	if day < 0 || day > 6 {
		return ClassDay{}, fmt.Errorf("ClassDays: 星期超出范围 %d", day)
	}
	return ClassDay{Day: day, TimeSlot: slot}, nil
}

// Normalize 补齐缺省时段、去重并按（星期, 时段）排序
func (d ClassDays) Normalize(defaultSlot string) ClassDays {
	if d == nil {
		return nil
	}
	seen := make(map[ClassDay]bool, len(d))
	out := make(ClassDays, 0, len(d))
	for _, cd := range d {
		if cd.TimeSlot == "" {
			cd.TimeSlot = defaultSlot
		}
		if seen[cd] {
			continue
		}
		seen[cd] = true
		out = append(out, cd)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].TimeSlot < out[j].TimeSlot
	})
	return out
}

// Weekdays 返回去重后的星期集合（升序）
func (d ClassDays) Weekdays() []int {
	seen := make(map[int]bool, len(d))
	var out []int
	for _, cd := range d {
		if !seen[cd.Day] {
			seen[cd.Day] = true
			out = append(out, cd.Day)
		}
	}
	sort.Ints(out)
	return out
}

// SlotsOn 返回指定星期需要上课的时段
func (d ClassDays) SlotsOn(wd time.Weekday) []string {
	var slots []string
	for _, cd := range d {
		if cd.Day == int(wd) {
			slots = append(slots, cd.TimeSlot)
		}
	}
	return slots
}

// HasWeekday 是否包含指定星期
func (d ClassDays) HasWeekday(wd time.Weekday) bool {
	for _, cd := range d {
		if cd.Day == int(wd) {
			return true
		}
	}
	return false
}

// Equal 归一化后逐项比较
func (d ClassDays) Equal(other ClassDays) bool {
	a, b := d.Normalize(""), other.Normalize("")
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// UnmarshalJSON 请求体中的上课模式同样走归一化
func (d *ClassDays) UnmarshalJSON(data []byte) error {
	days, err := ParseClassDays(data, "")
	if err != nil {
		return err
	}
	*d = days
	return nil
}

// Scan 实现 sql.Scanner
func (d *ClassDays) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("ClassDays.Scan: unsupported type %T", src)
	}
	days, err := ParseClassDays(raw, TimeSlotEvening)
	if err != nil {
		return err
	}
	if days == nil {
		days = ClassDays{}
	}
	*d = days
	return nil
}

// Value 实现 driver.Valuer，nil 存为空数组
func (d ClassDays) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]ClassDay(d))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// TrialDate 体验课日期
type TrialDate struct {
	Date     string `json:"date"` // YYYY-MM-DD
	TimeSlot string `json:"time_slot"`
	Attended bool   `json:"attended,omitempty"`
}
