package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// 计费模式
const (
	ModeFull      = "full"
	ModeClassDays = "class_days"
	ModeCalendar  = "calendar"
	ModeWeekly    = "weekly_count"
)

// Amount 一次计费结果
type Amount struct {
	Base          int64  `json:"base_amount"`
	Discount      int64  `json:"discount_amount"`
	Final         int64  `json:"final_amount"`
	TotalDays     int    `json:"total_days"`
	RemainingDays int    `json:"remaining_days"`
	Prorated      bool   `json:"is_prorated"`
	Mode          string `json:"mode"`
}

// Calculator 学费计算器；三种按比例计费公式刻意保持独立
type Calculator struct {
	unit int64
}

// NewCalculator 创建计算器，unit 为金额截断单位
func NewCalculator(unit int64) *Calculator {
	if unit <= 0 {
		unit = DefaultUnit
	}
	return &Calculator{unit: unit}
}

// Unit 截断单位
func (c *Calculator) Unit() int64 { return c.unit }

// Truncate 按计算器单位截断
func (c *Calculator) Truncate(amount decimal.Decimal) int64 {
	return TruncateToUnit(amount, c.unit)
}

// prorate tuition * part / whole；whole 为 0 或 part 覆盖整段时返回全额
func (c *Calculator) prorate(tuition int64, part, whole int) (int64, bool) {
	if whole <= 0 || part >= whole {
		return tuition, false
	}
	if part <= 0 {
		return 0, true
	}
	return c.Truncate(ratio(tuition, part, whole)), true
}

// Discount discount = truncate(base * rate / 100)，final = base - discount
func (c *Calculator) Discount(base int64, rate decimal.Decimal) (discount, final int64) {
	if base <= 0 || !rate.IsPositive() {
		return 0, base
	}
	discount = c.Truncate(decimal.NewFromInt(base).Mul(rate).Div(hundred))
	if discount > base {
		discount = base
	}
	return discount, base - discount
}

func (c *Calculator) withDiscount(a Amount, rate decimal.Decimal) Amount {
	a.Discount, a.Final = c.Discount(a.Base, rate)
	return a
}

// ────────────────────── 入学（按上课日比例） ──────────────────────

// EnrollmentInput 入学计费参数
type EnrollmentInput struct {
	MonthlyTuition int64
	Pattern        model.ClassDays
	StartDate      time.Time
	DiscountRate   decimal.Decimal
	Closed         ClosedSlots
}

// Enrollment base = truncate(tuition * 剩余上课日 / 当月上课日)
// 没有上课模式时按自然日：truncate(tuition * 剩余天数 / 当月天数)
func (c *Calculator) Enrollment(in EnrollmentInput) Amount {
	start := DateOf(in.StartDate)
	monthStart, monthEnd := MonthStart(start), MonthEnd(start)

	a := Amount{Mode: ModeClassDays}
	if len(in.Pattern) > 0 {
		a.TotalDays = CountClassDays(in.Pattern, monthStart, monthEnd, in.Closed)
		a.RemainingDays = CountClassDays(in.Pattern, start, monthEnd, in.Closed)
	} else {
		a.Mode = ModeCalendar
		a.TotalDays = DaysIn(start.Year(), start.Month())
		a.RemainingDays = InclusiveDays(start, monthEnd)
	}

	a.Base, a.Prorated = c.prorate(in.MonthlyTuition, a.RemainingDays, a.TotalDays)
	if !a.Prorated {
		a.Mode = ModeFull
	}
	return c.withDiscount(a, in.DiscountRate)
}

// ────────────────────── 休学 ──────────────────────

// PauseInput 休学计费参数
type PauseInput struct {
	OriginalFinal int64 // 当月账单原应缴金额
	PaidAmount    int64
	Pattern       model.ClassDays
	PauseDate     time.Time
	Closed        ClosedSlots
}

// PauseOutcome 休学计费结果
type PauseOutcome struct {
	AttendedDays  int   `json:"attended_days"`
	DaysInMonth   int   `json:"days_in_month"`
	Unclamped     int64 `json:"unclamped_amount"` // truncate(original * attended / daysInMonth)
	Adjusted      int64 `json:"adjusted_amount"`  // max(unclamped, paid)
	Unattended    int64 `json:"unattended_amount"`
	DeletePayment bool  `json:"delete_payment"`
}

// Pause 已上天数 = 月初至休学前一日的上课日（无模式时按自然日），
// adjusted = truncate(original * 已上天数 / 当月天数)，不低于已缴金额；
// 一天未上且未缴费时账单直接删除
func (c *Calculator) Pause(in PauseInput) PauseOutcome {
	pause := DateOf(in.PauseDate)
	out := PauseOutcome{DaysInMonth: DaysIn(pause.Year(), pause.Month())}

	if pause.Day() > 1 {
		dayBefore := pause.AddDate(0, 0, -1)
		if len(in.Pattern) > 0 {
			out.AttendedDays = CountClassDays(in.Pattern, MonthStart(pause), dayBefore, in.Closed)
		} else {
			out.AttendedDays = dayBefore.Day()
		}
	}

	out.Unclamped, _ = c.prorate(in.OriginalFinal, out.AttendedDays, out.DaysInMonth)
	out.Unattended = in.OriginalFinal - out.Unclamped
	if out.Unattended < 0 {
		out.Unattended = 0
	}

	if out.AttendedDays == 0 && in.PaidAmount <= 0 {
		out.DeletePayment = true
		return out
	}

	out.Adjusted = out.Unclamped
	if in.PaidAmount > out.Adjusted {
		out.Adjusted = in.PaidAmount
	}
	return out
}

// ────────────────────── 复学（每周次数 × 4 近似） ──────────────────────

// ResumeInput 复学计费参数
type ResumeInput struct {
	MonthlyTuition int64
	Pattern        model.ClassDays
	WeeklyCount    int
	ResumeDate     time.Time
	DiscountRate   decimal.Decimal
	Closed         ClosedSlots
}

// Resume 当月总次数取 weeklyCount*4，剩余次数为复学日至月末的上课日（无模式时按自然日），
// 剩余次数不超过总次数；1 日复学不做按比例计费
func (c *Calculator) Resume(in ResumeInput) Amount {
	resume := DateOf(in.ResumeDate)
	weekly := in.WeeklyCount
	if len(in.Pattern) > 0 {
		weekly = len(in.Pattern)
	}
	if weekly <= 0 {
		weekly = 2
	}

	a := Amount{Mode: ModeWeekly, TotalDays: weekly * 4}
	if len(in.Pattern) > 0 {
		a.RemainingDays = CountClassDays(in.Pattern, resume, MonthEnd(resume), in.Closed)
	} else {
		a.RemainingDays = InclusiveDays(resume, MonthEnd(resume))
	}
	if a.RemainingDays > a.TotalDays {
		a.RemainingDays = a.TotalDays
	}

	if resume.Day() == 1 {
		a.Base, a.Mode = in.MonthlyTuition, ModeFull
	} else {
		a.Base, a.Prorated = c.prorate(in.MonthlyTuition, a.RemainingDays, a.TotalDays)
		if !a.Prorated {
			a.Mode = ModeFull
		}
	}
	return c.withDiscount(a, in.DiscountRate)
}

// ────────────────────── 积分金额 ──────────────────────

// PerClassFee 单次课费 = truncate(tuition / (weeklyCount*4))
func (c *Calculator) PerClassFee(monthlyTuition int64, weeklyCount int) int64 {
	if weeklyCount <= 0 {
		weeklyCount = 2
	}
	return c.Truncate(ratio(monthlyTuition, 1, weeklyCount*4))
}

// ClassCountCredit 按次数补偿 = truncate(perClassFee * count)
func (c *Calculator) ClassCountCredit(perClassFee int64, count int) int64 {
	if count <= 0 || perClassFee <= 0 {
		return 0
	}
	return c.Truncate(decimal.NewFromInt(perClassFee).Mul(decimal.NewFromInt(int64(count))))
}

// FifthWeekClassCount 当月超出 weekdays*4 的上课次数（第五周赠课）
func FifthWeekClassCount(year int, month time.Month, pattern model.ClassDays) int {
	weekdays := len(pattern.Weekdays())
	if weekdays == 0 {
		return 0
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	actual := CountClassDays(pattern, first, MonthEnd(first), nil)
	if extra := actual - weekdays*4; extra > 0 {
		return extra
	}
	return 0
}

// ExcusedCredit 公假积分：单次课费不先截断，amount = truncate(tuition / (weekdays*4) * count)
func (c *Calculator) ExcusedCredit(monthlyTuition int64, pattern model.ClassDays, count int) int64 {
	weekdays := len(pattern.Weekdays())
	if weekdays == 0 || count <= 0 || monthlyTuition <= 0 {
		return 0
	}
	return c.Truncate(ratio(monthlyTuition, count, weekdays*4))
}
