package dto

import (
	"github.com/shopspring/decimal"

	"github.com/seanyjeong/pacapro-sub001/internal/model"
	pkgerrors "github.com/seanyjeong/pacapro-sub001/pkg/errors"
)

// ── 学生模块请求 ──

// CreateStudentRequest 登记学生
type CreateStudentRequest struct {
	Name           string            `json:"name"            binding:"required,max=100"`
	StudentNumber  *string           `json:"student_number"  binding:"omitempty,max=20"`
	Grade          string            `json:"grade"           binding:"omitempty,max=10"`
	StudentType    string            `json:"student_type"    binding:"omitempty,oneof=exam adult"`
	Status         string            `json:"status"          binding:"omitempty,oneof=pending trial active"`
	ClassDays      model.ClassDays   `json:"class_days"`
	TimeSlot       string            `json:"time_slot"       binding:"omitempty,oneof=morning afternoon evening"`
	MonthlyTuition int64             `json:"monthly_tuition" binding:"min=0"`
	DiscountRate   decimal.Decimal   `json:"discount_rate"`
	PaymentDueDay  *int              `json:"payment_due_day" binding:"omitempty,min=1,max=31"`
	EnrollmentDate string            `json:"enrollment_date" binding:"omitempty,datetime=2006-01-02"`
	TrialRemaining *int              `json:"trial_remaining" binding:"omitempty,min=0"`
	TrialDates     []model.TrialDate `json:"trial_dates"`
	Memo           string            `json:"memo"`
}

// UpdateStudentRequest 修改学生信息，字段为 nil 表示不修改
// class_days_effective_from 晚于今天时上课模式改为预约变更，由定时任务在生效日切换
type UpdateStudentRequest struct {
	Name                   *string            `json:"name"                      binding:"omitempty,max=100"`
	StudentNumber          *string            `json:"student_number"            binding:"omitempty,max=20"`
	Grade                  *string            `json:"grade"                     binding:"omitempty,max=10"`
	StudentType            *string            `json:"student_type"              binding:"omitempty,oneof=exam adult"`
	Status                 *string            `json:"status"                    binding:"omitempty,oneof=pending trial active paused withdrawn graduated"`
	ClassDays              *model.ClassDays   `json:"class_days"`
	ClassDaysEffectiveFrom *string            `json:"class_days_effective_from" binding:"omitempty,datetime=2006-01-02"`
	TimeSlot               *string            `json:"time_slot"                 binding:"omitempty,oneof=morning afternoon evening"`
	MonthlyTuition         *int64             `json:"monthly_tuition"           binding:"omitempty,min=0"`
	DiscountRate           *decimal.Decimal   `json:"discount_rate"`
	PaymentDueDay          *int               `json:"payment_due_day"           binding:"omitempty,min=1,max=31"`
	TrialRemaining         *int               `json:"trial_remaining"           binding:"omitempty,min=0"`
	TrialDates             *[]model.TrialDate `json:"trial_dates"`
	Memo                   *string            `json:"memo"`
}

// RestRequest 休学
type RestRequest struct {
	RestStartDate string `json:"rest_start_date" binding:"required,datetime=2006-01-02"`
	RestEndDate   string `json:"rest_end_date"   binding:"omitempty,datetime=2006-01-02"`
	Reason        string `json:"reason"          binding:"omitempty,max=255"`
	CreditType    string `json:"credit_type"     binding:"omitempty,oneof=carryover refund none"`
}

// ResumeRequest 复学，resume_date 缺省为今天
type ResumeRequest struct {
	ResumeDate string `json:"resume_date" binding:"omitempty,datetime=2006-01-02"`
}

// WithdrawRequest 退学或毕业，status 缺省为 withdrawn，date 缺省为今天
type WithdrawRequest struct {
	Status string `json:"status" binding:"omitempty,oneof=withdrawn graduated"`
	Reason string `json:"reason" binding:"omitempty,max=255"`
	Date   string `json:"date"   binding:"omitempty,datetime=2006-01-02"`
}

// BulkClassDaysItem 批量修改中的单个学生
type BulkClassDaysItem struct {
	ID        string          `json:"id"         binding:"required"`
	ClassDays model.ClassDays `json:"class_days" binding:"required"`
}

// BulkClassDaysRequest 批量修改上课模式，effective_from 晚于今天时全部改为预约变更
type BulkClassDaysRequest struct {
	EffectiveFrom string              `json:"effective_from" binding:"omitempty,datetime=2006-01-02"`
	Students      []BulkClassDaysItem `json:"students"       binding:"required,dive"`
}

// ── 学生模块响应 ──

// StudentResponse 学生信息
type StudentResponse struct {
	ID                     string            `json:"id"`
	AcademyID              string            `json:"academy_id"`
	StudentNumber          string            `json:"student_number,omitempty"`
	Name                   string            `json:"name"`
	Grade                  string            `json:"grade,omitempty"`
	StudentType            string            `json:"student_type"`
	Status                 string            `json:"status"`
	ClassDays              model.ClassDays   `json:"class_days"`
	ClassDaysNext          model.ClassDays   `json:"class_days_next,omitempty"`
	ClassDaysEffectiveFrom string            `json:"class_days_effective_from,omitempty"`
	TimeSlot               string            `json:"time_slot"`
	WeeklyCount            int               `json:"weekly_count"`
	MonthlyTuition         int64             `json:"monthly_tuition"`
	DiscountRate           decimal.Decimal   `json:"discount_rate"`
	PaymentDueDay          *int              `json:"payment_due_day,omitempty"`
	EnrollmentDate         string            `json:"enrollment_date,omitempty"`
	RestStartDate          string            `json:"rest_start_date,omitempty"`
	RestEndDate            string            `json:"rest_end_date,omitempty"`
	RestReason             string            `json:"rest_reason,omitempty"`
	IsTrial                bool              `json:"is_trial"`
	TrialRemaining         int               `json:"trial_remaining"`
	TrialDates             []model.TrialDate `json:"trial_dates,omitempty"`
	WithdrawalDate         string            `json:"withdrawal_date,omitempty"`
	WithdrawalReason       string            `json:"withdrawal_reason,omitempty"`
	Memo                   string            `json:"memo,omitempty"`
	Version                int               `json:"version"`
}

// RestEndedStudent 休学期满仍未复学的学生
type RestEndedStudent struct {
	StudentResponse
	DaysOverdue int `json:"days_overdue"`
}

// BulkClassDaysItemResult 批量修改中单个学生的结果
// mode 为 immediate 表示立即生效，scheduled 表示预约变更
type BulkClassDaysItemResult struct {
	ID       string    `json:"id"`
	Mode     string    `json:"mode,omitempty"`
	Success  bool      `json:"success"`
	Error    string    `json:"error,omitempty"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// BulkClassDaysResult 批量修改上课模式的汇总
type BulkClassDaysResult struct {
	EffectiveFrom string                    `json:"effective_from"`
	Succeeded     int                       `json:"succeeded"`
	Failed        int                       `json:"failed"`
	Results       []BulkClassDaysItemResult `json:"results"`
}

// SeasonEnrollmentResponse 季节课报名记录
type SeasonEnrollmentResponse struct {
	ID          string `json:"id"`
	SeasonID    string `json:"season_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// PaymentResponse 缴费记录
type PaymentResponse struct {
	ID              string `json:"id"`
	StudentID       string `json:"student_id"`
	YearMonth       string `json:"year_month"`
	PaymentType     string `json:"payment_type"`
	BaseAmount      int64  `json:"base_amount"`
	DiscountAmount  int64  `json:"discount_amount"`
	FinalAmount     int64  `json:"final_amount"`
	PaidAmount      int64  `json:"paid_amount"`
	CarryoverAmount int64  `json:"carryover_amount"`
	DueDate         string `json:"due_date"`
	Status          string `json:"status"`
	RestCreditID    string `json:"rest_credit_id,omitempty"`
	IsProrated      bool   `json:"is_prorated"`
	Description     string `json:"description,omitempty"`
}

// StudentResult 状态变更与编辑的结果
// 主结果字段与 warnings 相互独立：warnings 非空时主操作依然已经提交
type StudentResult struct {
	Student *StudentResponse `json:"student"`

	// 入学、复学生成的账单
	Payment *PaymentResponse `json:"payment,omitempty"`
	// 休学时调整后的当月账单；deleted_payment_id 非空表示账单被删除
	AdjustedPayment  *PaymentResponse `json:"adjusted_payment,omitempty"`
	DeletedPaymentID string           `json:"deleted_payment_id,omitempty"`
	// 休学生成的结转/退费积分
	Credit *CreditResponse `json:"credit,omitempty"`

	// 退学/毕业
	DeletedPaymentCount int   `json:"deleted_payment_count,omitempty"`
	DeletedPaymentTotal int64 `json:"deleted_payment_total,omitempty"`
	CancelledSeasons    int64 `json:"cancelled_seasons,omitempty"`

	AttendanceAdded   int   `json:"attendance_added,omitempty"`
	AttendanceRemoved int64 `json:"attendance_removed,omitempty"`
	RepricedPayments  int   `json:"repriced_payments,omitempty"`

	Warnings []Warning `json:"warnings"`
}

// AddWarning 记录一条次要步骤失败；存储层错误只给出通用提示
func (r *StudentResult) AddWarning(step string, err error) {
	msg := "处理失败，请稍后重试"
	if appErr, ok := pkgerrors.As(err); ok {
		msg = appErr.Message
	}
	r.Warnings = append(r.Warnings, Warning{Step: step, Message: msg})
}
