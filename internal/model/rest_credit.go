package model

import "time"

// 积分类型
const (
	CreditTypeCarryover = "carryover" // 休学结转
	CreditTypeRefund    = "refund"    // 休学退费
	CreditTypeManual    = "manual"    // 手动补偿
	CreditTypeExcused   = "excused"   // 公假缺课
)

// 积分状态；used 为历史数据中的已使用状态，与 applied 同样不可修改
const (
	CreditStatusPending   = "pending"
	CreditStatusPartial   = "partial"
	CreditStatusApplied   = "applied"
	CreditStatusCancelled = "cancelled"
	CreditStatusUsed      = "used"
)

// RestCredit 休学/补偿积分，对应 rest_credits
// 0 <= remaining_amount <= credit_amount，且 remaining 只减不增
type RestCredit struct {
	CreditID           string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"credit_id"`
	StudentID          string     `gorm:"type:uuid;not null;index"                       json:"student_id"`
	AcademyID          string     `gorm:"type:uuid;not null"                             json:"academy_id"`
	SourcePaymentID    *string    `gorm:"type:uuid"                                      json:"source_payment_id,omitempty"`
	RestStartDate      *time.Time `gorm:"type:date"                                      json:"rest_start_date,omitempty"`
	RestEndDate        *time.Time `gorm:"type:date"                                      json:"rest_end_date,omitempty"`
	RestDays           int        `gorm:"not null;default:0"                             json:"rest_days"`
	CreditAmount       int64      `gorm:"not null"                                       json:"credit_amount"`
	RemainingAmount    int64      `gorm:"not null"                                       json:"remaining_amount"`
	CreditType         string     `gorm:"type:varchar(20);not null"                      json:"credit_type"`
	Status             string     `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	AppliedToPaymentID *string    `gorm:"type:uuid"                                      json:"applied_to_payment_id,omitempty"`
	ProcessedAt        *time.Time `json:"processed_at,omitempty"`
	Notes              string     `gorm:"type:text"                                      json:"notes,omitempty"`
	BaseModel
}

func (RestCredit) TableName() string { return "rest_credits" }

// IsLocked 已抵扣过的积分金额与删除均不可再修改
func (c *RestCredit) IsLocked() bool {
	return c.Status == CreditStatusApplied || c.Status == CreditStatusUsed
}

// IsOpen 仍可继续抵扣
func (c *RestCredit) IsOpen() bool {
	return (c.Status == CreditStatusPending || c.Status == CreditStatusPartial) && c.RemainingAmount > 0
}
