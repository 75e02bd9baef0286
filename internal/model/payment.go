package model

import "time"

// 缴费记录状态
const (
	PaymentStatusPending = "pending"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
	PaymentStatusOverdue = "overdue"
)

// PaymentTypeMonthly 月学费；每个 (student_id, year_month) 至多一条
const PaymentTypeMonthly = "monthly"

// PaymentRecord 缴费记录，对应 student_payments
//
// final_amount = base_amount - discount_amount - carryover_amount，
// carryover_amount 累计已抵扣的积分金额
type PaymentRecord struct {
	PaymentID       string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"payment_id"`
	StudentID       string     `gorm:"type:uuid;not null;index"                       json:"student_id"`
	AcademyID       string     `gorm:"type:uuid;not null"                             json:"academy_id"`
	YearMonth       string     `gorm:"type:varchar(7);not null"                       json:"year_month"`
	PaymentType     string     `gorm:"type:varchar(20);not null;default:'monthly'"    json:"payment_type"`
	BaseAmount      int64      `gorm:"not null;default:0"                             json:"base_amount"`
	DiscountAmount  int64      `gorm:"not null;default:0"                             json:"discount_amount"`
	FinalAmount     int64      `gorm:"not null;default:0"                             json:"final_amount"`
	PaidAmount      int64      `gorm:"not null;default:0"                             json:"paid_amount"`
	CarryoverAmount int64      `gorm:"not null;default:0"                             json:"carryover_amount"`
	DueDate         time.Time  `gorm:"type:date;not null"                             json:"due_date"`
	PaidDate        *time.Time `gorm:"type:date"                                      json:"paid_date,omitempty"`
	Status          string     `gorm:"type:varchar(10);not null;default:'pending'"    json:"status"`
	RestCreditID    *string    `gorm:"type:uuid"                                      json:"rest_credit_id,omitempty"`
	IsProrated      bool       `gorm:"not null;default:false"                         json:"is_prorated"`
	Description     string     `gorm:"type:varchar(255)"                              json:"description,omitempty"`
	Notes           string     `gorm:"type:text"                                      json:"notes,omitempty"`
	BaseModel
}

func (PaymentRecord) TableName() string { return "student_payments" }

// IsPaid 已足额缴清
func (p *PaymentRecord) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// RefreshStatus 根据已缴金额重新推导状态（逾期状态保持不变）
func (p *PaymentRecord) RefreshStatus() {
	switch {
	case p.FinalAmount <= p.PaidAmount:
		p.Status = PaymentStatusPaid
	case p.PaidAmount > 0:
		p.Status = PaymentStatusPartial
	case p.Status != PaymentStatusOverdue:
		p.Status = PaymentStatusPending
	}
}

// AppendNote 追加备注行
func (p *PaymentRecord) AppendNote(line string) {
	if p.Notes == "" {
		p.Notes = line
		return
	}
	p.Notes += "\n" + line
}
