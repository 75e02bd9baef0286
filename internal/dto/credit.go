package dto

// ── 积分模块请求 ──

// CreateManualCreditRequest 手动补偿积分
// 三种方式任选其一，优先级：direct_amount > class_count > 日期区间
type CreateManualCreditRequest struct {
	Reason       string `json:"reason"        binding:"required,max=255"`
	StartDate    string `json:"start_date"    binding:"omitempty,datetime=2006-01-02"`
	EndDate      string `json:"end_date"      binding:"omitempty,datetime=2006-01-02"`
	ClassCount   *int   `json:"class_count"`
	DirectAmount *int64 `json:"direct_amount"`
}

// ApplyCreditRequest 将积分抵扣到某账期的月学费
type ApplyCreditRequest struct {
	YearMonth string `json:"year_month" binding:"required"`
}

// UpdateCreditRequest 修改积分
type UpdateCreditRequest struct {
	CreditAmount *int64  `json:"credit_amount" binding:"omitempty,min=0"`
	Status       *string `json:"status"        binding:"omitempty,oneof=pending partial applied cancelled"`
	Notes        *string `json:"notes"         binding:"omitempty,max=1000"`
}

// ── 积分模块响应 ──

// CreditResponse 积分信息
type CreditResponse struct {
	ID                 string `json:"id"`
	StudentID          string `json:"student_id"`
	SourcePaymentID    string `json:"source_payment_id,omitempty"`
	RestStartDate      string `json:"rest_start_date,omitempty"`
	RestEndDate        string `json:"rest_end_date,omitempty"`
	RestDays           int    `json:"rest_days"`
	CreditAmount       int64  `json:"credit_amount"`
	RemainingAmount    int64  `json:"remaining_amount"`
	CreditType         string `json:"credit_type"`
	Status             string `json:"status"`
	AppliedToPaymentID string `json:"applied_to_payment_id,omitempty"`
	ProcessedAt        string `json:"processed_at,omitempty"`
	Notes              string `json:"notes,omitempty"`
	CreatedAt          string `json:"created_at"`
}

// CreditListResponse 学生积分列表，pending_total 为未用完积分的剩余总额
type CreditListResponse struct {
	Credits      []CreditResponse `json:"credits"`
	PendingTotal int64            `json:"pending_total"`
}

// ApplyCreditResponse 抵扣结果
type ApplyCreditResponse struct {
	AppliedAmount int64            `json:"applied_amount"`
	Credit        *CreditResponse  `json:"credit"`
	Payment       *PaymentResponse `json:"payment"`
}
