package dto

// ── 通用 ──

// Warning 次要步骤（自动排课、后续账单等）失败时的提示，不影响主操作结果
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// 次要步骤名称
const (
	StepAssignSchedule  = "assign_schedule"
	StepReassign        = "reassign_schedule"
	StepEnrollmentBill  = "enrollment_payment"
	StepResumeBill      = "resume_payment"
	StepRepricePayments = "reprice_payments"
	StepTrialSchedule   = "trial_schedule"
	StepRestCredit      = "rest_credit"
)
