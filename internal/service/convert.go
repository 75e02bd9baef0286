package service

import (
	"time"

	"github.com/seanyjeong/pacapro-sub001/internal/dto"
	"github.com/seanyjeong/pacapro-sub001/internal/model"
)

// ── Model → DTO ──

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(model.DateLayout)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toStudentResponse(s *model.Student) *dto.StudentResponse {
	resp := &dto.StudentResponse{
		ID:                     s.StudentID,
		AcademyID:              s.AcademyID,
		StudentNumber:          derefString(s.StudentNumber),
		Name:                   s.Name,
		Grade:                  s.Grade,
		StudentType:            s.StudentType,
		Status:                 s.Status,
		ClassDays:              s.ClassDays,
		ClassDaysEffectiveFrom: formatDate(s.ClassDaysEffectiveFrom),
		TimeSlot:               s.TimeSlot,
		WeeklyCount:            s.WeeklyCount,
		MonthlyTuition:         s.MonthlyTuition,
		DiscountRate:           s.DiscountRate,
		PaymentDueDay:          s.PaymentDueDay,
		EnrollmentDate:         formatDate(s.EnrollmentDate),
		RestStartDate:          formatDate(s.RestStartDate),
		RestEndDate:            formatDate(s.RestEndDate),
		RestReason:             s.RestReason,
		IsTrial:                s.IsTrial,
		TrialRemaining:         s.TrialRemaining,
		TrialDates:             s.TrialDates.Data(),
		WithdrawalDate:         formatDate(s.WithdrawalDate),
		WithdrawalReason:       s.WithdrawalReason,
		Memo:                   s.Memo,
		Version:                s.Version,
	}
	if s.ClassDaysNext != nil {
		resp.ClassDaysNext = *s.ClassDaysNext
	}
	if resp.ClassDays == nil {
		resp.ClassDays = model.ClassDays{}
	}
	return resp
}

func toPaymentResponse(p *model.PaymentRecord) *dto.PaymentResponse {
	if p == nil {
		return nil
	}
	return &dto.PaymentResponse{
		ID:              p.PaymentID,
		StudentID:       p.StudentID,
		YearMonth:       p.YearMonth,
		PaymentType:     p.PaymentType,
		BaseAmount:      p.BaseAmount,
		DiscountAmount:  p.DiscountAmount,
		FinalAmount:     p.FinalAmount,
		PaidAmount:      p.PaidAmount,
		CarryoverAmount: p.CarryoverAmount,
		DueDate:         p.DueDate.Format(model.DateLayout),
		Status:          p.Status,
		RestCreditID:    derefString(p.RestCreditID),
		IsProrated:      p.IsProrated,
		Description:     p.Description,
	}
}

func toCreditResponse(c *model.RestCredit) *dto.CreditResponse {
	if c == nil {
		return nil
	}
	resp := &dto.CreditResponse{
		ID:                 c.CreditID,
		StudentID:          c.StudentID,
		SourcePaymentID:    derefString(c.SourcePaymentID),
		RestStartDate:      formatDate(c.RestStartDate),
		RestEndDate:        formatDate(c.RestEndDate),
		RestDays:           c.RestDays,
		CreditAmount:       c.CreditAmount,
		RemainingAmount:    c.RemainingAmount,
		CreditType:         c.CreditType,
		Status:             c.Status,
		AppliedToPaymentID: derefString(c.AppliedToPaymentID),
		Notes:              c.Notes,
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
	}
	if c.ProcessedAt != nil {
		resp.ProcessedAt = c.ProcessedAt.Format(time.RFC3339)
	}
	return resp
}

func toSeasonEnrollmentResponse(e *model.SeasonEnrollment) dto.SeasonEnrollmentResponse {
	resp := dto.SeasonEnrollmentResponse{
		ID:        e.EnrollmentID,
		SeasonID:  e.SeasonID,
		Status:    e.Status,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.CancelledAt != nil {
		resp.CancelledAt = e.CancelledAt.Format(time.RFC3339)
	}
	return resp
}
